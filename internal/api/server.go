package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sjsage522/pricemonitor/internal/export"
	"sjsage522/pricemonitor/internal/monitor"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/services/store"
)

// Engine is the part of the monitoring engine the API exposes
type Engine interface {
	RunCycle(ctx context.Context) (*monitor.CycleResult, error)
	ExportSnapshot(ctx context.Context) ([]byte, error)
	SnapshotStats(ctx context.Context) (store.Stats, error)
	Busy() bool
}

// Server serves the snapshot and cycle endpoints
type Server struct {
	engine Engine
	router *mux.Router
	now    func() time.Time
}

// NewServer creates a server and registers its routes
func NewServer(engine Engine) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		now:    time.Now,
	}

	s.router.Use(loggingMiddleware)
	s.router.HandleFunc("/healthcheck", s.healthCheck).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", s.downloadSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/snapshot.xlsx", s.downloadSpreadsheet).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	api.HandleFunc("/cycles", s.runCycle).Methods(http.MethodPost)

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.ForAPI().Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "pricemonitor",
		"busy":    s.engine.Busy(),
		"endpoints": []string{
			"GET /api/snapshot",
			"GET /api/snapshot.xlsx",
			"GET /api/stats",
			"POST /api/cycles",
		},
	})
}

func (s *Server) downloadSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.ExportSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(s.filename("json")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) downloadSpreadsheet(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.ExportSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	snap, err := store.DecodeSnapshot(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, snap); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(s.filename("xlsx")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.SnapshotStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) runCycle(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.RunCycle(r.Context())
	switch {
	case stderrors.Is(err, monitor.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// filename names a download after the current time, e.g. prices_20240501_120000.json
func (s *Server) filename(ext string) string {
	return fmt.Sprintf("prices_%s.%s", s.now().Format("20060102_150405"), ext)
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.ForAPI().Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.ForAPI().Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("Request handled")
	})
}
