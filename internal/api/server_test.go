package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sjsage522/pricemonitor/internal/export"
	"sjsage522/pricemonitor/internal/monitor"
	"sjsage522/pricemonitor/pkg/errors"
	"sjsage522/pricemonitor/services/store"
)

// mockEngine implements Engine with canned answers
type mockEngine struct {
	snapshot []byte
	stats    store.Stats
	result   *monitor.CycleResult
	cycleErr error
	busy     bool
}

func (m *mockEngine) RunCycle(ctx context.Context) (*monitor.CycleResult, error) {
	return m.result, m.cycleErr
}

func (m *mockEngine) ExportSnapshot(ctx context.Context) ([]byte, error) {
	return m.snapshot, nil
}

func (m *mockEngine) SnapshotStats(ctx context.Context) (store.Stats, error) {
	return m.stats, nil
}

func (m *mockEngine) Busy() bool {
	return m.busy
}

func newTestServer(engine *mockEngine) *Server {
	s := NewServer(engine)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC) }
	return s
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func testSnapshot(t *testing.T) []byte {
	snap := store.Snapshot{"1001": {Name: "Heater X", Price: decimal.NewFromInt(12990), Source: "etm"}}
	data, err := snap.Encode()
	require.NoError(t, err)
	return data
}

func TestHealthCheck(t *testing.T) {
	rec := serve(newTestServer(&mockEngine{}), http.MethodGet, "/healthcheck")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIndex(t *testing.T) {
	rec := serve(newTestServer(&mockEngine{busy: true}), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["busy"])
}

func TestDownloadSnapshot(t *testing.T) {
	data := testSnapshot(t)
	rec := serve(newTestServer(&mockEngine{snapshot: data}), http.MethodGet, "/api/snapshot")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="prices_20240501_123045.json"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, string(data), rec.Body.String())
}

func TestDownloadSpreadsheet(t *testing.T) {
	rec := serve(newTestServer(&mockEngine{snapshot: testSnapshot(t)}), http.MethodGet, "/api/snapshot.xlsx")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="prices_20240501_123045.xlsx"`, rec.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1001", rows[1][0])
}

func TestStats(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := serve(newTestServer(&mockEngine{stats: store.Stats{Count: 3, LastUpdated: &updated, ByteSize: 512}}), http.MethodGet, "/api/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3,"last_updated":"2024-05-01T12:00:00Z","byte_size":512}`, rec.Body.String())
}

func TestRunCycle(t *testing.T) {
	engine := &mockEngine{result: &monitor.CycleResult{ID: "c-1"}}
	rec := serve(newTestServer(engine), http.MethodPost, "/api/cycles")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c-1", body["id"])
}

func TestRunCycleBusy(t *testing.T) {
	rec := serve(newTestServer(&mockEngine{cycleErr: monitor.ErrBusy}), http.MethodPost, "/api/cycles")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunCycleFailure(t *testing.T) {
	engine := &mockEngine{result: &monitor.CycleResult{ID: "c-2"}, cycleErr: errors.NewPersistence("disk full", nil)}
	rec := serve(newTestServer(engine), http.MethodPost, "/api/cycles")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk full")
	assert.Contains(t, rec.Body.String(), `"c-2"`)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(newTestServer(&mockEngine{}), http.MethodGet, "/api/cycles")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
