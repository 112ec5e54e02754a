package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"sjsage522/pricemonitor/pkg/errors"
)

// scriptedServer answers each request with the next status in the script,
// repeating the last one once the script runs out
type scriptedServer struct {
	mu         sync.Mutex
	statuses   []int
	bodies     []string
	userAgents []string
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := len(s.userAgents)
	s.userAgents = append(s.userAgents, r.Header.Get("User-Agent"))
	s.mu.Unlock()

	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	body := "<html><body>ok</body></html>"
	if i < len(s.bodies) && s.bodies[i] != "" {
		body = s.bodies[i]
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(s.statuses[i])
	_, _ = w.Write([]byte(body))
}

func (s *scriptedServer) requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.userAgents)
}

func newTestFetcher(uas ...string) *Fetcher {
	opts := DefaultFetchOptions()
	if len(uas) > 0 {
		opts.UserAgents = uas
	}
	opts.Timeout = 5 * time.Second
	f := NewFetcher("test", opts)
	f.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return f
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	srv := &scriptedServer{statuses: []int{500, 444, 200}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	f := newTestFetcher("ua-1", "ua-2", "ua-3")
	body, err := f.Fetch(context.Background(), ts.URL)

	require.NoError(t, err)
	assert.Contains(t, string(body), "ok")
	assert.Equal(t, 3, srv.requests())
	assert.Equal(t, []string{"ua-1", "ua-2", "ua-3"}, srv.userAgents)
}

func TestFetchGivesUpOnPersistentTransportErrors(t *testing.T) {
	srv := &scriptedServer{statuses: []int{500}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	_, err := newTestFetcher().Fetch(context.Background(), ts.URL)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 3, srv.requests())
}

func TestFetchReportsPersistentBlock(t *testing.T) {
	srv := &scriptedServer{statuses: []int{403, 429}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	_, err := newTestFetcher().Fetch(context.Background(), ts.URL)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeBlocked))
	assert.Equal(t, 3, srv.requests())
}

func TestFetchDetectsBlockMarker(t *testing.T) {
	srv := &scriptedServer{
		statuses: []int{200, 200},
		bodies:   []string{"<title>Just a moment...</title><p>Checking your browser</p>", "<div class='item'>real</div>"},
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	body, err := newTestFetcher().Fetch(context.Background(), ts.URL)

	require.NoError(t, err)
	assert.Contains(t, string(body), "real")
	assert.Equal(t, 2, srv.requests())
}

func TestFetchClassifiesChallengeOnErrorStatusAsBlock(t *testing.T) {
	srv := &scriptedServer{
		statuses: []int{http.StatusServiceUnavailable},
		bodies:   []string{"<title>Just a moment...</title><p>Checking your browser before accessing</p>"},
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	_, err := newTestFetcher().Fetch(context.Background(), ts.URL)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeBlocked))
	assert.Equal(t, 3, srv.requests())
}

func TestFetchIgnoresCDNMentions(t *testing.T) {
	srv := &scriptedServer{
		statuses: []int{200},
		bodies:   []string{`<script src="https://cdnjs.cloudflare.com/lib.js"></script><div>catalog</div>`},
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	_, err := newTestFetcher().Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.requests())
}

func TestFetchHonorsCancellation(t *testing.T) {
	srv := &scriptedServer{statuses: []int{500}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher().Fetch(ctx, ts.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, srv.requests())
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	srv := &scriptedServer{statuses: []int{500}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := newTestFetcher()
	f.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, time.Minute)
	}

	_, err := f.Fetch(ctx, ts.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, srv.requests())
}

func TestFetchDecodesLegacyCharset(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String("Цена 100")
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		_, _ = w.Write([]byte(encoded))
	}))
	defer ts.Close()

	body, err := newTestFetcher().Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "Цена 100", string(body))
}

func TestFetcherDelayWithinBounds(t *testing.T) {
	opts := DefaultFetchOptions()
	opts.MinDelay = 10 * time.Millisecond
	opts.MaxDelay = 20 * time.Millisecond
	f := NewFetcher("test", opts)

	for i := 0; i < 100; i++ {
		d := f.delay()
		assert.GreaterOrEqual(t, d, opts.MinDelay)
		assert.LessOrEqual(t, d, opts.MaxDelay)
	}

	opts.MaxDelay = 0
	assert.Equal(t, opts.MinDelay, NewFetcher("test", opts).delay())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestNewFetcherRequestPacing(t *testing.T) {
	assert.Nil(t, newTestFetcher().limiter)

	opts := DefaultFetchOptions()
	opts.RequestsPerMinute = 30
	f := NewFetcher("test", opts)
	require.NotNil(t, f.limiter)
	assert.InDelta(t, 0.5, float64(f.limiter.Limit()), 1e-9)
	assert.Equal(t, 1, f.limiter.Burst())
}

func TestFetchPacingPastDeadlineFailsFast(t *testing.T) {
	srv := &scriptedServer{statuses: []int{http.StatusOK}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	opts := DefaultFetchOptions()
	opts.RequestsPerMinute = 1
	opts.Timeout = 5 * time.Second
	f := NewFetcher("test", opts)

	_, err := f.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)

	var sleeps int
	f.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, ts.URL)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.Equal(t, 1, srv.requests())
	assert.Zero(t, sleeps)
}
