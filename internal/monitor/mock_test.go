package monitor

import (
	"context"
	"sync"
	"time"

	"sjsage522/pricemonitor/internal/crawler"
	"sjsage522/pricemonitor/services/store"
)

// fakeSource returns canned records, optionally waiting on a gate first
type fakeSource struct {
	name    string
	records []crawler.ProductRecord
	err     error
	started chan struct{}
	gate    chan struct{}
	delay   time.Duration
	onFetch func()
}

func (s *fakeSource) Name() string {
	return s.name
}

func (s *fakeSource) FetchProducts(ctx context.Context) ([]crawler.ProductRecord, error) {
	if s.onFetch != nil {
		s.onFetch()
	}
	if s.started != nil {
		close(s.started)
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

// memStore is an in-memory BaselineStore
type memStore struct {
	mu      sync.Mutex
	snap    store.Snapshot
	loadErr error
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{snap: store.Snapshot{}}
}

func (m *memStore) Load(ctx context.Context) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return store.Snapshot{}, m.loadErr
	}
	out := make(store.Snapshot, len(m.snap))
	for k, v := range m.snap {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(ctx context.Context, records []crawler.ProductRecord) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.snap = store.BuildSnapshot(records, time.Now())
	m.saves++
	return m.snap, nil
}

func (m *memStore) Export(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Encode()
}

func (m *memStore) Stats(ctx context.Context) (store.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Stats(0), nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
