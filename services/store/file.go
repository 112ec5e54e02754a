package store

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sjsage522/pricemonitor/internal/crawler"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
)

// FileStore keeps the snapshot in a single JSON file
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the snapshot file path
func (s *FileStore) Path() string {
	return s.path
}

// Load implements BaselineStore
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, _, err := s.read()
	return snap, err
}

func (s *FileStore) read() (Snapshot, int64, error) {
	data, err := os.ReadFile(s.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, 0, nil
	}
	if err != nil {
		return Snapshot{}, 0, errors.NewPersistence("failed to read baseline "+s.path, err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return Snapshot{}, int64(len(data)), errors.NewPersistence("corrupt baseline "+s.path, err)
	}
	return snap, int64(len(data)), nil
}

// Save implements BaselineStore. The file is replaced atomically, so a
// crash mid-write leaves the previous snapshot intact.
func (s *FileStore) Save(ctx context.Context, records []crawler.ProductRecord) (Snapshot, error) {
	snap := BuildSnapshot(records, s.now())
	data, err := snap.Encode()
	if err != nil {
		return nil, errors.NewPersistence("failed to encode baseline", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return nil, errors.NewPersistence("failed to write baseline "+s.path, err)
	}

	logger.ForStore().Debug().
		Str("path", s.path).
		Int("entries", len(snap)).
		Int("bytes", len(data)).
		Msg("Baseline saved")
	return snap, nil
}

// Export implements BaselineStore
func (s *FileStore) Export(ctx context.Context) ([]byte, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Encode()
}

// Stats implements BaselineStore
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, size, err := s.read()
	if err != nil {
		return Stats{ByteSize: size}, err
	}
	return snap.Stats(size), nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
