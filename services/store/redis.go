package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"sjsage522/pricemonitor/internal/crawler"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
)

// RedisStore keeps the snapshot as one JSON document under a single key
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisStore creates a store that reads and writes key
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key, now: time.Now}
}

// Load implements BaselineStore
func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	snap, _, err := s.read(ctx)
	return snap, err
}

func (s *RedisStore) read(ctx context.Context) (Snapshot, int64, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return Snapshot{}, 0, nil
	}
	if err != nil {
		return Snapshot{}, 0, errors.NewPersistence("failed to read baseline key "+s.key, err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return Snapshot{}, int64(len(data)), errors.NewPersistence("corrupt baseline key "+s.key, err)
	}
	return snap, int64(len(data)), nil
}

// Save implements BaselineStore. SET replaces the document in one step.
func (s *RedisStore) Save(ctx context.Context, records []crawler.ProductRecord) (Snapshot, error) {
	snap := BuildSnapshot(records, s.now())
	data, err := snap.Encode()
	if err != nil {
		return nil, errors.NewPersistence("failed to encode baseline", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return nil, errors.NewPersistence("failed to write baseline key "+s.key, err)
	}

	logger.ForStore().Debug().
		Str("key", s.key).
		Int("entries", len(snap)).
		Msg("Baseline saved")
	return snap, nil
}

// Export implements BaselineStore
func (s *RedisStore) Export(ctx context.Context) ([]byte, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Encode()
}

// Stats implements BaselineStore
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	snap, size, err := s.read(ctx)
	if err != nil {
		return Stats{ByteSize: size}, err
	}
	return snap.Stats(size), nil
}
