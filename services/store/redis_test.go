package store

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/pricemonitor/pkg/errors"
)

// This test requires a running Redis instance
// If Redis is not available, the test will be skipped
func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	defer client.Close()

	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	key := "test:pricemonitor:baseline"
	client.Del(ctx, key)
	defer client.Del(ctx, key)

	s := NewRedisStore(client, key)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)

	records := manyRecords(20)
	_, err = s.Save(ctx, records)
	require.NoError(t, err)

	snap, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 20)
	assert.True(t, records[7].Price.Equal(snap[records[7].Key].Price))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Count)
	assert.Greater(t, stats.ByteSize, int64(0))

	data, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), stats.ByteSize)

	require.NoError(t, client.Set(ctx, key, "garbage", 0).Err())
	_, err = s.Load(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
}
