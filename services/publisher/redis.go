package publisher

import (
	"context"
	"encoding/base64"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
)

const (
	// KeyField carries the product key of a stream entry
	KeyField = "key"
	// PayloadField carries the base64-encoded JSON event
	PayloadField = "b64_price_change"
)

// RedisPublisher writes events to a set of Redis streams named prefix:0 .. prefix:N-1
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamCount     int
	streamMaxLength int
}

// NewRedisPublisher creates a new Redis publisher on an existing client
func NewRedisPublisher(client *redis.Client, streamPrefix string, streamCount int, streamMaxLength int) *RedisPublisher {
	if streamCount < 1 {
		streamCount = 1
	}

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
	}
}

// StreamFor returns the stream that carries events for key. Every event of
// one product lands on the same stream, so consumers see them in order.
func (p *RedisPublisher) StreamFor(key string) string {
	shard := xxhash.Sum64String(key) % uint64(p.streamCount)
	return p.streamPrefix + ":" + strconv.FormatUint(shard, 10)
}

// Publish publishes a message to a Redis stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(ctx context.Context, key string, message []byte) error {
	stream := p.StreamFor(key)
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			KeyField:     key,
			PayloadField: encodedMessage,
		},
	}).Err()
	if err != nil {
		return errors.NewPublisher(stream, "failed to add stream entry", err)
	}
	return nil
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}

	for shard := 0; shard < p.streamCount; shard++ {
		stream := p.streamPrefix + ":" + strconv.Itoa(shard)
		if err := p.client.XTrimMaxLen(ctx, stream, int64(p.streamMaxLength)).Err(); err != nil {
			return errors.NewPublisher(stream, "failed to trim stream", err)
		}
	}

	logger.ForPublisher().Debug().
		Str("prefix", p.streamPrefix).
		Int("streams", p.streamCount).
		Int("max_length", p.streamMaxLength).
		Msg("Streams trimmed")
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
