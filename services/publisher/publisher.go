package publisher

import "context"

// Publisher delivers price change events to downstream consumers
type Publisher interface {
	// Publish sends one message; key identifies the product it concerns
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
