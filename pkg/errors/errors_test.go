package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorErrorMessage(t *testing.T) {
	err := NewTransport("etm", "request failed", stderrors.New("connection reset"))
	assert.Equal(t, "[transport] etm: request failed - connection reset", err.Error())

	blocked := NewBlocked("etm", "status 444")
	assert.Equal(t, "[blocked] etm: status 444", blocked.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, NewTransport("etm", "timeout", nil).IsRetryable())
	assert.True(t, NewBlocked("etm", "marker").IsRetryable())
	assert.False(t, NewExtraction("etm", "no name").IsRetryable())
	assert.False(t, NewPersistence("write failed", nil).IsRetryable())
}

func TestIsTypeThroughWrapping(t *testing.T) {
	inner := NewBlocked("etm", "access denied")
	wrapped := fmt.Errorf("cycle: %w", inner)

	assert.True(t, IsType(wrapped, ErrorTypeBlocked))
	assert.False(t, IsType(wrapped, ErrorTypeTransport))
	assert.Equal(t, ErrorTypeBlocked, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := NewPersistence("failed to write snapshot", cause)
	assert.ErrorIs(t, err, cause)
}
