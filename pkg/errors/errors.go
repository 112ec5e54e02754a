package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeTransport represents timeouts, connection failures and unexpected status codes
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeBlocked represents soft-block responses (blocking status code or page marker)
	ErrorTypeBlocked ErrorType = "blocked"
	// ErrorTypeExtraction represents a product card that could not be resolved
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypePersistence represents an unreadable or unwritable baseline snapshot
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// MonitorError represents an error raised while monitoring a source
type MonitorError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *MonitorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *MonitorError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the fetcher should try again after this error
func (e *MonitorError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTransport, ErrorTypeBlocked:
		return true
	default:
		return false
	}
}

// New creates a new MonitorError
func New(errType ErrorType, source, message string, err error) *MonitorError {
	return &MonitorError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewTransport creates a new transport error
func NewTransport(source, message string, err error) *MonitorError {
	return New(ErrorTypeTransport, source, message, err)
}

// NewBlocked creates a new soft-block error
func NewBlocked(source, message string) *MonitorError {
	return New(ErrorTypeBlocked, source, message, nil)
}

// NewExtraction creates a new extraction error
func NewExtraction(source, message string) *MonitorError {
	return New(ErrorTypeExtraction, source, message, nil)
}

// NewPersistence creates a new persistence error
func NewPersistence(message string, err error) *MonitorError {
	return New(ErrorTypePersistence, "", message, err)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *MonitorError {
	return New(ErrorTypeCache, source, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *MonitorError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *MonitorError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsType reports whether any MonitorError in err's chain has the given type
func IsType(err error, errType ErrorType) bool {
	var me *MonitorError
	if stderrors.As(err, &me) {
		return me.Type == errType
	}
	return false
}

// TypeOf returns the type of the first MonitorError in err's chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var me *MonitorError
	if stderrors.As(err, &me) {
		return me.Type
	}
	return ""
}
