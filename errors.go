package redisinjector

import (
	"errors"
	"fmt"

	"github.com/raniellyferreira/redis-injector/stream"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingTarget indicates that no target address was configured
	ErrMissingTarget = errors.New("missing target address")

	// ErrClosed indicates Run was called on an injector that already ran
	ErrClosed = errors.New("injector already ran")

	// ErrDuplicateKey indicates a SET for a key that was still waiting for
	// its EXPIREAT. Match with errors.Is; the concrete error is
	// *stream.DuplicateKeyError.
	ErrDuplicateKey = stream.ErrDuplicateKey
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Addr string
	Err  error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FlushError reports a failed leftover flush
type FlushError struct {
	Entries int
	Err     error
}

// Error implements the error interface
func (e *FlushError) Error() string {
	return fmt.Sprintf("leftover flush of %d keys failed: %v", e.Entries, e.Err)
}

// Unwrap returns the wrapped error
func (e *FlushError) Unwrap() error {
	return e.Err
}
