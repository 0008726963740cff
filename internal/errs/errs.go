package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels shared across packages.
var (
	// ErrNotFound is returned when a record or catalog entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned by the session controller for illegal transitions.
	ErrInvalidState = errors.New("invalid session state")
	// ErrAuth is returned when no usable auth token is available.
	ErrAuth = errors.New("authentication required")
	// ErrSyncInProgress is returned by the engine when a drain is already running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ValidationError reports bad input (shape, size, missing required fields).
// It is surfaced to the caller directly and never retried.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

// Validation builds a ValidationError from one or more reasons.
func Validation(reasons ...string) error {
	return &ValidationError{Reasons: reasons}
}

// NetworkError is a transient upload/probe failure: timeout, connection
// refused or a non-2xx response. Subject to the engine's retry budget.
type NetworkError struct {
	Status int // HTTP status, 0 for transport-level failures
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("network error: server returned status %d", e.Status)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Network wraps a transport error.
func Network(err error) error { return &NetworkError{Err: err} }

// NetworkStatus wraps a non-2xx response status.
func NetworkStatus(status int) error { return &NetworkError{Status: status} }

// StorageError is a durable-medium failure. It threatens data durability,
// so callers treat it as fatal to the current operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps an underlying database error with the failed operation name.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
