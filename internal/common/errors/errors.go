// Package errors defines common error types for the uprelay system.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// Storage errors
	ErrNotFound     = errors.New("object not found")
	ErrKeyConflict  = errors.New("storage key already exists")
	ErrNotSupported = errors.New("operation not supported by backend")

	// Backend errors
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrListFailed         = errors.New("listing failed")
	ErrUploadFailed       = errors.New("upload failed")

	// Request errors
	ErrMissingParameter = errors.New("missing required parameter")
	ErrBatchTooLarge    = errors.New("too many files in upload batch")
)

// RelayError is a custom error type with additional context.
type RelayError struct {
	Op      string // Operation that failed
	Kind    error  // Category of error
	Err     error  // Underlying error
	Details string // Additional details
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", e.Op, e.Kind, e.Err, e.Details)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap returns the underlying error.
func (e *RelayError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error.
func (e *RelayError) Is(target error) bool {
	return errors.Is(e.Kind, target) || errors.Is(e.Err, target)
}

// E creates a new RelayError.
func E(op string, kind error, err error, details ...string) error {
	e := &RelayError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

// Wrap wraps an error with operation context.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RelayError{
		Op:  op,
		Err: err,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsKeyConflict checks if the error is a key conflict error.
func IsKeyConflict(err error) bool {
	return errors.Is(err, ErrKeyConflict)
}

// IsNotSupported checks if the error is a not supported error.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
