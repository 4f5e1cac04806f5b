package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound is returned when a stored artifact no longer exists, and
	// when an encrypted locator cannot be opened because no key is
	// configured. Decoding fails closed: a client can never distinguish
	// "missing" from "undecryptable".
	ErrNotFound = errors.New("report artifact not found")

	// ErrInvalidLocator is returned when a persisted locator string cannot
	// be parsed for its scheme.
	ErrInvalidLocator = errors.New("invalid storage locator")

	// ErrInvalidKey is returned when a storage key or path segment contains
	// forbidden characters (e.g., path traversal attempts like "../").
	ErrInvalidKey = errors.New("invalid storage key")
)

// =============================================================================
// Structured Error Type
// =============================================================================

// StorageError wraps storage operation errors with additional context.
// It supports errors.Unwrap for sentinel checking with errors.Is().
type StorageError struct {
	// Op is the operation that failed (e.g., "Store", "Load", "Remove").
	Op string

	// Key is the storage key or locator involved in the operation.
	Key string

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and
// errors.As().
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing artifact.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
