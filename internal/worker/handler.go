package worker

import (
	"context"
	"errors"
)

// JobHandler processes one queue message type.
type JobHandler interface {
	// Type returns the job type identifier this handler processes. It must
	// match the job_type column on queued rows.
	Type() string

	// Handle executes the job with the given payload. The payload is raw
	// JSON from the queue row and must be unmarshaled by the handler.
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError marks a failure that re-running could never fix, such as an
// unparseable payload. The queue layer does not retry anything in this
// system, but the distinction still matters for log triage.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PermanentError.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps an error as permanent.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether the error (or anything it wraps) is a
// PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
