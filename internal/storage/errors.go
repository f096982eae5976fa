package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a public path maps to no image record, or
// when a backend object has vanished out from under its record.
var ErrNotFound = errors.New("image not found")

// ConfigError reports a required backend parameter that is missing or
// empty. It is detected before any bytes are transmitted and is never
// retried.
type ConfigError struct {
	Kind  Kind
	Param string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s backend: missing required parameter %q", e.Kind, e.Param)
}

// UploadError is a terminal write failure, surfaced after the retry budget
// is exhausted (where retry applies) or immediately (where it does not).
// It carries the last transport error.
type UploadError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// TransportError is a retrieval-side failure: the backend answered with a
// non-success status or the fetch timed out. It is propagated without
// retry; browsers re-request on their own.
type TransportError struct {
	Kind   Kind
	Status int // HTTP status from the backend, 0 if not applicable
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch from %s failed: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("fetch from %s failed: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
