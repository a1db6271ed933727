// Package apperr defines the sentinel errors shared across the capture
// pipeline. Sync-time failures are classified with errors.Is against these.
package apperr

import "errors"

var (
	// ErrNotFound reports a capture or record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded reports that the local queue is saturated with
	// unsynced captures and cannot accept another one. This is the only
	// error surfaced synchronously to the capture caller.
	ErrCapacityExceeded = errors.New("capture queue capacity exceeded")

	// ErrAuth reports a credential acquisition or authorization failure.
	// Fatal for the current sync run only; the next trigger retries.
	ErrAuth = errors.New("authentication failed")

	// ErrTransport reports a network-level failure (timeout, connection
	// error, 5xx). The affected batch is left untouched.
	ErrTransport = errors.New("transport failure")

	// ErrInvalid reports malformed input rejected before persistence.
	ErrInvalid = errors.New("invalid input")
)
