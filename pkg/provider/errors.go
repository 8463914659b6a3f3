package provider

import "errors"

// Transient errors are retried once by the Poll Worker, then deferred to the
// next tick without touching bucket state. Fatal errors stop that bucket's
// poll but never the scheduler.
var (
	// ErrTimeout marks a fetch that exceeded its deadline.
	ErrTimeout = errors.New("provider: request timed out")
	// ErrTransient marks a retryable network or parse failure.
	ErrTransient = errors.New("provider: transient failure")
	// ErrFatal marks a non-retryable failure (auth, bad request shape).
	ErrFatal = errors.New("provider: fatal failure")
)
