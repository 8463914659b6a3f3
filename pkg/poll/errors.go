package poll

import "errors"

// Error kinds the Poll Worker and Scheduler branch on via errors.Is, never
// by matching strings.
var (
	// ErrLeaseHeld means another worker already holds this bucket's lease;
	// the caller should return immediately without touching bucket state.
	ErrLeaseHeld = errors.New("poll: bucket lease held by another worker")
	// ErrProviderTimeout wraps a provider fetch that exceeded its deadline.
	ErrProviderTimeout = errors.New("poll: provider fetch timed out")
	// ErrProviderFatal wraps a non-retryable provider failure (auth, bad request).
	ErrProviderFatal = errors.New("poll: provider fetch failed fatally")
	// ErrUnknownProvider means the configured provider_id has no registered adapter.
	ErrUnknownProvider = errors.New("poll: no adapter registered for provider")
)
