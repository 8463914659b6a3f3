// Package mock is an in-memory provider.Adapter used by tests and local dev.
// It returns a scripted slot sequence per call, advancing one step on every
// Fetch so callers can script a baseline poll followed by diffs.
package mock

import (
	"context"
	"sync"

	"github.com/wisbric/slotwatch/pkg/provider"
)

// Adapter is a scripted provider.Adapter. Calls is a sequence of responses;
// the Nth call to Fetch returns Calls[min(n, len(Calls)-1)].
type Adapter struct {
	mu    sync.Mutex
	calls int
	Calls [][]provider.NormalizedSlot
}

// New creates a mock Adapter that replays calls in order, repeating the last
// entry once exhausted.
func New(calls ...[]provider.NormalizedSlot) *Adapter {
	return &Adapter{Calls: calls}
}

// ProviderID implements provider.Adapter.
func (a *Adapter) ProviderID() string { return "mock" }

// Fetch implements provider.Adapter.
func (a *Adapter) Fetch(ctx context.Context, q provider.Query) ([]provider.NormalizedSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.Calls) == 0 {
		return nil, nil
	}
	idx := a.calls
	if idx >= len(a.Calls) {
		idx = len(a.Calls) - 1
	}
	a.calls++
	return a.Calls[idx], nil
}
