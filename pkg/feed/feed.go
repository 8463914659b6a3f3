// Package feed implements the Feed Reader: the two read-only queries
// consumers poll to build their own views, "just opened since" and
// "currently still open" (spec.md §4.10).
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/slotwatch/internal/db"
	"github.com/wisbric/slotwatch/pkg/event"
	"github.com/wisbric/slotwatch/pkg/projection"
)

// Reader serves the Feed Reader's two read-only queries. maxLimit and
// defaultLimit come from config (FEED_MAX_LIMIT / FEED_DEFAULT_LIMIT)
// rather than being fixed at compile time.
type Reader struct {
	events       *event.Store
	projection   *projection.Store
	maxLimit     int
	defaultLimit int
}

// NewReader constructs a Reader over the given pool, bounding every query
// to [1, maxLimit] and falling back to defaultLimit when a caller passes
// limit <= 0.
func NewReader(pool *pgxpool.Pool, maxLimit, defaultLimit int) *Reader {
	return &Reader{
		events:       event.NewStore(pool),
		projection:   projection.NewStore(pool),
		maxLimit:     maxLimit,
		defaultLimit: defaultLimit,
	}
}

func clampLimit(limit, maxLimit, defaultLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// JustOpened returns NEW_DROP events at or after since, most recent first.
func (r *Reader) JustOpened(ctx context.Context, since time.Time, limit int) ([]db.Event, error) {
	events, err := r.events.JustOpened(ctx, since, clampLimit(limit, r.maxLimit, r.defaultLimit))
	if err != nil {
		return nil, fmt.Errorf("reading just-opened feed: %w", err)
	}
	return events, nil
}

// StillOpen returns currently-open slots, excluding stale buckets and
// baseline-only slots (both filtered at the query layer), most recently
// opened first.
func (r *Reader) StillOpen(ctx context.Context, staleHorizon time.Duration, limit int) ([]projection.Row, error) {
	rows, err := r.projection.StillOpen(ctx, staleHorizon, clampLimit(limit, r.maxLimit, r.defaultLimit))
	if err != nil {
		return nil, fmt.Errorf("reading still-open feed: %w", err)
	}
	return rows, nil
}
