// Package aggregate implements the Aggregator: on session close, rolls
// closed availability sessions up into durable per-venue/market metrics,
// exactly once per session via the aggregated_at stamp.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/slotwatch/internal/db"
	"github.com/wisbric/slotwatch/pkg/event"
	"github.com/wisbric/slotwatch/pkg/projection"
)

// BatchSize bounds how many unaggregated sessions one Run call consumes,
// keeping the aggregation transaction short.
const BatchSize = 500

// Aggregator rolls closed sessions into venue/market metrics.
type Aggregator struct {
	pool *pgxpool.Pool
	runs prometheus.Counter
}

// NewAggregator constructs an Aggregator.
func NewAggregator(pool *pgxpool.Pool, runsCounter prometheus.Counter) *Aggregator {
	return &Aggregator{pool: pool, runs: runsCounter}
}

type venueGroup struct {
	venueID      int64
	asOfDate     time.Time
	newDropCount int64
	primeDrops   int64
	totalSeconds int64
	sessionIDs   []uuid.UUID
}

// groupClosedSessions groups closed, unaggregated sessions by (venue_id,
// as_of_date) for the metrics upsert, and separately returns every such
// session so its projection row can be deleted once aggregated. Sessions
// with no closed_at/duration_seconds are still open and are skipped
// entirely: they have nothing to aggregate and no projection row to clear.
func groupClosedSessions(sessions []db.Session) (groups map[string]*venueGroup, toDelete []db.Session) {
	groups = make(map[string]*venueGroup)
	for _, s := range sessions {
		if s.ClosedAt == nil || s.DurationSeconds == nil {
			continue
		}
		asOfDate := time.Date(s.OpenedAt.Year(), s.OpenedAt.Month(), s.OpenedAt.Day(), 0, 0, 0, 0, time.UTC)
		key := fmt.Sprintf("%d|%s", s.VenueID, asOfDate.Format("2006-01-02"))
		g, ok := groups[key]
		if !ok {
			g = &venueGroup{venueID: s.VenueID, asOfDate: asOfDate}
			groups[key] = g
		}
		g.newDropCount++
		if event.TimeBucket(s.OpenedAt) == "prime" {
			g.primeDrops++
		}
		g.totalSeconds += *s.DurationSeconds
		g.sessionIDs = append(g.sessionIDs, s.ID)

		toDelete = append(toDelete, s)
	}
	return groups, toDelete
}

// Run reads closed, unaggregated sessions with bucket_id < cutoff, groups
// them by (venue_id, window_date), upserts venue metrics, and in the same
// transaction stamps aggregated_at on every session consumed. If the upsert
// fails the sessions remain unaggregated and are retried next run.
func (a *Aggregator) Run(ctx context.Context, cutoff string) (aggregated int, err error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning aggregation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := db.New(tx)
	sessions, err := q.UnaggregatedSessionsBefore(ctx, cutoff, BatchSize)
	if err != nil {
		return 0, fmt.Errorf("reading unaggregated sessions: %w", err)
	}
	if len(sessions) == 0 {
		return 0, tx.Commit(ctx)
	}

	groups, toDelete := groupClosedSessions(sessions)

	// The projection row for each closed, now-aggregated session is only the
	// "currently open" view; once its session is rolled up it has nothing
	// left to project, so it is deleted in the same transaction as the
	// metrics upsert and the aggregated_at stamp below.
	projStore := projection.NewStore(tx)
	for _, s := range toDelete {
		if err := projStore.DeleteClosed(ctx, s.BucketID, s.SlotID); err != nil {
			return 0, fmt.Errorf("deleting closed projection row for %s/%s: %w", s.BucketID, s.SlotID, err)
		}
	}

	now := time.Now().UTC()
	var allIDs []uuid.UUID
	for _, g := range groups {
		avgDuration := float64(0)
		if g.newDropCount > 0 {
			avgDuration = float64(g.totalSeconds) / float64(g.newDropCount)
		}
		rarity := rarityScore(g.newDropCount)
		availability := availabilityRate(g.totalSeconds, g.newDropCount)

		if err := q.UpsertVenueMetrics(ctx, db.UpsertVenueMetricsParams{
			VenueID:            g.venueID,
			AsOfDate:           g.asOfDate,
			NewDropCount:       g.newDropCount,
			PrimeTimeDrops:     g.primeDrops,
			AvgDurationSeconds: avgDuration,
			RarityScore:        rarity,
			AvailabilityRate:   availability,
		}, now); err != nil {
			// Failure here leaves every session in this group unaggregated;
			// the transaction rolls back via the deferred Rollback and the
			// whole batch is retried next cycle, never partially applied.
			return 0, fmt.Errorf("upserting venue metrics for venue %d: %w", g.venueID, err)
		}
		allIDs = append(allIDs, g.sessionIDs...)
	}

	marketValue, _ := json.Marshal(map[string]int{"sessions_aggregated": len(sessions)})
	if err := q.UpsertMarketMetrics(ctx, now.Truncate(24*time.Hour), "daily_rollup", marketValue, now); err != nil {
		return 0, fmt.Errorf("upserting market metrics: %w", err)
	}

	if err := q.MarkSessionsAggregated(ctx, allIDs, now); err != nil {
		return 0, fmt.Errorf("marking sessions aggregated: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing aggregation transaction: %w", err)
	}

	a.runs.Inc()
	return len(allIDs), nil
}

// rarityScore is a simple inverse-frequency score: venues with fewer drops
// in the window are "rarer" finds. Bounded to [0, 1].
func rarityScore(newDropCount int64) float64 {
	if newDropCount <= 0 {
		return 1
	}
	score := 1 / float64(newDropCount)
	if score > 1 {
		score = 1
	}
	return score
}

// availabilityRate approximates the fraction of the aggregation window a
// venue's slots were open, derived from total open-seconds across sessions.
func availabilityRate(totalSeconds, sessionCount int64) float64 {
	if sessionCount == 0 {
		return 0
	}
	const windowSeconds = 24 * 60 * 60
	rate := float64(totalSeconds) / float64(windowSeconds)
	if rate > 1 {
		rate = 1
	}
	return rate
}
