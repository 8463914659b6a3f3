// Package retention prunes rows that have aged out of their configured
// horizons, per spec.md §4.9. Sessions that have not yet been aggregated are
// never deleted regardless of age; events are pruned by age alone.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/slotwatch/internal/db"
	"github.com/wisbric/slotwatch/internal/telemetry"
)

// Policy carries the configured retention horizons.
type Policy struct {
	BucketWindowDays int
	EventRetention   time.Duration
	SessionRetention time.Duration
	MetricsRetention time.Duration
}

// Report counts rows deleted per table, for logging and metrics.
type Report struct {
	Buckets       int64
	Projection    int64
	Events        int64
	Sessions      int64
	VenueMetrics  int64
	MarketMetrics int64
}

// Retention prunes aged-out rows table by table.
type Retention struct {
	pool   *pgxpool.Pool
	policy Policy
}

// New constructs a Retention.
func New(pool *pgxpool.Pool, policy Policy) *Retention {
	return &Retention{pool: pool, policy: policy}
}

// Run deletes rows past their retention horizon, relative to asOf. Each
// table is pruned independently; a failure on one table does not block the
// others, matching spec.md's "best effort per table" retention model.
func (r *Retention) Run(ctx context.Context, asOf time.Time) (Report, error) {
	q := db.New(r.pool)
	var report Report
	var firstErr error

	note := func(err error, label string) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pruning %s: %w", label, err)
		}
	}

	todayStr := asOf.Format("2006-01-02")
	n, err := q.PruneOldBuckets(ctx, todayStr)
	note(err, "buckets")
	report.Buckets = n

	n, err = q.PruneProjectionBefore(ctx, todayStr)
	note(err, "projection")
	report.Projection = n

	eventsCutoff := asOf.Add(-r.policy.EventRetention)
	n, err = q.PruneEventsBefore(ctx, eventsCutoff)
	note(err, "events")
	report.Events = n

	sessionsCutoff := asOf.Add(-r.policy.SessionRetention)
	n, err = q.PruneSessionsBefore(ctx, sessionsCutoff)
	note(err, "sessions")
	report.Sessions = n

	metricsCutoff := asOf.Add(-r.policy.MetricsRetention)
	n, err = q.PruneVenueMetricsBefore(ctx, metricsCutoff)
	note(err, "venue_metrics")
	report.VenueMetrics = n

	n, err = q.PruneMarketMetricsBefore(ctx, metricsCutoff)
	note(err, "market_metrics")
	report.MarketMetrics = n

	for table, count := range map[string]int64{
		"buckets":        report.Buckets,
		"projection":     report.Projection,
		"events":         report.Events,
		"sessions":       report.Sessions,
		"venue_metrics":  report.VenueMetrics,
		"market_metrics": report.MarketMetrics,
	} {
		telemetry.RetentionDeletedRowsTotal.WithLabelValues(table).Add(float64(count))
	}

	return report, firstErr
}
