package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertVenueMetricsParams is one (venue_id, as_of_date) aggregate write.
type UpsertVenueMetricsParams struct {
	VenueID            int64
	AsOfDate           time.Time
	NewDropCount       int64
	PrimeTimeDrops     int64
	AvgDurationSeconds float64
	RarityScore        float64
	AvailabilityRate   float64
}

// UpsertVenueMetrics adds the given increments into the existing row for
// (venue_id, as_of_date), or creates it. Idempotent only in combination with
// the aggregated_at stamp on the sessions that produced the increments.
func (q *Queries) UpsertVenueMetrics(ctx context.Context, p UpsertVenueMetricsParams, now time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO venue_metrics (venue_id, as_of_date, new_drop_count, prime_time_drops,
		                           avg_duration_seconds, rarity_score, availability_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (venue_id, as_of_date) DO UPDATE
		SET new_drop_count = venue_metrics.new_drop_count + EXCLUDED.new_drop_count,
		    prime_time_drops = venue_metrics.prime_time_drops + EXCLUDED.prime_time_drops,
		    avg_duration_seconds = (venue_metrics.avg_duration_seconds * venue_metrics.new_drop_count
		                            + EXCLUDED.avg_duration_seconds * EXCLUDED.new_drop_count)
		                           / GREATEST(venue_metrics.new_drop_count + EXCLUDED.new_drop_count, 1),
		    rarity_score = EXCLUDED.rarity_score,
		    availability_rate = EXCLUDED.availability_rate,
		    updated_at = EXCLUDED.updated_at
	`, p.VenueID, p.AsOfDate, p.NewDropCount, p.PrimeTimeDrops, p.AvgDurationSeconds, p.RarityScore, p.AvailabilityRate, now)
	if err != nil {
		return fmt.Errorf("upserting venue metrics for venue %d: %w", p.VenueID, err)
	}
	return nil
}

// UpsertMarketMetrics adds value's sessions_aggregated count into the
// existing row for (window_date, metric_type), or creates it. Mirrors
// UpsertVenueMetrics's accumulate-on-conflict behavior so a retried daily
// job adds to the running total instead of overwriting it.
func (q *Queries) UpsertMarketMetrics(ctx context.Context, windowDate time.Time, metricType string, value json.RawMessage, now time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO market_metrics (window_date, metric_type, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (window_date, metric_type) DO UPDATE
		SET value = jsonb_set(
		                market_metrics.value,
		                '{sessions_aggregated}',
		                to_jsonb(
		                    COALESCE((market_metrics.value->>'sessions_aggregated')::bigint, 0)
		                    + COALESCE((EXCLUDED.value->>'sessions_aggregated')::bigint, 0)
		                ),
		                true
		            ),
		    updated_at = EXCLUDED.updated_at
	`, windowDate, metricType, ensureJSON(value), now)
	if err != nil {
		return fmt.Errorf("upserting market metrics for %s: %w", metricType, err)
	}
	return nil
}

// PruneVenueMetricsBefore deletes venue metrics rows older than cutoff.
func (q *Queries) PruneVenueMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM venue_metrics WHERE as_of_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning venue metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneMarketMetricsBefore deletes market metrics rows older than cutoff.
func (q *Queries) PruneMarketMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM market_metrics WHERE window_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning market metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}
