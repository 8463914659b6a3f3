// Package bucket implements the Bucket Registry: the fixed set of query keys
// (date x time-of-day anchor) polled over the rolling window, and its
// lifecycle operations.
package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/wisbric/slotwatch/internal/db"
)

// Health is a bucket's scan-recency summary, returned by GetHealth.
type Health struct {
	BucketID      string
	ScannedAt     *time.Time
	BaselineCount int
	Stale         bool
	LastError     *string
}

// Registry provides bucket lifecycle operations over an explicit DB session.
type Registry struct {
	q *db.Queries
}

// NewRegistry creates a Registry backed by the given database connection.
func NewRegistry(dbtx db.DBTX) *Registry {
	return &Registry{q: db.New(dbtx)}
}

// ID formats a bucket_id as the zero-padded "YYYY-MM-DD_HH:MM" string that is
// also lexicographically date-ordered.
func ID(dateStr, timeSlot string) string {
	return fmt.Sprintf("%s_%s", dateStr, timeSlot)
}

// EnsureWindow computes the required bucket_id set for [today, today+windowDays)
// x timeSlots and inserts any missing rows in one bulk statement. It never
// issues a per-bucket round trip.
func (r *Registry) EnsureWindow(ctx context.Context, today time.Time, windowDays int, timeSlots []string) (inserted int64, err error) {
	rows := make([]db.EnsureBucketsParams, 0, windowDays*len(timeSlots))
	for d := 0; d < windowDays; d++ {
		dateStr := today.AddDate(0, 0, d).Format("2006-01-02")
		for _, ts := range timeSlots {
			rows = append(rows, db.EnsureBucketsParams{
				BucketID: ID(dateStr, ts),
				DateStr:  dateStr,
				TimeSlot: ts,
			})
		}
	}

	n, err := r.q.EnsureBuckets(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("ensuring bucket window: %w", err)
	}
	return n, nil
}

// PruneOld deletes buckets whose date_str is before today.
func (r *Registry) PruneOld(ctx context.Context, today time.Time) (int64, error) {
	n, err := r.q.PruneOldBuckets(ctx, today.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("pruning old buckets: %w", err)
	}
	return n, nil
}

// GetHealth returns scan-recency health for every bucket.
func (r *Registry) GetHealth(ctx context.Context, staleHorizon time.Duration) ([]Health, error) {
	rows, err := r.q.GetBucketHealth(ctx, staleHorizon)
	if err != nil {
		return nil, fmt.Errorf("fetching bucket health: %w", err)
	}

	out := make([]Health, len(rows))
	for i, row := range rows {
		out[i] = Health{
			BucketID:      row.BucketID,
			ScannedAt:     row.ScannedAt,
			BaselineCount: row.BaselineCount,
			Stale:         row.Stale,
			LastError:     row.LastError,
		}
	}
	return out, nil
}

// EligibleForPoll returns bucket_ids not scanned within cooldown, the
// scheduler tick's dispatch candidate set.
func (r *Registry) EligibleForPoll(ctx context.Context, cooldown time.Duration) ([]string, error) {
	ids, err := r.q.ListEligibleBucketIDs(ctx, cooldown)
	if err != nil {
		return nil, fmt.Errorf("listing eligible buckets: %w", err)
	}
	return ids, nil
}

// Reset deletes every bucket and drop event; the next tick re-creates
// buckets and the next poll per bucket bootstraps a fresh baseline.
func (r *Registry) Reset(ctx context.Context) error {
	if err := r.q.DeleteAllEvents(ctx); err != nil {
		return fmt.Errorf("resetting buckets: %w", err)
	}
	if err := r.q.DeleteAllBuckets(ctx); err != nil {
		return fmt.Errorf("resetting buckets: %w", err)
	}
	return nil
}

// ListIDs returns every known bucket_id.
func (r *Registry) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := r.q.ListBucketIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bucket ids: %w", err)
	}
	return ids, nil
}
