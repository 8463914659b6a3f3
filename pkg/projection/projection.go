// Package projection maintains the "what is currently open" table, keyed by
// (bucket_id, slot_id). Writes are guarded by an apply-if-newer upsert so
// reordered writes from retried polls never regress the projection.
package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/wisbric/slotwatch/internal/db"
)

// Row mirrors a projection table row for read-side consumers.
type Row struct {
	BucketID   string
	SlotID     string
	VenueID    int64
	VenueName  string
	State      string
	OpenedAt   time.Time
	ClosedAt   *time.Time
	LastSeenAt time.Time
	UpdatedAt  time.Time
}

// Store provides projection operations over an explicit DB session.
type Store struct {
	q *db.Queries
}

// NewStore creates a Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// Open applies the apply-if-newer open upsert for one slot.
func (s *Store) Open(ctx context.Context, bucketID, slotID string, venueID int64, venueName string, now time.Time) error {
	return s.q.UpsertOpen(ctx, db.UpsertOpenParams{
		BucketID:  bucketID,
		SlotID:    slotID,
		VenueID:   venueID,
		VenueName: venueName,
		Now:       now,
	})
}

// Close transitions a projection row to closed.
func (s *Store) Close(ctx context.Context, bucketID, slotID string, now time.Time) error {
	return s.q.MarkClosed(ctx, bucketID, slotID, now)
}

// DeleteClosed removes a closed projection row once the Aggregator has
// consumed its session, keeping the projection currently-open-only.
func (s *Store) DeleteClosed(ctx context.Context, bucketID, slotID string) error {
	return s.q.DeleteClosedRow(ctx, bucketID, slotID)
}

// StillOpen returns currently-open rows excluding stale buckets and baseline
// slots, most recently opened first, capped at limit.
func (s *Store) StillOpen(ctx context.Context, staleHorizon time.Duration, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("still-open query requires a positive limit")
	}
	rows, err := s.q.StillOpen(ctx, staleHorizon, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			BucketID:   r.BucketID,
			SlotID:     r.SlotID,
			VenueID:    r.VenueID,
			VenueName:  r.VenueName,
			State:      r.State,
			OpenedAt:   r.OpenedAt,
			ClosedAt:   r.ClosedAt,
			LastSeenAt: r.LastSeenAt,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return out, nil
}

// PruneBefore deletes projection rows for buckets before today.
func (s *Store) PruneBefore(ctx context.Context, today time.Time) (int64, error) {
	return s.q.PruneProjectionBefore(ctx, today.Format("2006-01-02"))
}
