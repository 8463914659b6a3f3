package db

import (
	"context"
	"fmt"
	"time"
)

// UpsertOpenParams is one slot transitioning to (or remaining) open.
type UpsertOpenParams struct {
	BucketID  string
	SlotID    string
	VenueID   int64
	VenueName string
	Now       time.Time
}

// UpsertOpen applies the apply-if-newer projection upsert for a slot that
// just appeared in curr_set. The WHERE guard rejects the write if a newer
// row already exists, so out-of-order writes are a safe no-op.
func (q *Queries) UpsertOpen(ctx context.Context, p UpsertOpenParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO projection (bucket_id, slot_id, venue_id, venue_name, state, opened_at, last_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, 'open', $5, $5, $5)
		ON CONFLICT (bucket_id, slot_id) DO UPDATE
		SET venue_id = EXCLUDED.venue_id,
		    venue_name = EXCLUDED.venue_name,
		    state = 'open',
		    opened_at = CASE WHEN projection.state = 'open' THEN projection.opened_at ELSE EXCLUDED.opened_at END,
		    last_seen_at = EXCLUDED.last_seen_at,
		    updated_at = EXCLUDED.updated_at
		WHERE projection.updated_at < EXCLUDED.updated_at
	`, p.BucketID, p.SlotID, p.VenueID, p.VenueName, p.Now)
	if err != nil {
		return fmt.Errorf("upserting open projection (%s,%s): %w", p.BucketID, p.SlotID, err)
	}
	return nil
}

// MarkClosed transitions a projection row to closed. It is the apply-if-newer
// counterpart to UpsertOpen for slots that left curr_set.
func (q *Queries) MarkClosed(ctx context.Context, bucketID, slotID string, now time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE projection
		SET state = 'closed', closed_at = $3, updated_at = $3
		WHERE bucket_id = $1 AND slot_id = $2 AND updated_at < $3
	`, bucketID, slotID, now)
	if err != nil {
		return fmt.Errorf("marking projection closed (%s,%s): %w", bucketID, slotID, err)
	}
	return nil
}

// DeleteClosedRow removes a projection row once the Aggregator has consumed
// its session, keeping the projection "currently open only".
func (q *Queries) DeleteClosedRow(ctx context.Context, bucketID, slotID string) error {
	_, err := q.db.Exec(ctx, `
		DELETE FROM projection WHERE bucket_id = $1 AND slot_id = $2 AND state = 'closed'
	`, bucketID, slotID)
	if err != nil {
		return fmt.Errorf("deleting closed projection row (%s,%s): %w", bucketID, slotID, err)
	}
	return nil
}

// StillOpenParams bounds a "still open in window" feed query.
type StillOpenParams struct {
	ExcludeBaselineSlotIDs []string // slots present since baseline, excluded per spec.md §4.10
	Limit                  int
}

// StillOpen returns currently-open projection rows, most recently opened
// first, excluding stale buckets and any slot present in its bucket's
// baseline set.
func (q *Queries) StillOpen(ctx context.Context, staleHorizon time.Duration, limit int) ([]ProjectionRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.bucket_id, p.slot_id, p.venue_id, p.venue_name, p.state, p.opened_at, p.closed_at, p.last_seen_at, p.updated_at
		FROM projection p
		JOIN buckets b ON b.bucket_id = p.bucket_id
		WHERE p.state = 'open'
		  AND b.scanned_at IS NOT NULL
		  AND b.scanned_at >= now() - $1::interval
		  AND NOT (b.baseline_slot_ids @> to_jsonb(p.slot_id::text))
		ORDER BY p.opened_at DESC
		LIMIT $2
	`, staleHorizon, limit)
	if err != nil {
		return nil, fmt.Errorf("querying still-open projection: %w", err)
	}
	defer rows.Close()

	var out []ProjectionRow
	for rows.Next() {
		var r ProjectionRow
		if err := rows.Scan(&r.BucketID, &r.SlotID, &r.VenueID, &r.VenueName, &r.State, &r.OpenedAt, &r.ClosedAt, &r.LastSeenAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning still-open row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneProjectionBefore deletes projection rows for buckets before today,
// part of the bounded 14-day retention window.
func (q *Queries) PruneProjectionBefore(ctx context.Context, today string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM projection WHERE bucket_id < $1
	`, today)
	if err != nil {
		return 0, fmt.Errorf("pruning projection: %w", err)
	}
	return tag.RowsAffected(), nil
}
