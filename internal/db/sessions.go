package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OpenSessionIfAbsent inserts a new open session for (bucket_id, slot_id)
// only if one does not already exist, the idempotent-open rule of spec.md
// §4.4 step 9e. Returns opened=false when an open session already existed.
func (q *Queries) OpenSessionIfAbsent(ctx context.Context, bucketID, slotID string, venueID int64, openedAt time.Time) (opened bool, err error) {
	var exists bool
	err = q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sessions WHERE bucket_id = $1 AND slot_id = $2 AND closed_at IS NULL
		)
	`, bucketID, slotID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking open session (%s,%s): %w", bucketID, slotID, err)
	}
	if exists {
		return false, nil
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO sessions (id, bucket_id, slot_id, venue_id, opened_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), bucketID, slotID, venueID, openedAt)
	if err != nil {
		return false, fmt.Errorf("opening session (%s,%s): %w", bucketID, slotID, err)
	}
	return true, nil
}

// CloseOpenSession stamps closed_at/duration_seconds on the open session for
// (bucket_id, slot_id). Returns closed=false (no-op) if no open session exists.
func (q *Queries) CloseOpenSession(ctx context.Context, bucketID, slotID string, closedAt time.Time) (closed bool, durationSeconds int64, err error) {
	var openedAt time.Time
	err = q.db.QueryRow(ctx, `
		SELECT opened_at FROM sessions
		WHERE bucket_id = $1 AND slot_id = $2 AND closed_at IS NULL
		ORDER BY opened_at DESC
		LIMIT 1
		FOR UPDATE
	`, bucketID, slotID).Scan(&openedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("locating open session (%s,%s): %w", bucketID, slotID, err)
	}

	durationSeconds = int64(closedAt.Sub(openedAt).Seconds())
	_, err = q.db.Exec(ctx, `
		UPDATE sessions SET closed_at = $3, duration_seconds = $4
		WHERE bucket_id = $1 AND slot_id = $2 AND closed_at IS NULL
	`, bucketID, slotID, closedAt, durationSeconds)
	if err != nil {
		return false, 0, fmt.Errorf("closing session (%s,%s): %w", bucketID, slotID, err)
	}
	return true, durationSeconds, nil
}

// UnaggregatedSessionsBefore returns closed sessions with aggregated_at IS
// NULL whose bucket_id is before cutoff, the Aggregator's working set.
func (q *Queries) UnaggregatedSessionsBefore(ctx context.Context, cutoff string, limit int) ([]Session, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, bucket_id, slot_id, venue_id, opened_at, closed_at, duration_seconds, aggregated_at, created_at
		FROM sessions
		WHERE aggregated_at IS NULL AND closed_at IS NOT NULL AND bucket_id < $1
		ORDER BY bucket_id
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unaggregated sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.BucketID, &s.SlotID, &s.VenueID, &s.OpenedAt, &s.ClosedAt, &s.DurationSeconds, &s.AggregatedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkSessionsAggregated stamps aggregated_at on the given session ids, in
// the same transaction as the metrics upsert that consumed them.
func (q *Queries) MarkSessionsAggregated(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.Exec(ctx, `
		UPDATE sessions SET aggregated_at = $2 WHERE id = ANY($1::uuid[])
	`, ids, now)
	if err != nil {
		return fmt.Errorf("marking sessions aggregated: %w", err)
	}
	return nil
}

// PruneSessionsBefore deletes aggregated sessions older than cutoff. Never
// deletes an unaggregated session regardless of age.
func (q *Queries) PruneSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM sessions WHERE aggregated_at IS NOT NULL AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
