package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertNewDropParams is one NEW_DROP event candidate.
type InsertNewDropParams struct {
	BucketID   string
	SlotID     string
	VenueID    int64
	VenueName  string
	OpenedAt   time.Time
	TimeBucket string
	SlotDate   string
	SlotTime   string
	Payload    json.RawMessage
	DedupeKey  string
}

// InsertNewDrop appends a NEW_DROP event. ON CONFLICT on dedupe_key makes a
// reprocessed poll idempotent; the conflict case is reported via inserted=false.
func (q *Queries) InsertNewDrop(ctx context.Context, p InsertNewDropParams) (inserted bool, err error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO events (id, bucket_id, slot_id, venue_id, venue_name, opened_at,
		                     event_type, time_bucket, slot_date, slot_time, payload, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, 'NEW_DROP', $7, $8, $9, $10, $11)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, uuid.New(), p.BucketID, p.SlotID, p.VenueID, p.VenueName, p.OpenedAt,
		p.TimeBucket, p.SlotDate, p.SlotTime, ensureJSON(p.Payload), p.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("inserting NEW_DROP event %s: %w", p.DedupeKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertClosedParams is one CLOSED event candidate.
type InsertClosedParams struct {
	BucketID        string
	SlotID          string
	VenueID         int64
	VenueName       string
	OpenedAt        time.Time
	ClosedAt        time.Time
	DurationSeconds int64
	TimeBucket      string
	SlotDate        string
	SlotTime        string
	Payload         json.RawMessage
	DedupeKey       string
}

// InsertClosed appends a CLOSED event with the same conflict-idempotency rule.
func (q *Queries) InsertClosed(ctx context.Context, p InsertClosedParams) (inserted bool, err error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO events (id, bucket_id, slot_id, venue_id, venue_name, opened_at,
		                     event_type, closed_at, duration_seconds, time_bucket, slot_date, slot_time, payload, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, 'CLOSED', $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, uuid.New(), p.BucketID, p.SlotID, p.VenueID, p.VenueName, p.OpenedAt,
		p.ClosedAt, p.DurationSeconds, p.TimeBucket, p.SlotDate, p.SlotTime, ensureJSON(p.Payload), p.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("inserting CLOSED event %s: %w", p.DedupeKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

// LatestNewDrop is the result of a batched lookup of the most recent
// NEW_DROP per (bucket_id, slot_id), used when building CLOSED events.
type LatestNewDrop struct {
	SlotID   string
	VenueID  int64
	OpenedAt time.Time
}

// LatestNewDropsForSlots fetches, in one round trip, the most recent NEW_DROP
// event for every slot_id in slotIDs within bucketID. Slots with no prior
// NEW_DROP are simply absent from the result (spec.md §4.4 step 8).
func (q *Queries) LatestNewDropsForSlots(ctx context.Context, bucketID string, slotIDs []string) (map[string]LatestNewDrop, error) {
	if len(slotIDs) == 0 {
		return map[string]LatestNewDrop{}, nil
	}

	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT ON (slot_id) slot_id, venue_id, opened_at
		FROM events
		WHERE bucket_id = $1 AND slot_id = ANY($2::text[]) AND event_type = 'NEW_DROP'
		ORDER BY slot_id, opened_at DESC
	`, bucketID, slotIDs)
	if err != nil {
		return nil, fmt.Errorf("batch-querying latest NEW_DROP events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]LatestNewDrop, len(slotIDs))
	for rows.Next() {
		var d LatestNewDrop
		if err := rows.Scan(&d.SlotID, &d.VenueID, &d.OpenedAt); err != nil {
			return nil, fmt.Errorf("scanning latest NEW_DROP row: %w", err)
		}
		out[d.SlotID] = d
	}
	return out, rows.Err()
}

// ExistsRecentNewDrop reports whether a NEW_DROP for (bucket_id, slot_id)
// was recorded within the dedupe window: the TTL-dedupe check's DB fallback
// when the Redis hot path misses or is unavailable.
func (q *Queries) ExistsRecentNewDrop(ctx context.Context, bucketID, slotID string, within time.Duration) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE bucket_id = $1 AND slot_id = $2 AND event_type = 'NEW_DROP'
			  AND opened_at >= now() - $3::interval
		)
	`, bucketID, slotID, within).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking recent NEW_DROP dedupe: %w", err)
	}
	return exists, nil
}

// JustOpened returns NEW_DROP events since a cursor, most recent first, capped.
func (q *Queries) JustOpened(ctx context.Context, since time.Time, limit int) ([]Event, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, bucket_id, slot_id, venue_id, venue_name, opened_at, event_type,
		       closed_at, duration_seconds, time_bucket, slot_date, slot_time, payload, dedupe_key, created_at
		FROM events
		WHERE event_type = 'NEW_DROP' AND opened_at >= $1
		ORDER BY opened_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying just-opened events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.BucketID, &e.SlotID, &e.VenueID, &e.VenueName, &e.OpenedAt, &e.EventType,
			&e.ClosedAt, &e.DurationSeconds, &e.TimeBucket, &e.SlotDate, &e.SlotTime, &e.Payload, &e.DedupeKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneEventsBefore deletes events older than cutoff, the retention job's
// events pass.
func (q *Queries) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllEvents deletes every event row, the events half of the "reset
// buckets" admin operation.
func (q *Queries) DeleteAllEvents(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("deleting all events: %w", err)
	}
	return nil
}

// ensureJSON returns raw if non-empty and not the literal "null", else "{}".
func ensureJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
