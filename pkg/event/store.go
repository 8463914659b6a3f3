package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wisbric/slotwatch/internal/db"
)

// Store provides event/session log operations over an explicit DB session.
type Store struct {
	q *db.Queries
}

// NewStore creates a Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// NewDrop is one slot to emit as a NEW_DROP event.
type NewDrop struct {
	BucketID  string
	SlotID    string
	VenueID   int64
	VenueName string
	OpenedAt  time.Time
	Payload   json.RawMessage
}

// InsertNewDrop appends a NEW_DROP event. The ON CONFLICT (dedupe_key) rule
// makes a reprocessed poll idempotent regardless of caller retries.
func (s *Store) InsertNewDrop(ctx context.Context, d NewDrop) (inserted bool, err error) {
	slotDate, slotTime := d.OpenedAt.Format("2006-01-02"), d.OpenedAt.Format("15:04")
	return s.q.InsertNewDrop(ctx, db.InsertNewDropParams{
		BucketID:   d.BucketID,
		SlotID:     d.SlotID,
		VenueID:    d.VenueID,
		VenueName:  d.VenueName,
		OpenedAt:   d.OpenedAt,
		TimeBucket: TimeBucket(d.OpenedAt),
		SlotDate:   slotDate,
		SlotTime:   slotTime,
		Payload:    d.Payload,
		DedupeKey:  DedupeKey(d.BucketID, d.SlotID, d.OpenedAt),
	})
}

// Closed is one slot to emit as a CLOSED event, derived from its last NEW_DROP.
type Closed struct {
	BucketID  string
	SlotID    string
	VenueID   int64
	VenueName string
	OpenedAt  time.Time
	ClosedAt  time.Time
	Payload   json.RawMessage
}

// InsertClosed appends a CLOSED event with the same idempotency rule.
func (s *Store) InsertClosed(ctx context.Context, c Closed) (inserted bool, err error) {
	duration := int64(c.ClosedAt.Sub(c.OpenedAt).Seconds())
	slotDate, slotTime := c.OpenedAt.Format("2006-01-02"), c.OpenedAt.Format("15:04")
	return s.q.InsertClosed(ctx, db.InsertClosedParams{
		BucketID:        c.BucketID,
		SlotID:          c.SlotID,
		VenueID:         c.VenueID,
		VenueName:       c.VenueName,
		OpenedAt:        c.OpenedAt,
		ClosedAt:        c.ClosedAt,
		DurationSeconds: duration,
		TimeBucket:      TimeBucket(c.OpenedAt),
		SlotDate:        slotDate,
		SlotTime:        slotTime,
		Payload:         c.Payload,
		DedupeKey:       DedupeKey(c.BucketID, c.SlotID, c.ClosedAt),
	})
}

// LatestNewDropsForSlots batch-fetches the most recent NEW_DROP per slot_id
// within bucketID, for building CLOSED events without N round trips.
func (s *Store) LatestNewDropsForSlots(ctx context.Context, bucketID string, slotIDs []string) (map[string]db.LatestNewDrop, error) {
	return s.q.LatestNewDropsForSlots(ctx, bucketID, slotIDs)
}

// OpenSessionIfAbsent is the idempotent-open operation for a slot in added.
func (s *Store) OpenSessionIfAbsent(ctx context.Context, bucketID, slotID string, venueID int64, openedAt time.Time) (bool, error) {
	return s.q.OpenSessionIfAbsent(ctx, bucketID, slotID, venueID, openedAt)
}

// CloseOpenSession is the idempotent-close operation for a slot in closed.
func (s *Store) CloseOpenSession(ctx context.Context, bucketID, slotID string, closedAt time.Time) (closed bool, durationSeconds int64, err error) {
	return s.q.CloseOpenSession(ctx, bucketID, slotID, closedAt)
}

// JustOpened returns NEW_DROP events since a cursor, most recent first, capped.
func (s *Store) JustOpened(ctx context.Context, since time.Time, limit int) ([]db.Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("just-opened query requires a positive limit")
	}
	return s.q.JustOpened(ctx, since, limit)
}
