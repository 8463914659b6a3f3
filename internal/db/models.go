package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Bucket is a query key (date x time anchor) row. BaselineSlotIDs is nil
// until the bucket's first successful poll.
type Bucket struct {
	BucketID          string
	DateStr           string
	TimeSlot          string
	BaselineSlotIDs   []string
	PrevSlotIDs       []string
	Initialized       bool
	ScannedAt         *time.Time
	BaselineScannedAt *time.Time
	LastError         *string
	CreatedAt         time.Time
}

// BucketHealth is one row of the bucket health summary.
type BucketHealth struct {
	BucketID      string
	ScannedAt     *time.Time
	BaselineCount int
	Stale         bool
	LastError     *string
}

// ProjectionRow is the current-state row for (bucket_id, slot_id).
type ProjectionRow struct {
	BucketID   string
	SlotID     string
	VenueID    int64
	VenueName  string
	State      string // open, closed
	OpenedAt   time.Time
	ClosedAt   *time.Time
	LastSeenAt time.Time
	UpdatedAt  time.Time
}

// Event types.
const (
	EventNewDrop = "NEW_DROP"
	EventClosed  = "CLOSED"
)

// Time-of-day classification used for aggregation grouping.
const (
	TimeBucketPrime   = "prime"
	TimeBucketOffPeak = "off_peak"
)

// Event is an append-only drop event.
type Event struct {
	ID              uuid.UUID
	BucketID        string
	SlotID          string
	VenueID         int64
	VenueName       string
	OpenedAt        time.Time
	EventType       string
	ClosedAt        *time.Time
	DurationSeconds *int64
	TimeBucket      string
	SlotDate        string
	SlotTime        string
	Payload         json.RawMessage
	DedupeKey       string
	CreatedAt       time.Time
}

// Session is one row per contiguous open window for a slot.
type Session struct {
	ID              uuid.UUID
	BucketID        string
	SlotID          string
	VenueID         int64
	OpenedAt        time.Time
	ClosedAt        *time.Time
	DurationSeconds *int64
	AggregatedAt    *time.Time
	CreatedAt       time.Time
}

// VenueMetrics is the per-venue rolling aggregate, keyed by (venue_id, as_of_date).
type VenueMetrics struct {
	VenueID            int64
	AsOfDate           time.Time
	NewDropCount       int64
	PrimeTimeDrops     int64
	AvgDurationSeconds float64
	RarityScore        float64
	AvailabilityRate   float64
	UpdatedAt          time.Time
}

// MarketMetrics is the (window_date, metric_type) aggregate.
type MarketMetrics struct {
	WindowDate time.Time
	MetricType string
	Value      json.RawMessage
	UpdatedAt  time.Time
}

// JobHeartbeat is the scheduler's single-row status record.
type JobHeartbeat struct {
	ID                int32
	LastTickAt        *time.Time
	NextTickAt        *time.Time
	LastError         *string
	BaselineEchoTotal int64
	PrevEchoTotal     int64
	UpdatedAt         time.Time
}
