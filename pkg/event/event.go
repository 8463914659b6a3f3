// Package event implements the append-only drop/session log: NEW_DROP and
// CLOSED events keyed by an idempotent dedupe_key, and the availability
// sessions that track contiguous open windows per slot.
package event

import (
	"fmt"
	"time"
)

// primeStart and primeEnd bound the "prime" dinner window used to classify
// events for aggregation. Outside this window a slot is "off_peak".
const (
	primeStart = 17 * 60 // 17:00 in minutes-of-day
	primeEnd   = 21 * 60 // 21:00 in minutes-of-day
)

// DedupeKey formats the unique idempotency key for a drop event:
// "{bucket_id}|{slot_id}|YYYY-MM-DDTHH:MM", minute-truncated.
func DedupeKey(bucketID, slotID string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%s", bucketID, slotID, ts.UTC().Truncate(time.Minute).Format("2006-01-02T15:04"))
}

// TimeBucket classifies a slot's reservation time as "prime" or "off_peak".
func TimeBucket(actualTime time.Time) string {
	minutes := actualTime.Hour()*60 + actualTime.Minute()
	if minutes >= primeStart && minutes < primeEnd {
		return "prime"
	}
	return "off_peak"
}
