package aggregate

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/slotwatch/internal/db"
)

func TestRarityScore_Bounds(t *testing.T) {
	if got := rarityScore(0); got != 1 {
		t.Fatalf("rarityScore(0) = %v, want 1", got)
	}
	if got := rarityScore(1); got != 1 {
		t.Fatalf("rarityScore(1) = %v, want 1", got)
	}
	if got := rarityScore(10); got <= 0 || got >= 1 {
		t.Fatalf("rarityScore(10) = %v, want in (0,1)", got)
	}
}

func TestAvailabilityRate_Bounds(t *testing.T) {
	if got := availabilityRate(0, 0); got != 0 {
		t.Fatalf("availabilityRate(0,0) = %v, want 0", got)
	}
	if got := availabilityRate(24*60*60*10, 5); got != 1 {
		t.Fatalf("availabilityRate should cap at 1, got %v", got)
	}
	if got := availabilityRate(12*60*60, 1); got != 0.5 {
		t.Fatalf("availabilityRate(12h,1) = %v, want 0.5", got)
	}
}

// TestGroupClosedSessions_MarksClosedForDeletion exercises, without a live
// database, the same decision Aggregator.Run makes about which projection
// rows to delete: every closed, unaggregated session it groups for the
// metrics upsert must also come back in toDelete, and a still-open session
// (no closed_at/duration yet) must be excluded from both.
func TestGroupClosedSessions_MarksClosedForDeletion(t *testing.T) {
	closedAt := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)
	duration := int64(900)

	closed := db.Session{
		ID:              uuid.New(),
		BucketID:        "2026-07-29_19:00",
		SlotID:          "venue-42_party-2",
		VenueID:         42,
		OpenedAt:        closedAt.Add(-15 * time.Minute),
		ClosedAt:        &closedAt,
		DurationSeconds: &duration,
	}
	stillOpen := db.Session{
		ID:       uuid.New(),
		BucketID: "2026-07-29_19:00",
		SlotID:   "venue-7_party-4",
		VenueID:  7,
		OpenedAt: closedAt.Add(-5 * time.Minute),
	}

	groups, toDelete := groupClosedSessions([]db.Session{closed, stillOpen})

	if len(toDelete) != 1 || toDelete[0].ID != closed.ID {
		t.Fatalf("toDelete = %+v, want exactly the closed session", toDelete)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %+v, want exactly one venue group", groups)
	}
	for _, g := range groups {
		if g.venueID != closed.VenueID {
			t.Fatalf("group venueID = %d, want %d", g.venueID, closed.VenueID)
		}
		if g.newDropCount != 1 {
			t.Fatalf("group newDropCount = %d, want 1", g.newDropCount)
		}
		if g.totalSeconds != duration {
			t.Fatalf("group totalSeconds = %d, want %d", g.totalSeconds, duration)
		}
	}
}
