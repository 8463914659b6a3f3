package event

import (
	"testing"
	"time"
)

func TestDedupeKey_MinuteTruncated(t *testing.T) {
	ts := time.Date(2026, 2, 18, 20, 0, 45, 0, time.UTC)
	got := DedupeKey("2026-02-18_19:00", "sid99", ts)
	want := "2026-02-18_19:00|sid99|2026-02-18T20:00"
	if got != want {
		t.Fatalf("DedupeKey() = %q, want %q", got, want)
	}
}

func TestDedupeKey_MatchesSpecExample(t *testing.T) {
	ts := time.Date(2026, 2, 18, 20, 0, 0, 0, time.UTC)
	got := DedupeKey("2026-02-18_19:00", "sid99", ts)
	want := "2026-02-18_19:00|sid99|2026-02-18T20:00"
	if got != want {
		t.Fatalf("DedupeKey() = %q, want %q", got, want)
	}
}

func TestTimeBucket_Prime(t *testing.T) {
	ts := time.Date(2026, 2, 18, 19, 0, 0, 0, time.UTC)
	if got := TimeBucket(ts); got != "prime" {
		t.Fatalf("TimeBucket() = %q, want prime", got)
	}
}

func TestTimeBucket_OffPeak(t *testing.T) {
	ts := time.Date(2026, 2, 18, 11, 30, 0, 0, time.UTC)
	if got := TimeBucket(ts); got != "off_peak" {
		t.Fatalf("TimeBucket() = %q, want off_peak", got)
	}
}

func TestTimeBucket_Boundary(t *testing.T) {
	start := time.Date(2026, 2, 18, 17, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 18, 21, 0, 0, 0, time.UTC)
	if got := TimeBucket(start); got != "prime" {
		t.Fatalf("TimeBucket(17:00) = %q, want prime", got)
	}
	if got := TimeBucket(end); got != "off_peak" {
		t.Fatalf("TimeBucket(21:00) = %q, want off_peak (exclusive upper bound)", got)
	}
}
