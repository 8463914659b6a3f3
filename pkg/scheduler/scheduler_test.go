package scheduler

import (
	"testing"
	"time"
)

func TestParseBucketID(t *testing.T) {
	date, slot, ok := parseBucketID("2026-02-18_19:00")
	if !ok || date != "2026-02-18" || slot != "19:00" {
		t.Fatalf("parseBucketID = %q, %q, %v", date, slot, ok)
	}
}

func TestParseBucketID_Malformed(t *testing.T) {
	if _, _, ok := parseBucketID("not-a-bucket-id"); ok {
		t.Fatal("expected ok=false for malformed bucket id")
	}
}

func TestIsDailyJobTime(t *testing.T) {
	base := time.Date(2026, 2, 18, 2, 5, 0, 0, time.UTC)
	if !isDailyJobTime(base, "02:05") {
		t.Fatal("expected true at exact configured time")
	}
	if !isDailyJobTime(base.Add(10*time.Minute), "02:05") {
		t.Fatal("expected true after configured time")
	}
	if isDailyJobTime(base.Add(-time.Minute), "02:05") {
		t.Fatal("expected false before configured time")
	}
}
