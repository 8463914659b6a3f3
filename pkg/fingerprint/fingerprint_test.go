package fingerprint

import (
	"testing"
	"time"
)

func TestSlotID_Deterministic(t *testing.T) {
	ts := time.Date(2026, 2, 18, 19, 0, 0, 0, time.UTC)
	a := SlotID("p", 42, ts)
	b := SlotID("p", 42, ts)
	if a != b {
		t.Fatalf("expected deterministic fingerprint, got %s != %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char hex fingerprint, got %d chars", len(a))
	}
}

func TestSlotID_DiffersByProvider(t *testing.T) {
	ts := time.Date(2026, 2, 18, 19, 0, 0, 0, time.UTC)
	a := SlotID("p", 42, ts)
	b := SlotID("q", 42, ts)
	if a == b {
		t.Fatal("expected different providers to produce different fingerprints")
	}
}

func TestSlotID_DiffersByVenue(t *testing.T) {
	ts := time.Date(2026, 2, 18, 19, 0, 0, 0, time.UTC)
	a := SlotID("p", 42, ts)
	b := SlotID("p", 99, ts)
	if a == b {
		t.Fatal("expected different venues to produce different fingerprints")
	}
}

func TestSlotID_MinutePrecision(t *testing.T) {
	base := time.Date(2026, 2, 18, 19, 0, 0, 0, time.UTC)
	withSeconds := base.Add(45 * time.Second)
	if SlotID("p", 42, base) != SlotID("p", 42, withSeconds) {
		t.Fatal("expected sub-minute precision to be truncated away")
	}
}

func TestSlotID_DiffersByMinute(t *testing.T) {
	a := time.Date(2026, 2, 18, 19, 0, 0, 0, time.UTC)
	b := time.Date(2026, 2, 18, 19, 1, 0, 0, time.UTC)
	if SlotID("p", 42, a) == SlotID("p", 42, b) {
		t.Fatal("expected different minutes to produce different fingerprints")
	}
}
