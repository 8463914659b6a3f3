package bucket

import "testing"

func TestID_Format(t *testing.T) {
	got := ID("2026-02-18", "19:00")
	want := "2026-02-18_19:00"
	if got != want {
		t.Fatalf("ID() = %q, want %q", got, want)
	}
}

func TestID_LexicographicOrdering(t *testing.T) {
	earlier := ID("2026-02-18", "19:00")
	later := ID("2026-02-19", "12:00")
	if !(earlier < later) {
		t.Fatalf("expected %q < %q lexicographically", earlier, later)
	}
}

func TestID_SameDateOrdersByTime(t *testing.T) {
	a := ID("2026-02-18", "12:00")
	b := ID("2026-02-18", "19:00")
	if !(a < b) {
		t.Fatalf("expected %q < %q lexicographically", a, b)
	}
}
