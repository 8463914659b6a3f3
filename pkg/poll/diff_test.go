package poll

import (
	"reflect"
	"sort"
	"testing"
)

func sorted(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func TestCompute_BaselineBootstrapHasNoEmit(t *testing.T) {
	// Scenario 1: first poll, baseline == prev == curr.
	d := Compute([]string{"a", "b"}, []string{"a", "b"}, []string{"a", "b"})
	if len(d.Added) != 0 || len(d.Closed) != 0 || len(d.Emit) != 0 {
		t.Fatalf("expected no diff on baseline echo, got %+v", d)
	}
}

func TestCompute_ExistingVenueGain(t *testing.T) {
	// Scenario 2: venue already had slots; a third time is not a drop.
	baseline := []string{"a", "b"}
	prev := []string{"a", "b"}
	curr := []string{"a", "b", "c"}
	d := Compute(baseline, prev, curr)
	if !reflect.DeepEqual(sorted(d.Added), []string{"c"}) {
		t.Fatalf("expected added=[c], got %v", d.Added)
	}
	if len(d.Emit) != 0 {
		t.Fatalf("expected no emit for existing-venue gain, got %v", d.Emit)
	}
}

func TestCompute_TrueDrop(t *testing.T) {
	// Scenario 3: venue 99 appears for the first time.
	baseline := []string{"a", "b"}
	prev := []string{"a", "b"}
	curr := []string{"a", "b", "sid99"}
	d := Compute(baseline, prev, curr)
	if !reflect.DeepEqual(sorted(d.Emit), []string{"sid99"}) {
		t.Fatalf("expected emit=[sid99], got %v", d.Emit)
	}
}

func TestCompute_Close(t *testing.T) {
	// Scenario 4: a slot disappears.
	baseline := []string{"a"}
	prev := []string{"a", "sid99"}
	curr := []string{"a"}
	d := Compute(baseline, prev, curr)
	if !reflect.DeepEqual(d.Closed, []string{"sid99"}) {
		t.Fatalf("expected closed=[sid99], got %v", d.Closed)
	}
	if len(d.Added) != 0 || len(d.Emit) != 0 {
		t.Fatalf("expected no added/emit on close, got %+v", d)
	}
}

func TestCompute_Flapping(t *testing.T) {
	// Scenario 5: sid99 disappears and reappears — from the set arithmetic's
	// perspective this is two independent diffs, each computed correctly;
	// TTL dedupe (a separate layer) is what suppresses the second NEW_DROP.
	baseline := []string{"a"}
	prev := []string{"a"}
	curr1 := []string{"a", "sid99"}
	d1 := Compute(baseline, prev, curr1)
	if !reflect.DeepEqual(d1.Emit, []string{"sid99"}) {
		t.Fatalf("expected first appearance to emit, got %v", d1.Emit)
	}

	prev2 := curr1
	curr2 := []string{"a"}
	d2 := Compute(baseline, prev2, curr2)
	if !reflect.DeepEqual(d2.Closed, []string{"sid99"}) {
		t.Fatalf("expected disappearance to close, got %v", d2.Closed)
	}

	prev3 := curr2
	curr3 := []string{"a", "sid99"}
	d3 := Compute(baseline, prev3, curr3)
	if !reflect.DeepEqual(d3.Emit, []string{"sid99"}) {
		t.Fatalf("expected reappearance to emit again at the diff layer, got %v", d3.Emit)
	}
}

func TestBaselineEchoAndPrevEcho_AreZeroForValidDiff(t *testing.T) {
	baseline := []string{"a", "b"}
	prev := []string{"a", "b"}
	curr := []string{"a", "b", "sid99"}
	d := Compute(baseline, prev, curr)
	if got := BaselineEcho(d, baseline); got != 0 {
		t.Fatalf("BaselineEcho() = %d, want 0", got)
	}
	if got := PrevEcho(d, prev); got != 0 {
		t.Fatalf("PrevEcho() = %d, want 0", got)
	}
}

func TestCompute_EmptyResponseClosesEverything(t *testing.T) {
	// Boundary: empty provider response on an initialized bucket.
	baseline := []string{"a", "b"}
	prev := []string{"a", "b"}
	curr := []string{}
	d := Compute(baseline, prev, curr)
	if !reflect.DeepEqual(sorted(d.Closed), []string{"a", "b"}) {
		t.Fatalf("expected everything to close, got %v", d.Closed)
	}
	if len(d.Added) != 0 || len(d.Emit) != 0 {
		t.Fatalf("expected no added/emit, got %+v", d)
	}
}
