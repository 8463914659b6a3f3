package retention

import "testing"

func TestPolicy_ZeroValueIsSafe(t *testing.T) {
	var p Policy
	if p.BucketWindowDays != 0 || p.EventRetention != 0 {
		t.Fatalf("zero-value Policy should be all-zero, got %+v", p)
	}
}
