package feed

import "testing"

func TestClampLimit(t *testing.T) {
	const maxLimit = 5000
	const defaultLimit = 2000

	cases := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{maxLimit, maxLimit},
		{maxLimit + 1, maxLimit},
	}
	for _, c := range cases {
		if got := clampLimit(c.in, maxLimit, defaultLimit); got != c.want {
			t.Errorf("clampLimit(%d, %d, %d) = %d, want %d", c.in, maxLimit, defaultLimit, got, c.want)
		}
	}
}
