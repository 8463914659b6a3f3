package poll

// Diff holds the pure set arithmetic between three generations of a
// bucket's slot_id set: baseline (first ever poll), prev (last poll), and
// curr (this poll).
type Diff struct {
	Added  []string // curr - prev
	Closed []string // prev - curr
	Emit   []string // added ∩ (curr - baseline): "venue had nothing, now has one"
}

// Compute implements spec.md §4.4 step 6. The emit set is the rule that
// distinguishes "venue gained an additional time" (projection-only) from
// "venue had zero slots and now has one" (a true drop, eligible for a
// NEW_DROP event).
func Compute(baseline, prev, curr []string) Diff {
	baselineSet := toSet(baseline)
	prevSet := toSet(prev)
	currSet := toSet(curr)

	var added, closed, emit []string
	for id := range currSet {
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
			if _, inBaseline := baselineSet[id]; !inBaseline {
				emit = append(emit, id)
			}
		}
	}
	for id := range prevSet {
		if _, ok := currSet[id]; !ok {
			closed = append(closed, id)
		}
	}
	return Diff{Added: added, Closed: closed, Emit: emit}
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// BaselineEcho counts emit-set members also present in baseline. It must
// always be 0 for a correctly computed diff; the Poll Worker logs and
// counts any violation rather than trusting the arithmetic blindly.
func BaselineEcho(d Diff, baseline []string) int {
	baselineSet := toSet(baseline)
	n := 0
	for _, id := range d.Emit {
		if _, ok := baselineSet[id]; ok {
			n++
		}
	}
	return n
}

// PrevEcho counts emit-set members also present in prev. Must always be 0.
func PrevEcho(d Diff, prev []string) int {
	prevSet := toSet(prev)
	n := 0
	for _, id := range d.Emit {
		if _, ok := prevSet[id]; ok {
			n++
		}
	}
	return n
}
