package dynamo

import "sort"

// Change sets a piecewise-constant signal to Value from time At onward.
type Change struct {
	At    float64 `json:"at" yaml:"at"`
	Value float64 `json:"value" yaml:"value"`
}

// Schedule is a piecewise-constant signal. Before the first change it is
// Initial.
type Schedule struct {
	Initial float64  `json:"initial" yaml:"initial"`
	Changes []Change `json:"changes" yaml:"changes"`
}

// Constant is a schedule that never changes.
func Constant(v float64) Schedule {
	return Schedule{Initial: v}
}

// StepAt holds before until at, then after.
func StepAt(before, at, after float64) Schedule {
	return Schedule{Initial: before, Changes: []Change{{At: at, Value: after}}}
}

// At returns the value in force at time t.
func (s Schedule) At(t float64) float64 {
	v := s.Initial
	for _, c := range s.sorted() {
		if c.At > t {
			break
		}
		v = c.Value
	}
	return v
}

func (s Schedule) sorted() []Change {
	if sort.SliceIsSorted(s.Changes, func(i, j int) bool { return s.Changes[i].At < s.Changes[j].At }) {
		return s.Changes
	}
	c := make([]Change, len(s.Changes))
	copy(c, s.Changes)
	sort.SliceStable(c, func(i, j int) bool { return c[i].At < c[j].At })
	return c
}
