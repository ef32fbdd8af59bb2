package identify

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

type StepEvent struct {
	Index int     `json:"index"`
	Time  float64 `json:"time"`
	Delta float64 `json:"delta"`
}

// DiffOptions configure DetectStepsByDiff. Dwell times are in seconds.
type DiffOptions struct {
	Window      int
	MinStep     float64
	NoiseFactor float64
	DwellPre    float64
	DwellPost   float64
}

func DefaultDiffOptions() DiffOptions {
	return DiffOptions{Window: 5, MinStep: 0.01, NoiseFactor: 6, DwellPre: 1, DwellPost: 5}
}

// DetectStepsByDiff finds steps in u as large first differences of the
// median-filtered signal. A step needs DwellPre seconds of data before it
// and DwellPost after. Candidates closer than the mean dwell merge into the
// larger one.
func DetectStepsByDiff(t, u []float64, opts DiffOptions) ([]StepEvent, error) {
	if len(t) != len(u) {
		return nil, dynamo.Invalid("len(u)", float64(len(u)), "must match len(t)")
	}
	if len(t) < 4 {
		return nil, nil
	}

	sm, err := MovingMedian(u, opts.Window)
	if err != nil {
		return nil, err
	}
	d := make([]float64, len(sm))
	for i := 1; i < len(sm); i++ {
		d[i] = sm[i] - sm[i-1]
	}

	threshold := math.Max(opts.MinStep, opts.NoiseFactor*madScale*mad(d[1:]))
	merge := 0.5 * (opts.DwellPre + opts.DwellPost)

	var out []StepEvent
	for k := 1; k < len(d); k++ {
		if math.Abs(d[k]) < threshold {
			continue
		}
		tt := t[k]
		if tt-t[0] < opts.DwellPre || t[len(t)-1]-tt < opts.DwellPost {
			continue
		}
		ev := StepEvent{Index: k, Time: tt, Delta: d[k]}
		if n := len(out); n > 0 && math.Abs(tt-out[n-1].Time) < merge {
			if math.Abs(ev.Delta) > math.Abs(out[n-1].Delta) {
				out[n-1] = ev
			}
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// LargestStep returns the first sample at the new level after the largest
// first difference, and that difference.
func LargestStep(x []float64) (int, float64) {
	best, idx := 0.0, 0
	for i := 1; i < len(x); i++ {
		if d := x[i] - x[i-1]; math.Abs(d) > math.Abs(best) {
			best, idx = d, i
		}
	}
	return idx, best
}

// MedianSegment is the median of x[start:end] clipped to bounds, or of all
// of x when the window is empty.
func MedianSegment(x []float64, start, end int) float64 {
	start = max(0, start)
	end = min(len(x), end)
	if end <= start {
		return median(x)
	}
	return median(x[start:end])
}
