package identify

import (
	"math"
)

type ChangePoint struct {
	// Index is the estimated first sample of the new level.
	Index int `json:"index"`
	// Alarm is where the sum crossed the threshold.
	Alarm     int `json:"alarm"`
	Direction int `json:"direction"`
}

// CUSUMOptions are in units of sigma. Sigma 0 estimates it from the data.
type CUSUMOptions struct {
	Drift     float64
	Threshold float64
	Sigma     float64
	Warmup    int
	Window    int
}

func DefaultCUSUMOptions() CUSUMOptions {
	return CUSUMOptions{Drift: 1.5, Threshold: 8, Warmup: 20, Window: 5}
}

// CUSUMChangePoints runs a two-sided CUSUM over the median-filtered x. After
// each alarm both sums reset and the baseline is re-estimated from the next
// Warmup samples.
func CUSUMChangePoints(x []float64, opts CUSUMOptions) ([]ChangePoint, error) {
	if len(x) == 0 {
		return nil, nil
	}
	if opts.Warmup < 1 {
		opts.Warmup = 1
	}

	sm, err := MovingMedian(x, opts.Window)
	if err != nil {
		return nil, err
	}

	sigma := opts.Sigma
	if sigma <= 0 {
		sigma = NoiseSigma(x)
	}
	if sigma <= 0 {
		sigma = 1e-9 * math.Max(1, math.Abs(median(sm)))
	}
	k := opts.Drift * sigma
	h := opts.Threshold * sigma

	var out []ChangePoint
	mu := MedianSegment(sm, 0, opts.Warmup)
	gPos, gNeg := 0.0, 0.0
	zeroPos, zeroNeg := -1, -1

	for i := 0; i < len(sm); i++ {
		dev := sm[i] - mu
		gPos = math.Max(0, gPos+dev-k)
		gNeg = math.Max(0, gNeg-dev-k)
		if gPos == 0 {
			zeroPos = i
		}
		if gNeg == 0 {
			zeroNeg = i
		}

		var cp *ChangePoint
		switch {
		case gPos > h:
			cp = &ChangePoint{Index: zeroPos + 1, Alarm: i, Direction: 1}
		case gNeg > h:
			cp = &ChangePoint{Index: zeroNeg + 1, Alarm: i, Direction: -1}
		}
		if cp == nil {
			continue
		}

		out = append(out, *cp)
		gPos, gNeg = 0, 0
		zeroPos, zeroNeg = i, i
		mu = MedianSegment(sm, i+1, i+1+opts.Warmup)
	}
	return out, nil
}
