package identify

import (
	"math"

	"github.com/san-kum/looptune/internal/process"
	"gonum.org/v1/gonum/stat"
)

// seed holds the analytic first guess for the time parameters.
type seed struct {
	theta  float64
	tau    float64
	tau1   float64
	tau2   float64
	kprime float64
	dt     float64
	span   float64
}

// preNoise is the robust spread of y before the step.
func preNoise(rec StepTestRecord) float64 {
	end := max(rec.StepIndex-1, 1)
	pre := rec.Y[:end]
	return madScale * mad(pre)
}

func medianDt(t []float64) float64 {
	return median(diff(t))
}

// deadTimeSeed is the first time after the step that y leaves its baseline
// by more than max(3σ, 2% of the total change).
func deadTimeSeed(rec StepTestRecord, dy float64) float64 {
	band := math.Max(3*preNoise(rec), 0.02*math.Abs(dy))
	t0 := rec.StepTime()
	for i := rec.StepIndex; i < len(rec.Y); i++ {
		if math.Abs(rec.Y[i]-rec.PreMean) > band {
			// the previous sample is the last one still on the baseline
			return math.Max(0, rec.T[i-1]-t0)
		}
	}
	return 0
}

func analyticSeed(rec StepTestRecord, family process.Family) seed {
	dy := rec.DeltaY()
	if family == process.FamilyIntegrator {
		dy = rec.Y[len(rec.Y)-1] - rec.PreMean
	}
	s := seed{dt: medianDt(rec.T), span: rec.T[len(rec.T)-1] - rec.T[0]}
	if !(s.dt > 0) {
		s.dt = s.span / float64(len(rec.T))
	}
	s.theta = deadTimeSeed(rec, dy)

	t0 := rec.StepTime()
	s.tau = math.Max(s.span/5, 5*s.dt)
	for i := rec.StepIndex; i < len(rec.Y); i++ {
		if math.Abs(rec.Y[i]-rec.PreMean) >= 0.632*math.Abs(dy) {
			if tau := rec.T[i] - t0 - s.theta; tau > s.dt {
				s.tau = tau
			}
			break
		}
	}

	switch family {
	case process.FamilySOPDT:
		s.tau1, s.tau2 = s.tau, math.Max(s.tau/4, s.dt)
		if tu, tg, ok := inflection(rec, dy); ok {
			s.theta = math.Max(0, tu)
			s.tau1 = math.Max(0.6*tg, s.dt)
			s.tau2 = math.Max(0.15*tg, s.dt)
		}
	case process.FamilyIntegrator:
		if du := rec.DeltaU(); du != 0 {
			s.kprime = lateSlope(rec) / du
		}
	}
	return s
}

// inflection draws the tangent at the steepest point of the smoothed
// response. tu is where it crosses the baseline (relative to the step) and
// tg the time it takes to span the whole change.
func inflection(rec StepTestRecord, dy float64) (tu, tg float64, ok bool) {
	if dy == 0 {
		return 0, 0, false
	}
	k := rec.StepIndex
	sm, err := MovingMedian(rec.Y[k:], 5)
	if err != nil || len(sm) < 5 {
		return 0, 0, false
	}
	t := rec.T[k:]

	dir := math.Copysign(1, dy)
	best, at := 0.0, -1
	for i := 1; i < len(sm)-1; i++ {
		slope := (sm[i+1] - sm[i-1]) / (t[i+1] - t[i-1])
		if slope*dir > best*dir {
			best, at = slope, i
		}
	}
	if at < 0 {
		return 0, 0, false
	}

	tu = t[at] - (sm[at]-rec.PreMean)/best - rec.StepTime()
	tg = dy / best
	if tg <= 0 || math.IsNaN(tu) {
		return 0, 0, false
	}
	return tu, tg, true
}

// lateSlope regresses y on t over the tail of the record.
func lateSlope(rec StepTestRecord) float64 {
	n := len(rec.T)
	start := max(rec.StepIndex, n-max(n/5, 3))
	_, beta := stat.LinearRegression(rec.T[start:], rec.Y[start:], nil, false)
	return beta
}
