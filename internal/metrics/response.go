package metrics

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

// DefaultSettlingBand is the settling tolerance as a fraction of the
// setpoint change.
const DefaultSettlingBand = 0.02

// Overshoot is the peak excursion past the final setpoint, in percent of
// the setpoint change. It is 0 when the setpoint never moves.
type Overshoot struct {
	name   string
	sp0    float64
	peakUp float64
	peakDn float64
	lastSP float64
	seen   bool
}

func NewOvershoot() *Overshoot {
	return &Overshoot{name: "overshoot_pct"}
}

func (o *Overshoot) Name() string { return o.name }

func (o *Overshoot) Observe(p dynamo.Point) {
	if !o.seen {
		o.sp0, o.peakUp, o.peakDn, o.seen = p.Setpoint, p.PV, p.PV, true
	}
	o.peakUp = math.Max(o.peakUp, p.PV)
	o.peakDn = math.Min(o.peakDn, p.PV)
	o.lastSP = p.Setpoint
}

func (o *Overshoot) Value() float64 {
	step := o.lastSP - o.sp0
	if !o.seen || step == 0 {
		return 0
	}
	var excess float64
	if step > 0 {
		excess = o.peakUp - o.lastSP
	} else {
		excess = o.lastSP - o.peakDn
	}
	return math.Max(0, 100*excess/math.Abs(step))
}

func (o *Overshoot) Reset() { *o = Overshoot{name: o.name} }

// SettlingTime is the time of the last sample outside band·|ΔSP| of the
// final setpoint, measured from the first setpoint change. It is 0 when the
// loop never leaves the band and the run length when it never settles.
type SettlingTime struct {
	name   string
	band   float64
	points []dynamo.Point
}

func NewSettlingTime(band float64) *SettlingTime {
	if band <= 0 {
		band = DefaultSettlingBand
	}
	return &SettlingTime{name: "settling_time", band: band}
}

func (s *SettlingTime) Name() string { return s.name }

func (s *SettlingTime) Observe(p dynamo.Point) { s.points = append(s.points, p) }

func (s *SettlingTime) Value() float64 {
	if len(s.points) == 0 {
		return 0
	}
	first, last := s.points[0], s.points[len(s.points)-1]
	tol := s.band * math.Abs(last.Setpoint-first.Setpoint)
	if tol == 0 {
		tol = s.band * math.Max(math.Abs(last.Setpoint), 1)
	}

	start := first.T
	for _, p := range s.points {
		if p.Setpoint != first.Setpoint {
			start = p.T
			break
		}
	}

	settled := start
	for i := len(s.points) - 1; i >= 0; i-- {
		p := s.points[i]
		if p.T < start {
			break
		}
		if math.Abs(p.PV-last.Setpoint) > tol {
			if i == len(s.points)-1 {
				return last.T - start
			}
			settled = s.points[i+1].T
			break
		}
	}
	return settled - start
}

func (s *SettlingTime) Reset() { s.points = s.points[:0] }
