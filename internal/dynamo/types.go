package dynamo

import (
	"math"
	"time"
)

// Point is one row of a simulated or streamed loop trajectory.
type Point struct {
	T           float64 `json:"t"`
	Setpoint    float64 `json:"sp"`
	PV          float64 `json:"pv"`
	OP          float64 `json:"op"`
	Disturbance float64 `json:"d"`
	Valve       float64 `json:"valve"`
	// Predicted is the noise-free model output. It differs from PV when PV
	// is noisy or comes from a live measurement.
	Predicted float64 `json:"predicted"`
}

func (p Point) IsValid() bool {
	for _, v := range [...]float64{p.T, p.Setpoint, p.PV, p.OP, p.Disturbance, p.Valve, p.Predicted} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Run is an append-only loop trajectory plus the metrics observed on it.
type Run struct {
	Points  []Point            `json:"points"`
	Metrics map[string]float64 `json:"metrics"`
}

func (r *Run) Len() int { return len(r.Points) }

// Column extracts one field of every point.
func (r *Run) Column(f func(Point) float64) []float64 {
	out := make([]float64, len(r.Points))
	for i, p := range r.Points {
		out[i] = f(p)
	}
	return out
}

func (r *Run) Times() []float64     { return r.Column(func(p Point) float64 { return p.T }) }
func (r *Run) PV() []float64        { return r.Column(func(p Point) float64 { return p.PV }) }
func (r *Run) OP() []float64        { return r.Column(func(p Point) float64 { return p.OP }) }
func (r *Run) Setpoints() []float64 { return r.Column(func(p Point) float64 { return p.Setpoint }) }

// At returns the point closest to time t.
func (r *Run) At(t float64) (Point, bool) {
	if len(r.Points) == 0 {
		return Point{}, false
	}
	best := 0
	for i, p := range r.Points {
		if math.Abs(p.T-t) < math.Abs(r.Points[best].T-t) {
			best = i
		}
	}
	return r.Points[best], true
}

// Sample is one historian or live measurement. Quality follows the OPC
// convention: 192 is good.
type Sample struct {
	Time    time.Time `json:"ts"`
	Value   float64   `json:"value"`
	Quality int       `json:"quality"`
}

const QualityGood = 192

func (s Sample) Good() bool { return s.Quality >= QualityGood }

// Series is a time-ordered tag history.
type Series struct {
	Tag     string
	Samples []Sample
}

// Seconds returns sample times relative to the first sample, and the values.
func (s Series) Seconds() ([]float64, []float64) {
	t := make([]float64, len(s.Samples))
	v := make([]float64, len(s.Samples))
	if len(s.Samples) == 0 {
		return t, v
	}
	t0 := s.Samples[0].Time
	for i, smp := range s.Samples {
		t[i] = smp.Time.Sub(t0).Seconds()
		v[i] = smp.Value
	}
	return t, v
}
