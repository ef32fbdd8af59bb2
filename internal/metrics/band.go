package metrics

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

// TimeInBand is the fraction of samples with |SP - PV| <= threshold.
type TimeInBand struct {
	name      string
	threshold float64
	inside    int
	samples   int
}

func NewTimeInBand(threshold float64) *TimeInBand {
	return &TimeInBand{
		name:      "time_in_band",
		threshold: threshold,
	}
}

func (s *TimeInBand) Name() string {
	return s.name
}

func (s *TimeInBand) Observe(p dynamo.Point) {
	s.samples++
	if math.Abs(p.Setpoint-p.PV) <= s.threshold {
		s.inside++
	}
}

func (s *TimeInBand) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return float64(s.inside) / float64(s.samples)
}

func (s *TimeInBand) Reset() {
	s.inside = 0
	s.samples = 0
}
