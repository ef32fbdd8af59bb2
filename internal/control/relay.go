package control

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

// Relay switches between Bias+Amplitude and Bias-Amplitude on the sign of
// the error, with a hysteresis band. Closing a loop around it produces the
// limit cycle used to read the ultimate gain and period.
type Relay struct {
	Bias       float64
	Amplitude  float64
	Hysteresis float64

	high  bool
	ready bool
}

func NewRelay(bias, amplitude, hysteresis float64) (*Relay, error) {
	if !(amplitude > 0) || math.IsInf(amplitude, 0) {
		return nil, dynamo.Invalid("amplitude", amplitude, "must be positive")
	}
	if math.IsNaN(hysteresis) || hysteresis < 0 {
		return nil, dynamo.Invalid("hysteresis", hysteresis, "must be non-negative")
	}
	return &Relay{Bias: bias, Amplitude: amplitude, Hysteresis: hysteresis}, nil
}

// Reset starts the relay in the high state.
func (r *Relay) Reset(out0, pv0 float64) {
	r.high = true
	r.ready = true
}

func (r *Relay) Step(sp, pv, dt float64) (float64, error) {
	if !r.ready {
		return 0, dynamo.ErrNotInitialized
	}
	if !(dt > 0) {
		return 0, dynamo.Invalid("dt", dt, "must be positive")
	}
	e := sp - pv
	if r.high && e < -r.Hysteresis {
		r.high = false
	} else if !r.high && e > r.Hysteresis {
		r.high = true
	}
	if r.high {
		return r.Bias + r.Amplitude, nil
	}
	return r.Bias - r.Amplitude, nil
}
