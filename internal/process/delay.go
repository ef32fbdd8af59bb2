package process

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

// DelayLine is a FIFO dead-time element. A delay that is not a whole number
// of steps is interpolated linearly between the two neighbouring taps.
type DelayLine struct {
	buf   []float64
	head  int
	whole int
	frac  float64
}

func NewDelayLine(theta, dt float64) (*DelayLine, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, dynamo.Invalid("dt", dt, "must be positive")
	}
	if math.IsNaN(theta) || theta < 0 || math.IsInf(theta, 0) {
		return nil, dynamo.Invalid("theta", theta, "must be finite and non-negative")
	}

	steps := theta / dt
	whole := math.Floor(steps)
	frac := steps - whole
	if frac < 1e-9 {
		frac = 0
	} else if 1-frac < 1e-9 {
		whole++
		frac = 0
	}

	return &DelayLine{
		buf:   make([]float64, int(whole)+2),
		whole: int(whole),
		frac:  frac,
	}, nil
}

// Depth is ceil(theta/dt).
func (d *DelayLine) Depth() int {
	if d.frac > 0 {
		return d.whole + 1
	}
	return d.whole
}

// Reset fills the line with u0 so a plant starts in steady state.
func (d *DelayLine) Reset(u0 float64) {
	for i := range d.buf {
		d.buf[i] = u0
	}
	d.head = 0
}

// Push stores u and returns the input from theta ago.
func (d *DelayLine) Push(u float64) float64 {
	n := len(d.buf)
	d.buf[d.head] = u
	a := d.buf[(d.head-d.whole+n)%n]
	out := a
	if d.frac > 0 {
		b := d.buf[(d.head-d.whole-1+2*n)%n]
		out = (1-d.frac)*a + d.frac*b
	}
	d.head = (d.head + 1) % n
	return out
}
