package process

import (
	"math"

	"github.com/san-kum/looptune/internal/integrators"
)

// Plant owns one run's worth of process state: the model state and its
// dead-time line. The model runs in deviation variables about the operating
// point given to Reset. Plants are not safe for concurrent use.
type Plant struct {
	model Model
	dt    float64
	delay *DelayLine
	lag   integrators.Lag
	state State
	u0    float64
	y0    float64
}

func NewPlant(m Model, dt float64) (*Plant, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	delay, err := NewDelayLine(m.DeadTime(), dt)
	if err != nil {
		return nil, err
	}
	return &Plant{model: normalize(m), dt: dt, delay: delay}, nil
}

// SetLag replaces the exact discretization, e.g. with integrators.Euler.
// nil restores the exact update.
func (p *Plant) SetLag(lag integrators.Lag) {
	if _, ok := lag.(*integrators.Exact); ok {
		lag = nil
	}
	p.lag = lag
}

// Reset puts the plant at rest at the operating point (u0, y0): input u0
// holds the output at y0 and the delay line is full of u0.
func (p *Plant) Reset(u0, y0 float64) {
	p.u0, p.y0 = u0, y0
	p.delay.Reset(0)
	p.state = State{}
}

// Step applies input u and load d for one dt and returns the new output.
func (p *Plant) Step(u, d float64) float64 {
	ud := p.delay.Push(u - p.u0)
	if p.lag != nil {
		p.state = NextWith(p.lag, p.model, p.state, ud, d, p.dt)
	} else {
		p.state = Next(p.model, p.state, ud, d, p.dt)
	}
	return p.y0 + p.state.Y
}

func (p *Plant) Output() float64 { return p.y0 + p.state.Y }

// State is the model state in deviation from the operating point.
func (p *Plant) State() State { return p.state }
func (p *Plant) Model() Model    { return p.model }
func (p *Plant) Dt() float64     { return p.dt }

// Valid reports whether the state is finite.
func (p *Plant) Valid() bool {
	for _, v := range [...]float64{p.state.Y, p.state.X1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
