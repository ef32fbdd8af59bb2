package integrators

import "math"

// Lag advances a first-order lag dy/dt = (target - y)/tau over dt with the
// target held constant.
type Lag interface {
	Advance(y, target, tau, dt float64) float64
}

// Exact is the zero-order-hold solution of a first-order lag:
// y += (1 - exp(-dt/tau)) * (target - y). tau = 0 is a pure gain and
// tau = +Inf holds y.
type Exact struct{}

func NewExact() *Exact {
	return &Exact{}
}

func (e *Exact) Advance(y, target, tau, dt float64) float64 {
	return y + Alpha(tau, dt)*(target-y)
}

// Alpha is the per-step blend factor 1 - exp(-dt/tau).
func Alpha(tau, dt float64) float64 {
	switch {
	case tau == 0:
		return 1
	case math.IsInf(tau, 1):
		return 0
	}
	return -math.Expm1(-dt / tau)
}

// Ramp advances a pure integrator dy/dt = rate.
func Ramp(y, rate, dt float64) float64 {
	return y + rate*dt
}
