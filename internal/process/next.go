package process

import (
	"math"

	"github.com/san-kum/looptune/internal/integrators"
)

// State is the internal state of a process model. X1 is the first lag of an
// SOPDT and is unused by the other families.
type State struct {
	Y  float64
	X1 float64
}

// Next advances m by dt with the already-delayed input u and load d held
// constant over the step. The update is the exact zero-order-hold solution.
// d enters as an input-referred load: K*u + d for self-regulating models and
// KPrime*(u + d) for the integrator.
func Next(m Model, s State, u, d, dt float64) State {
	switch v := normalize(m).(type) {
	case FOPDT:
		return State{Y: s.Y + integrators.Alpha(v.Tau, dt)*(v.K*u+d-s.Y)}
	case SOPDT:
		return nextSOPDT(v, s, v.K*u+d, dt)
	case IntegratorLeak:
		rate := v.KPrime * (u + d)
		if v.Pure() {
			return State{Y: integrators.Ramp(s.Y, rate, dt)}
		}
		return State{Y: s.Y + integrators.Alpha(v.TauLeak, dt)*(rate*v.TauLeak-s.Y)}
	}
	return s
}

// nextSOPDT solves the two-lag cascade exactly for a constant target r.
func nextSOPDT(m SOPDT, s State, r, dt float64) State {
	e1 := 1 - integrators.Alpha(m.Tau1, dt)
	e2 := 1 - integrators.Alpha(m.Tau2, dt)
	x1 := r + (s.X1-r)*e1

	var y float64
	switch {
	case m.Tau1 == 0 && m.Tau2 == 0:
		y = r
	case math.Abs(m.Tau1-m.Tau2) <= 1e-9*math.Max(m.Tau1, m.Tau2):
		y = r + (s.Y-r)*e2 + (s.X1-r)*(dt/m.Tau1)*e1
	default:
		c := m.Tau1 * (s.X1 - r) / (m.Tau1 - m.Tau2)
		y = r + (s.Y-r)*e2 + c*(e1-e2)
	}
	return State{Y: y, X1: x1}
}

// NextWith advances m with an arbitrary lag discretization, cascading the
// lags of an SOPDT one after the other.
func NextWith(lag integrators.Lag, m Model, s State, u, d, dt float64) State {
	switch v := normalize(m).(type) {
	case FOPDT:
		return State{Y: lag.Advance(s.Y, v.K*u+d, v.Tau, dt)}
	case SOPDT:
		x1 := lag.Advance(s.X1, v.K*u+d, v.Tau1, dt)
		return State{Y: lag.Advance(s.Y, x1, v.Tau2, dt), X1: x1}
	case IntegratorLeak:
		rate := v.KPrime * (u + d)
		if v.Pure() {
			return State{Y: integrators.Ramp(s.Y, rate, dt)}
		}
		return State{Y: lag.Advance(s.Y, rate*v.TauLeak, v.TauLeak, dt)}
	}
	return s
}

// StepResponse is the analytic response to a unit input step applied at t=0.
func StepResponse(m Model, t float64) float64 {
	m = normalize(m)
	s := t - m.DeadTime()
	if s <= 0 {
		return 0
	}
	switch v := m.(type) {
	case FOPDT:
		if v.Tau == 0 {
			return v.K
		}
		return v.K * -math.Expm1(-s/v.Tau)
	case SOPDT:
		return v.K * secondOrderUnit(v.Tau1, v.Tau2, s)
	case IntegratorLeak:
		if v.Pure() {
			return v.KPrime * s
		}
		return v.KPrime * v.TauLeak * -math.Expm1(-s/v.TauLeak)
	}
	return 0
}

func secondOrderUnit(tau1, tau2, s float64) float64 {
	switch {
	case tau1 == 0 && tau2 == 0:
		return 1
	case tau1 == 0:
		return -math.Expm1(-s / tau2)
	case tau2 == 0:
		return -math.Expm1(-s / tau1)
	case math.Abs(tau1-tau2) <= 1e-9*math.Max(tau1, tau2):
		return 1 - (1+s/tau1)*math.Exp(-s/tau1)
	}
	return 1 - (tau1*math.Exp(-s/tau1)-tau2*math.Exp(-s/tau2))/(tau1-tau2)
}
