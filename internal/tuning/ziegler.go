package tuning

import (
	"math"

	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
)

// ratio is one row of a Ziegler-Nichols table: Kp = kp*base,
// Ti = ti*scale, Td = td*scale.
type ratio struct{ kp, ti, td float64 }

var reactionCurve = map[control.Form]ratio{
	control.FormP:   {1.0, 0, 0},
	control.FormPI:  {0.9, 1 / 0.3, 0},
	control.FormPID: {1.2, 2, 0.5},
}

var ultimate = map[control.Form]ratio{
	control.FormP:   {0.5, 0, 0},
	control.FormPI:  {0.45, 1 / 1.2, 0},
	control.FormPID: {0.6, 0.5, 0.125},
}

func lookup(table map[control.Form]ratio, form control.Form) (ratio, error) {
	r, ok := table[form]
	if !ok {
		return ratio{}, dynamo.Invalid("form", float64(form), "unknown controller form")
	}
	return r, nil
}

// ZNReactionCurve is the open-loop Ziegler-Nichols table on the FOPDT
// tangent: Kp = a*tau/(K*theta), Ti and Td in multiples of theta.
func ZNReactionCurve(m process.FOPDT, form control.Form) (Gains, error) {
	if err := firstErr(positive("k", m.K), positive("tau", m.Tau), nonNegative("theta", m.Theta)); err != nil {
		return Gains{}, err
	}
	r, err := lookup(reactionCurve, form)
	if err != nil {
		return Gains{}, err
	}
	theta := minDeadTime(m.Theta, m.Tau)
	g := Gains{Kp: r.kp * m.Tau / (m.K * theta), Ti: r.ti * theta, Td: r.td * theta}
	return g, g.valid()
}

// ZNIntegrating applies the reaction-curve table with slope kprime. An
// integrator has no time constant to scale a substitute dead time, so
// theta must be positive.
func ZNIntegrating(kprime, theta float64, form control.Form) (Gains, error) {
	if err := firstErr(positive("kprime", kprime), positive("theta", theta)); err != nil {
		return Gains{}, err
	}
	r, err := lookup(reactionCurve, form)
	if err != nil {
		return Gains{}, err
	}
	g := Gains{Kp: r.kp / (kprime * theta), Ti: r.ti * theta, Td: r.td * theta}
	return g, g.valid()
}

// ZNUltimate is the closed-loop table on the ultimate gain and period.
func ZNUltimate(ku, pu float64, form control.Form) (Gains, error) {
	if err := firstErr(positive("ku", ku), positive("pu", pu)); err != nil {
		return Gains{}, err
	}
	r, err := lookup(ultimate, form)
	if err != nil {
		return Gains{}, err
	}
	g := Gains{Kp: r.kp * ku, Ti: r.ti * pu, Td: r.td * pu}
	return g, g.valid()
}

// UltimateGain finds the phase crossover of an FOPDT, where
// atan(w*tau) + w*theta = pi, by bisection.
func UltimateGain(m process.FOPDT) (ku, pu float64, err error) {
	if err := firstErr(positive("k", m.K), positive("tau", m.Tau), nonNegative("theta", m.Theta)); err != nil {
		return 0, 0, err
	}
	theta := minDeadTime(m.Theta, m.Tau)
	phase := func(w float64) float64 { return math.Atan(w*m.Tau) + w*theta - math.Pi }

	lo, hi := 0.0, math.Pi/theta
	for i := 0; i < 200 && hi-lo > 1e-12*hi; i++ {
		mid := (lo + hi) / 2
		if phase(mid) < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	w := (lo + hi) / 2
	ku = math.Hypot(1, w*m.Tau) / m.K
	return ku, 2 * math.Pi / w, nil
}

// UltimateGainIntegrator is the closed form for k'exp(-theta*s)/s:
// crossover at pi/(2*theta).
func UltimateGainIntegrator(kprime, theta float64) (ku, pu float64, err error) {
	if err := firstErr(positive("kprime", kprime), positive("theta", theta)); err != nil {
		return 0, 0, err
	}
	w := math.Pi / (2 * theta)
	return w / kprime, 4 * theta, nil
}

// RelayUltimate is the describing-function estimate from a relay test:
// Ku = 4d/(pi*a) for relay amplitude d and PV amplitude a.
func RelayUltimate(d, a float64) (float64, error) {
	if err := firstErr(positive("relay_amplitude", d), positive("pv_amplitude", a)); err != nil {
		return 0, err
	}
	return 4 * d / (math.Pi * a), nil
}
