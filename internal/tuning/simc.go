package tuning

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
)

// SIMCPI is Skogestad's PI rule for an FOPDT. improved replaces tau with
// tau + theta/3.
func SIMCPI(m process.FOPDT, tauC float64, improved bool) (Gains, error) {
	if err := firstErr(positive("k", m.K), positive("tau", m.Tau), nonNegative("theta", m.Theta), nonNegative("tau_c", tauC)); err != nil {
		return Gains{}, err
	}
	if tauC+m.Theta <= 0 {
		return Gains{}, dynamo.Invalid("tau_c", tauC, "tau_c + theta must be positive")
	}
	tau := m.Tau
	if improved {
		tau += m.Theta / 3
	}
	g := Gains{
		Kp: tau / (m.K * (tauC + m.Theta)),
		Ti: math.Min(tau, 4*(tauC+m.Theta)),
	}
	return g, g.valid()
}

// SIMCPID is the series-cascade SIMC rule for an SOPDT with Td = tau2.
func SIMCPID(m process.SOPDT, tauC float64, improved bool) (Gains, error) {
	if err := nonNegative("tau2", m.Tau2); err != nil {
		return Gains{}, err
	}
	g, err := SIMCPI(process.FOPDT{K: m.K, Tau: m.Tau1, Theta: m.Theta}, tauC, improved)
	if err != nil {
		return Gains{}, err
	}
	g.Td = m.Tau2
	return g, nil
}

func SIMCIntegrator(kprime, theta, tauC float64) (Gains, error) {
	if err := firstErr(positive("kprime", kprime), nonNegative("theta", theta), nonNegative("tau_c", tauC)); err != nil {
		return Gains{}, err
	}
	if tauC+theta <= 0 {
		return Gains{}, dynamo.Invalid("tau_c", tauC, "tau_c + theta must be positive")
	}
	g := Gains{
		Kp: 1 / (kprime * (tauC + theta)),
		Ti: 4 * (tauC + theta),
	}
	return g, g.valid()
}
