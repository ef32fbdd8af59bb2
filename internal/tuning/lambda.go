package tuning

import (
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
)

// LambdaFOPDT is the IMC/lambda PI rule: Kp = tau/(K(lambda+theta)),
// Ti = tau.
func LambdaFOPDT(m process.FOPDT, lambda float64) (Gains, error) {
	if err := firstErr(positive("k", m.K), positive("tau", m.Tau), nonNegative("theta", m.Theta), nonNegative("lambda", lambda)); err != nil {
		return Gains{}, err
	}
	if lambda+m.Theta <= 0 {
		return Gains{}, dynamo.Invalid("lambda", lambda, "lambda + theta must be positive")
	}
	g := Gains{Kp: m.Tau / (m.K * (lambda + m.Theta)), Ti: m.Tau}
	return g, g.valid()
}

// LambdaSOPDT cancels both lags with an ideal PID: Ti = tau1 + tau2,
// Td = tau1*tau2/(tau1 + tau2).
func LambdaSOPDT(m process.SOPDT, lambda float64) (Gains, error) {
	if err := firstErr(positive("k", m.K), positive("tau1", m.Tau1), nonNegative("tau2", m.Tau2), nonNegative("theta", m.Theta), nonNegative("lambda", lambda)); err != nil {
		return Gains{}, err
	}
	if lambda+m.Theta <= 0 {
		return Gains{}, dynamo.Invalid("lambda", lambda, "lambda + theta must be positive")
	}
	ti := m.Tau1 + m.Tau2
	g := Gains{
		Kp: ti / (m.K * (lambda + m.Theta)),
		Ti: ti,
		Td: m.Tau1 * m.Tau2 / ti,
	}
	return g, g.valid()
}

// LambdaIntegrator uses kprime in place of K/tau: Kp = 1/(k'(lambda+theta)),
// Ti = 2*lambda + theta.
func LambdaIntegrator(kprime, theta, lambda float64) (Gains, error) {
	if err := firstErr(positive("kprime", kprime), nonNegative("theta", theta), nonNegative("lambda", lambda)); err != nil {
		return Gains{}, err
	}
	if lambda+theta <= 0 {
		return Gains{}, dynamo.Invalid("lambda", lambda, "lambda + theta must be positive")
	}
	g := Gains{Kp: 1 / (kprime * (lambda + theta)), Ti: 2*lambda + theta}
	return g, g.valid()
}
