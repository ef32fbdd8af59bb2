// Package tuning computes PID gains from process models. Every rule is a
// pure function of the model and a closed-loop speed.
package tuning

import (
	"fmt"
	"math"

	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
)

// MinDeadTimeRatio sets the dead time substituted, as a fraction of tau, by
// rules that divide by theta.
const MinDeadTimeRatio = 0.01

// Gains are in ISA form: Kp dimensionless, Ti and Td in seconds. Ti = 0
// means no integral action.
type Gains struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Ti float64 `json:"ti" yaml:"ti"`
	Td float64 `json:"td" yaml:"td"`
}

func (g Gains) String() string {
	return fmt.Sprintf("Kp=%.4g Ti=%.4g Td=%.4g", g.Kp, g.Ti, g.Td)
}

// WithForm drops the terms form does not use.
func (g Gains) WithForm(form control.Form) Gains {
	switch form {
	case control.FormP:
		g.Ti, g.Td = 0, 0
	case control.FormPI:
		g.Td = 0
	}
	return g
}

// Apply copies the gains and form into a controller config.
func (g Gains) Apply(cfg control.Config, form control.Form) control.Config {
	g = g.WithForm(form)
	cfg.Form = form
	cfg.Kp, cfg.Ti, cfg.Td = g.Kp, g.Ti, g.Td
	return cfg
}

func (g Gains) valid() error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"kp", g.Kp}, {"ti", g.Ti}, {"td", g.Td}} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) || c.v < 0 {
			return fmt.Errorf("%w: computed %s = %g", dynamo.ErrNumericalInstability, c.name, c.v)
		}
	}
	return nil
}

// RecommendedTauC is the SIMC tight-but-robust closed-loop time constant.
func RecommendedTauC(theta float64) float64 { return theta }

func positive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return dynamo.Invalid(name, v, "must be positive")
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return dynamo.Invalid(name, v, "must be non-negative")
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// minDeadTime substitutes MinDeadTimeRatio*tau for a zero dead time.
func minDeadTime(theta, tau float64) float64 {
	return math.Max(theta, MinDeadTimeRatio*tau)
}
