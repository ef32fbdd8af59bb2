package process

import (
	"fmt"
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
)

// Family names a process-model structure.
type Family string

const (
	FamilyFOPDT      Family = "fopdt"
	FamilySOPDT      Family = "sopdt"
	FamilyIntegrator Family = "integrator"
)

func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case FamilyFOPDT, FamilySOPDT, FamilyIntegrator:
		return Family(s), nil
	}
	return "", fmt.Errorf("unknown model family: %s", s)
}

// Model is one of FOPDT, SOPDT or IntegratorLeak. The set is closed: the
// unexported method keeps other packages from adding variants.
type Model interface {
	Family() Family
	DeadTime() float64
	Params() map[string]float64
	validate() error
}

// FOPDT is K*exp(-theta*s)/(tau*s + 1).
type FOPDT struct {
	K     float64 `json:"k" yaml:"k"`
	Tau   float64 `json:"tau" yaml:"tau"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// SOPDT is K*exp(-theta*s)/((tau1*s + 1)(tau2*s + 1)).
type SOPDT struct {
	K     float64 `json:"k" yaml:"k"`
	Tau1  float64 `json:"tau1" yaml:"tau1"`
	Tau2  float64 `json:"tau2" yaml:"tau2"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// IntegratorLeak is dy/dt = KPrime*u - y/TauLeak with dead time Theta.
// TauLeak = +Inf is a pure integrator.
type IntegratorLeak struct {
	KPrime  float64 `json:"kprime" yaml:"kprime"`
	TauLeak float64 `json:"tau_leak" yaml:"tau_leak"`
	Theta   float64 `json:"theta" yaml:"theta"`
}

func NewFOPDT(k, tau, theta float64) (FOPDT, error) {
	m := FOPDT{K: k, Tau: tau, Theta: theta}
	return m, m.validate()
}

func NewSOPDT(k, tau1, tau2, theta float64) (SOPDT, error) {
	m := SOPDT{K: k, Tau1: tau1, Tau2: tau2, Theta: theta}
	return m, m.validate()
}

func NewIntegratorLeak(kprime, tauLeak, theta float64) (IntegratorLeak, error) {
	m := IntegratorLeak{KPrime: kprime, TauLeak: tauLeak, Theta: theta}
	return m, m.validate()
}

// NewIntegrator is a pure integrator (no leak).
func NewIntegrator(kprime, theta float64) (IntegratorLeak, error) {
	return NewIntegratorLeak(kprime, math.Inf(1), theta)
}

func (m FOPDT) Family() Family          { return FamilyFOPDT }
func (m SOPDT) Family() Family          { return FamilySOPDT }
func (m IntegratorLeak) Family() Family { return FamilyIntegrator }

func (m FOPDT) DeadTime() float64          { return m.Theta }
func (m SOPDT) DeadTime() float64          { return m.Theta }
func (m IntegratorLeak) DeadTime() float64 { return m.Theta }

func (m FOPDT) Params() map[string]float64 {
	return map[string]float64{"k": m.K, "tau": m.Tau, "theta": m.Theta}
}

func (m SOPDT) Params() map[string]float64 {
	return map[string]float64{"k": m.K, "tau1": m.Tau1, "tau2": m.Tau2, "theta": m.Theta}
}

// Params leaves out tau_leak for a pure integrator so the map stays
// JSON-encodable.
func (m IntegratorLeak) Params() map[string]float64 {
	p := map[string]float64{"kprime": m.KPrime, "theta": m.Theta}
	if !m.Pure() {
		p["tau_leak"] = m.TauLeak
	}
	return p
}

// FromParams rebuilds a model from its family and Params map.
func FromParams(f Family, p map[string]float64) (Model, error) {
	switch f {
	case FamilyFOPDT:
		return NewFOPDT(p["k"], p["tau"], p["theta"])
	case FamilySOPDT:
		return NewSOPDT(p["k"], p["tau1"], p["tau2"], p["theta"])
	case FamilyIntegrator:
		leak, ok := p["tau_leak"]
		if !ok || leak == 0 {
			leak = math.Inf(1)
		}
		return NewIntegratorLeak(p["kprime"], leak, p["theta"])
	}
	return nil, fmt.Errorf("%w: unknown model family %q", dynamo.ErrInvalidParameter, f)
}

// Pure reports whether the leak is absent.
func (m IntegratorLeak) Pure() bool { return math.IsInf(m.TauLeak, 1) }

func (m FOPDT) validate() error {
	if err := nonNegative("k", m.K); err != nil {
		return err
	}
	if err := nonNegative("tau", m.Tau); err != nil {
		return err
	}
	return nonNegative("theta", m.Theta)
}

func (m SOPDT) validate() error {
	if err := nonNegative("k", m.K); err != nil {
		return err
	}
	if err := nonNegative("tau1", m.Tau1); err != nil {
		return err
	}
	if err := nonNegative("tau2", m.Tau2); err != nil {
		return err
	}
	return nonNegative("theta", m.Theta)
}

func (m IntegratorLeak) validate() error {
	if err := nonNegative("kprime", m.KPrime); err != nil {
		return err
	}
	if math.IsNaN(m.TauLeak) || m.TauLeak <= 0 {
		return dynamo.Invalid("tau_leak", m.TauLeak, "must be positive (use +Inf for a pure integrator)")
	}
	return nonNegative("theta", m.Theta)
}

// Validate checks a model built without its constructor.
func Validate(m Model) error {
	if m == nil {
		return fmt.Errorf("%w: nil model", dynamo.ErrInvalidParameter)
	}
	return normalize(m).validate()
}

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return dynamo.Invalid(name, v, "must be finite")
	}
	if v < 0 {
		return dynamo.Invalid(name, v, "must be non-negative")
	}
	return nil
}

// normalize turns pointer forms of the variants into values so that type
// switches only need the value cases.
func normalize(m Model) Model {
	switch v := m.(type) {
	case *FOPDT:
		return *v
	case *SOPDT:
		return *v
	case *IntegratorLeak:
		return *v
	}
	return m
}

// SteadyStateGain returns the static gain, or false for a pure integrator.
func SteadyStateGain(m Model) (float64, bool) {
	switch v := normalize(m).(type) {
	case FOPDT:
		return v.K, true
	case SOPDT:
		return v.K, true
	case IntegratorLeak:
		if v.Pure() {
			return 0, false
		}
		return v.KPrime * v.TauLeak, true
	}
	return 0, false
}

func String(m Model) string {
	switch v := normalize(m).(type) {
	case FOPDT:
		return fmt.Sprintf("FOPDT(K=%.4g, tau=%.4g, theta=%.4g)", v.K, v.Tau, v.Theta)
	case SOPDT:
		return fmt.Sprintf("SOPDT(K=%.4g, tau1=%.4g, tau2=%.4g, theta=%.4g)", v.K, v.Tau1, v.Tau2, v.Theta)
	case IntegratorLeak:
		if v.Pure() {
			return fmt.Sprintf("Integrator(k'=%.4g, theta=%.4g)", v.KPrime, v.Theta)
		}
		return fmt.Sprintf("IntegratorLeak(k'=%.4g, tau_leak=%.4g, theta=%.4g)", v.KPrime, v.TauLeak, v.Theta)
	}
	return "unknown"
}
