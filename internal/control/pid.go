package control

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
)

type Form int

const (
	FormP Form = iota
	FormPI
	FormPID
)

func (f Form) String() string {
	switch f {
	case FormP:
		return "P"
	case FormPI:
		return "PI"
	case FormPID:
		return "PID"
	}
	return fmt.Sprintf("form(%d)", int(f))
}

func ParseForm(s string) (Form, error) {
	switch strings.ToUpper(s) {
	case "P":
		return FormP, nil
	case "PI", "":
		return FormPI, nil
	case "PID":
		return FormPID, nil
	}
	return FormPI, fmt.Errorf("unknown controller form: %s", s)
}

// AntiWindup selects how the integral is protected while the output is
// clamped.
type AntiWindup int

const (
	// Conditional stops integrating while the output is saturated and the
	// error drives it further into saturation.
	Conditional AntiWindup = iota
	// BackCalculation bleeds the clamp excess back into the integral with
	// time constant TrackingTime (0 means the full excess each step).
	BackCalculation
)

func (a AntiWindup) String() string {
	if a == BackCalculation {
		return "back_calculation"
	}
	return "conditional"
}

func ParseAntiWindup(s string) (AntiWindup, error) {
	switch s {
	case "", "conditional", "clamping":
		return Conditional, nil
	case "back_calculation", "back-calculation", "tracking":
		return BackCalculation, nil
	}
	return Conditional, fmt.Errorf("unknown anti-windup policy: %s", s)
}

type Phase int

const (
	Uninitialized Phase = iota
	Idle
	Running
)

func (p Phase) String() string {
	return [...]string{"uninitialized", "idle", "running"}[p]
}

const DefaultFilterN = 10.0

// Config holds the tuning and limits of a PID. Ti and Td are in seconds;
// Ti = 0 or Td = 0 disables that term.
type Config struct {
	Form   Form
	Kp     float64
	Ti     float64
	Td     float64
	OutMin float64
	OutMax float64
	Bias   float64
	// Beta weights the setpoint in the proportional term.
	Beta float64
	// FilterN sets the derivative filter time constant Td/FilterN.
	FilterN      float64
	AntiWindup   AntiWindup
	TrackingTime float64
	// Gap suppresses P and I action while |error| < Gap.
	Gap            float64
	SetpointFilter float64
	PVFilter       float64
}

func DefaultConfig() Config {
	return Config{
		Form:    FormPI,
		Kp:      1,
		Ti:      10,
		OutMin:  0,
		OutMax:  100,
		Beta:    1,
		FilterN: DefaultFilterN,
	}
}

func (c Config) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"kp", c.Kp},
		{"ti", c.Ti},
		{"td", c.Td},
		{"tracking_time", c.TrackingTime},
		{"gap", c.Gap},
		{"sp_filter", c.SetpointFilter},
		{"pv_filter", c.PVFilter},
	}
	for _, ch := range checks {
		if math.IsNaN(ch.v) || math.IsInf(ch.v, 0) || ch.v < 0 {
			return dynamo.Invalid(ch.name, ch.v, "must be finite and non-negative")
		}
	}
	if c.Form < FormP || c.Form > FormPID {
		return dynamo.Invalid("form", float64(c.Form), "unknown")
	}
	if !(c.OutMin < c.OutMax) {
		return fmt.Errorf("%w: output range [%g, %g] is empty", dynamo.ErrInvalidParameter, c.OutMin, c.OutMax)
	}
	if math.IsNaN(c.Bias) || math.IsInf(c.Bias, 0) {
		return dynamo.Invalid("bias", c.Bias, "must be finite")
	}
	if !(c.Beta >= 0 && c.Beta <= 1) {
		return dynamo.Invalid("beta", c.Beta, "must be in [0, 1]")
	}
	if !(c.FilterN > 0) || math.IsInf(c.FilterN, 0) {
		return dynamo.Invalid("filter_n", c.FilterN, "must be positive")
	}
	return nil
}

// PID is a positional ISA controller:
//
//	u = Bias + Kp*(Beta*sp - pv) + I - Kp*Td*d(pv)/dt
//
// with I += Kp*dt/Ti*e and the derivative low-pass filtered with Td/N.
type PID struct {
	cfg Config

	integral float64
	prevPV   float64
	dFilt    float64
	spF      float64
	pvF      float64
	out      float64
	phase    Phase
}

func New(cfg Config) (*PID, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PID{cfg: cfg}, nil
}

// Reset performs a bumpless initialization: with sp = pv0 the first Step
// returns out0. The accumulator absorbs the Kp*(Beta-1)*pv0 left by
// setpoint weighting.
func (p *PID) Reset(out0, pv0 float64) {
	c := &p.cfg
	p.integral = clamp(out0-c.Bias-c.Kp*(c.Beta-1)*pv0, c.OutMin-c.Bias, c.OutMax-c.Bias)
	p.prevPV = pv0
	p.pvF = pv0
	p.dFilt = 0
	p.out = clamp(out0, p.cfg.OutMin, p.cfg.OutMax)
	p.phase = Idle
}

func (p *PID) Step(sp, pv, dt float64) (float64, error) {
	if p.phase == Uninitialized {
		return 0, dynamo.ErrNotInitialized
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return 0, dynamo.Invalid("dt", dt, "must be positive")
	}
	if math.IsNaN(sp) || math.IsNaN(pv) || math.IsInf(sp, 0) || math.IsInf(pv, 0) {
		return 0, dynamo.ErrNumericalInstability
	}
	c := &p.cfg

	if p.phase == Idle {
		p.spF = sp
	}
	p.spF = lowpass(p.spF, sp, c.SetpointFilter, dt)
	p.pvF = lowpass(p.pvF, pv, c.PVFilter, dt)
	sp, pv = p.spF, p.pvF

	e := sp - pv
	inGap := c.Gap > 0 && math.Abs(e) < c.Gap
	if inGap {
		e = 0
	}

	prop := c.Kp * (c.Beta*sp - pv)
	if inGap {
		prop = 0
	}

	deriv := 0.0
	if c.Form == FormPID && c.Td > 0 {
		raw := (pv - p.prevPV) / dt
		tf := c.Td / c.FilterN
		a := tf / (tf + dt)
		p.dFilt = a*p.dFilt + (1-a)*raw
		deriv = c.Kp * c.Td * p.dFilt
	}

	if c.Form != FormP && c.Ti > 0 {
		cand := p.integral + c.Kp*dt/c.Ti*e
		raw := c.Bias + prop - deriv + cand
		switch c.AntiWindup {
		case BackCalculation:
			excess := clamp(raw, c.OutMin, c.OutMax) - raw
			if c.TrackingTime > 0 {
				cand += dt / c.TrackingTime * excess
			} else {
				cand += excess
			}
		default:
			if (raw > c.OutMax && e > 0) || (raw < c.OutMin && e < 0) {
				cand = p.integral
			}
		}
		p.integral = clamp(cand, c.OutMin-c.Bias, c.OutMax-c.Bias)
	}

	p.out = clamp(c.Bias+prop-deriv+p.integral, c.OutMin, c.OutMax)
	p.prevPV = pv
	p.phase = Running
	return p.out, nil
}

func (p *PID) Config() Config    { return p.cfg }
func (p *PID) Phase() Phase      { return p.phase }
func (p *PID) Output() float64   { return p.out }
func (p *PID) Integral() float64 { return p.integral }

// SetTuning replaces Kp, Ti and Td without touching the integral state.
func (p *PID) SetTuning(kp, ti, td float64) error {
	next := p.cfg
	next.Kp, next.Ti, next.Td = kp, ti, td
	if err := next.Validate(); err != nil {
		return err
	}
	p.cfg = next
	return nil
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":   p.cfg.Kp,
		"Ti":   p.cfg.Ti,
		"Td":   p.cfg.Td,
		"Beta": p.cfg.Beta,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) error {
	next := p.cfg
	switch name {
	case "Kp":
		next.Kp = value
	case "Ti":
		next.Ti = value
	case "Td":
		next.Td = value
	case "Beta":
		next.Beta = value
	default:
		return fmt.Errorf("unknown parameter: %s", name)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	p.cfg = next
	return nil
}

func lowpass(prev, x, tau, dt float64) float64 {
	if tau <= 0 {
		return x
	}
	return prev + integrators.Alpha(tau, dt)*(x-prev)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
