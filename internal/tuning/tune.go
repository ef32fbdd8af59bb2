package tuning

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
)

type Method string

const (
	SIMC                   Method = "simc"
	SIMCImproved           Method = "simc-improved"
	Lambda                 Method = "lambda"
	ZieglerNichols         Method = "zn"
	ZieglerNicholsUltimate Method = "zn-ultimate"
	CohenCoonMethod        Method = "cohen-coon"
)

func Methods() []Method {
	return []Method{SIMC, SIMCImproved, Lambda, ZieglerNichols, ZieglerNicholsUltimate, CohenCoonMethod}
}

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(s))
	for _, known := range Methods() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown tuning method: %s", s)
}

// UsesSpeed reports whether speed (tau_c or lambda) affects the method.
func (m Method) UsesSpeed() bool {
	return m == SIMC || m == SIMCImproved || m == Lambda
}

// HalfRule reduces an SOPDT to an FOPDT by Skogestad's half rule: half of
// tau2 goes to tau1 and half to the dead time.
func HalfRule(m process.SOPDT) process.FOPDT {
	return process.FOPDT{K: m.K, Tau: m.Tau1 + m.Tau2/2, Theta: m.Theta + m.Tau2/2}
}

// Tune applies method to any model family. speed is tau_c for SIMC and
// lambda for Lambda; a negative speed picks RecommendedTauC. The result has
// only the terms form uses.
func Tune(m process.Model, method Method, speed float64, form control.Form) (Gains, error) {
	if err := process.Validate(m); err != nil {
		return Gains{}, err
	}
	if math.IsNaN(speed) {
		return Gains{}, dynamo.Invalid("speed", speed, "must be a number")
	}
	if speed < 0 {
		speed = RecommendedTauC(m.DeadTime())
	}

	var (
		g   Gains
		err error
	)
	switch v := m.(type) {
	case process.FOPDT:
		g, err = tuneFOPDT(v, method, speed, form)
	case *process.FOPDT:
		g, err = tuneFOPDT(*v, method, speed, form)
	case process.SOPDT:
		g, err = tuneSOPDT(v, method, speed, form)
	case *process.SOPDT:
		g, err = tuneSOPDT(*v, method, speed, form)
	case process.IntegratorLeak:
		g, err = tuneIntegrator(v, method, speed, form)
	case *process.IntegratorLeak:
		g, err = tuneIntegrator(*v, method, speed, form)
	default:
		return Gains{}, fmt.Errorf("%w: unsupported model %T", dynamo.ErrInvalidParameter, m)
	}
	if err != nil {
		return Gains{}, err
	}
	return g.WithForm(form), nil
}

func tuneFOPDT(m process.FOPDT, method Method, speed float64, form control.Form) (Gains, error) {
	switch method {
	case SIMC:
		return SIMCPI(m, speed, false)
	case SIMCImproved:
		return SIMCPI(m, speed, true)
	case Lambda:
		return LambdaFOPDT(m, speed)
	case ZieglerNichols:
		return ZNReactionCurve(m, form)
	case ZieglerNicholsUltimate:
		ku, pu, err := UltimateGain(m)
		if err != nil {
			return Gains{}, err
		}
		return ZNUltimate(ku, pu, form)
	case CohenCoonMethod:
		return CohenCoon(m, form)
	}
	return Gains{}, fmt.Errorf("%w: unknown method %q", dynamo.ErrInvalidParameter, method)
}

// tuneSOPDT keeps the second lag for PID forms of SIMC and Lambda and uses
// the half rule everywhere else.
func tuneSOPDT(m process.SOPDT, method Method, speed float64, form control.Form) (Gains, error) {
	if form == control.FormPID {
		switch method {
		case SIMC:
			return SIMCPID(m, speed, false)
		case SIMCImproved:
			return SIMCPID(m, speed, true)
		case Lambda:
			return LambdaSOPDT(m, speed)
		}
	}
	return tuneFOPDT(HalfRule(m), method, speed, form)
}

// tuneIntegrator treats a finite leak as the equivalent FOPDT.
func tuneIntegrator(m process.IntegratorLeak, method Method, speed float64, form control.Form) (Gains, error) {
	if !m.Pure() {
		return tuneFOPDT(process.FOPDT{K: m.KPrime * m.TauLeak, Tau: m.TauLeak, Theta: m.Theta}, method, speed, form)
	}
	switch method {
	case SIMC, SIMCImproved:
		return SIMCIntegrator(m.KPrime, m.Theta, speed)
	case Lambda:
		return LambdaIntegrator(m.KPrime, m.Theta, speed)
	case ZieglerNichols:
		return ZNIntegrating(m.KPrime, m.Theta, form)
	case ZieglerNicholsUltimate:
		ku, pu, err := UltimateGainIntegrator(m.KPrime, m.Theta)
		if err != nil {
			return Gains{}, err
		}
		return ZNUltimate(ku, pu, form)
	case CohenCoonMethod:
		return Gains{}, fmt.Errorf("%w: Cohen-Coon needs a self-regulating process", dynamo.ErrInvalidParameter)
	}
	return Gains{}, fmt.Errorf("%w: unknown method %q", dynamo.ErrInvalidParameter, method)
}
