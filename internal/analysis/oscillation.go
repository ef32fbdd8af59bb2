package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/sim"
)

// SustainedRatio is the smallest late/early amplitude ratio that still
// counts as a sustained oscillation.
const SustainedRatio = 0.9

// minRelAmplitude is the oscillation amplitude, relative to the overall
// signal range, below which the signal counts as settled.
const minRelAmplitude = 1e-3

type Oscillation struct {
	Period    float64 `json:"period"`
	Amplitude float64 `json:"amplitude"`
	Sustained bool    `json:"sustained"`
}

// DetectOscillation looks at x after the first transient seconds. The tail
// is split in halves; the oscillation is sustained when the second half
// swings at least SustainedRatio as much as the first. A settled tail has
// zero period.
func DetectOscillation(x []float64, dt, transient float64) (Oscillation, error) {
	if !(dt > 0) {
		return Oscillation{}, dynamo.Invalid("dt", dt, "must be positive")
	}
	skip := int(math.Max(transient, 0)/dt + 0.5)
	if len(x)-skip < 2*MinSamples {
		return Oscillation{}, fmt.Errorf("%w: %d samples after transient", dynamo.ErrInsufficientData, len(x)-skip)
	}
	tail := x[skip:]
	half := len(tail) / 2
	early, late := swing(tail[:half]), swing(tail[half:])

	lo, hi := bounds(x)
	if late <= minRelAmplitude*math.Max(hi-lo, 1e-12) {
		return Oscillation{Amplitude: late}, nil
	}

	o := Oscillation{Amplitude: late, Sustained: late >= SustainedRatio*early}
	period, err := DominantPeriod(tail, dt)
	if err != nil && !errors.Is(err, dynamo.ErrInsufficientData) {
		return Oscillation{}, err
	}
	o.Period = period
	return o, nil
}

// swing is half the peak-to-peak range.
func swing(x []float64) float64 {
	lo, hi := bounds(x)
	return (hi - lo) / 2
}

func bounds(x []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// SweepPoint is the closed-loop behaviour at one proportional gain.
type SweepPoint struct {
	Kp float64 `json:"kp"`
	Oscillation
}

// SweepConfig describes the P-only experiment. The loop starts at rest at
// (Bias, PV0) and the setpoint steps by Step at t = 0.
type SweepConfig struct {
	Model     process.Model
	Bias      float64
	OutMin    float64
	OutMax    float64
	PV0       float64
	Step      float64
	Dt        float64
	Duration  float64
	Transient float64
}

// GainSweep runs one proportional-only loop per gain, concurrently, and
// reports the oscillation left after the transient. It is the
// simulated version of the closed-loop Ziegler-Nichols experiment.
func GainSweep(ctx context.Context, cfg SweepConfig, gains []float64) ([]SweepPoint, error) {
	if len(gains) == 0 {
		return nil, fmt.Errorf("%w: no gains to sweep", dynamo.ErrInvalidParameter)
	}
	simCfg := sim.Config{
		Dt:          cfg.Dt,
		Duration:    cfg.Duration,
		Y0:          cfg.PV0,
		U0:          cfg.Bias,
		Setpoint:    dynamo.StepAt(cfg.PV0, cfg.Dt, cfg.PV0+cfg.Step),
		Disturbance: dynamo.Constant(0),
	}

	cases := make([]sim.Case, len(gains))
	for i, kp := range gains {
		pcfg := control.DefaultConfig()
		pcfg.Form = control.FormP
		pcfg.Kp = kp
		pcfg.Ti = 0
		pcfg.Bias = cfg.Bias
		pcfg.OutMin, pcfg.OutMax = cfg.OutMin, cfg.OutMax
		cases[i] = sim.Case{
			Name:          fmt.Sprintf("kp=%g", kp),
			Model:         cfg.Model,
			NewController: func() (sim.Controller, error) { return control.New(pcfg) },
			Config:        simCfg,
		}
	}

	outcomes, err := sim.Compare(ctx, cases)
	if err != nil {
		return nil, err
	}

	points := make([]SweepPoint, len(gains))
	for i, o := range outcomes {
		osc, err := DetectOscillation(o.Run.PV(), cfg.Dt, cfg.Transient)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.Name, err)
		}
		points[i] = SweepPoint{Kp: gains[i], Oscillation: osc}
	}
	return points, nil
}

// UltimateFromSweep returns the first swept gain with a sustained
// oscillation and its period.
func UltimateFromSweep(points []SweepPoint) (ku, pu float64, ok bool) {
	for _, p := range points {
		if p.Sustained && p.Period > 0 {
			return p.Kp, p.Period, true
		}
	}
	return 0, 0, false
}
