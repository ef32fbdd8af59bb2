package sim

import (
	"math"
	"math/rand"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
	"github.com/san-kum/looptune/internal/process"
)

// loop owns the per-run state of one closed loop. Both the batch simulator
// and the stream drive it one step at a time.
type loop struct {
	plant    *process.Plant
	ctrl     Controller
	act      Actuator
	cfg      Config
	rng      *rand.Rand
	k        int
	override *float64
}

func newLoop(m process.Model, lag integrators.Lag, ctrl Controller, act Actuator, cfg Config) (*loop, error) {
	plant, err := process.NewPlant(m, cfg.Dt)
	if err != nil {
		return nil, err
	}
	plant.SetLag(lag)
	l := &loop{plant: plant, ctrl: ctrl, act: act, cfg: cfg}
	l.reset()
	return l, nil
}

func (l *loop) reset() {
	u0 := l.cfg.U0
	if l.act != nil {
		l.act.Reset(l.cfg.U0)
		u0 = l.act.Flow()
	}
	l.plant.Reset(u0, l.cfg.Y0)
	l.ctrl.Reset(l.cfg.U0, l.cfg.Y0)
	l.rng = rand.New(rand.NewSource(l.cfg.Seed))
	l.k = 0
}

func (l *loop) time() float64 {
	return float64(l.k) * l.cfg.Dt
}

// step advances one sample. measured, when non-nil, replaces the simulated
// PV; the model output is still recorded as Predicted.
func (l *loop) step(measured *float64) (dynamo.Point, error) {
	dt := l.cfg.Dt
	t := l.time()
	sp := l.cfg.Setpoint.At(t)
	if l.override != nil {
		sp = *l.override
	}
	d := l.cfg.Disturbance.At(t)

	y := l.plant.Output()
	pv := y
	if measured != nil {
		pv = *measured
	} else if l.cfg.NoiseStd > 0 {
		pv += l.rng.NormFloat64() * l.cfg.NoiseStd
	}

	op, err := l.ctrl.Step(sp, pv, dt)
	if err != nil {
		return dynamo.Point{}, &dynamo.SimulationError{Step: l.k, Time: t, Wrapped: err}
	}

	u, pos := op, op
	if l.act != nil {
		if pos, err = l.act.Apply(op, dt); err != nil {
			return dynamo.Point{}, &dynamo.SimulationError{Step: l.k, Time: t, Wrapped: err}
		}
		u = l.act.Flow()
	}

	p := dynamo.Point{T: t, Setpoint: sp, PV: pv, OP: op, Disturbance: d, Valve: pos, Predicted: y}
	if !p.IsValid() {
		return dynamo.Point{}, &dynamo.SimulationError{Step: l.k, Time: t, Wrapped: dynamo.ErrNumericalInstability}
	}

	if next := l.plant.Step(u, d); math.IsNaN(next) || math.IsInf(next, 0) {
		return dynamo.Point{}, &dynamo.SimulationError{Step: l.k, Time: t + dt, Wrapped: dynamo.ErrNumericalInstability}
	}

	l.k++
	return p, nil
}
