package valve

import (
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
)

// Config describes the actuator nonlinearities. All amounts are percent of
// travel; PositionerTau is in seconds.
type Config struct {
	Deadband       float64
	Stiction       float64
	Overshoot      float64
	PositionerTau  float64
	Characteristic Characteristic
	Rangeability   float64
}

// Valve is a stateful actuator. It must be Reset before the first Apply.
type Valve struct {
	cfg Config

	committed float64
	stem      float64
	lastDir   int
	stalled   bool
	ready     bool
}

func New(cfg Config) (*Valve, error) {
	if cfg.Rangeability == 0 {
		cfg.Rangeability = DefaultRangeability
	}
	checks := []struct {
		name string
		v    float64
	}{
		{"deadband", cfg.Deadband},
		{"stiction", cfg.Stiction},
		{"overshoot", cfg.Overshoot},
		{"positioner_tau", cfg.PositionerTau},
	}
	for _, c := range checks {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) || c.v < 0 {
			return nil, dynamo.Invalid(c.name, c.v, "must be finite and non-negative")
		}
	}
	if !(cfg.Rangeability > 1) || math.IsInf(cfg.Rangeability, 0) {
		return nil, dynamo.Invalid("rangeability", cfg.Rangeability, "must be greater than 1")
	}
	switch cfg.Characteristic {
	case Linear, EqualPercentage, QuickOpening:
	default:
		return nil, dynamo.Invalid("characteristic", float64(cfg.Characteristic), "unknown")
	}
	return &Valve{cfg: cfg}, nil
}

func (v *Valve) Config() Config { return v.cfg }

// Reset puts the stem at rest at position.
func (v *Valve) Reset(position float64) {
	position = clamp(position, 0, 100)
	v.committed = position
	v.stem = position
	v.lastDir = 0
	v.stalled = true
	v.ready = true
}

// Apply moves the valve toward command for one dt and returns the stem
// position.
func (v *Valve) Apply(command, dt float64) (float64, error) {
	if !v.ready {
		return 0, dynamo.ErrNotInitialized
	}
	if !(dt > 0) {
		return 0, dynamo.Invalid("dt", dt, "must be positive")
	}
	if math.IsNaN(command) {
		return 0, dynamo.ErrNumericalInstability
	}

	command = clamp(command, 0, 100)
	delta := command - v.committed
	target := v.committed
	moved := false

	// Commands within ±Deadband/2 of the committed position are ignored.
	if delta != 0 && math.Abs(delta) > v.cfg.Deadband/2 {
		dir := 1
		if delta < 0 {
			dir = -1
		}
		reversal := v.lastDir != 0 && dir != v.lastDir
		stuck := (reversal || v.stalled) && math.Abs(delta) < v.cfg.Stiction
		if !stuck {
			v.committed = command
			v.lastDir = dir
			moved = true
			target = clamp(command+float64(dir)*v.cfg.Overshoot, 0, 100)
		}
	}
	v.stalled = !moved

	v.stem += integrators.Alpha(v.cfg.PositionerTau, dt) * (target - v.stem)
	v.stem = clamp(v.stem, 0, 100)
	return v.stem, nil
}

func (v *Valve) Position() float64 { return v.stem }

// Flow is the characteristic applied to the current stem position.
func (v *Valve) Flow() float64 {
	return v.cfg.Characteristic.Flow(v.stem, v.cfg.Rangeability)
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
