package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
	"github.com/san-kum/looptune/internal/process"
)

// Simulator runs a closed loop of process model, controller and optional
// actuator. Pass a nil Actuator (not a typed nil pointer) for no valve.
type Simulator struct {
	model      process.Model
	controller Controller
	actuator   Actuator
	lag        integrators.Lag
	metrics    []Metric
	observers  []Observer
}

func New(model process.Model, controller Controller, actuator Actuator) *Simulator {
	return &Simulator{
		model:      model,
		controller: controller,
		actuator:   actuator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// SetLag swaps the process discretization (integrators.Euler for
// comparison). nil means exact.
func (s *Simulator) SetLag(lag integrators.Lag) { s.lag = lag }

// Run simulates Duration seconds and returns every sample from t=0 to
// t=Duration inclusive. Controller, actuator and plant are reset first, so
// repeated runs with the same config are identical.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*dynamo.Run, error) {
	if err := validateConfig(cfg, false); err != nil {
		return nil, err
	}

	l, err := newLoop(s.model, s.lag, s.controller, s.actuator, cfg)
	if err != nil {
		return nil, err
	}

	steps := cfg.Steps()
	result := &dynamo.Run{
		Points:  make([]dynamo.Point, 0, steps),
		Metrics: make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		p, err := l.step(nil)
		if err != nil {
			return result, err
		}
		result.Points = append(result.Points, p)

		for _, m := range s.metrics {
			m.Observe(p)
		}
		for _, obs := range s.observers {
			obs.OnStep(p)
		}
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

// RunWithCallback steps until Duration or until callback returns false.
func (s *Simulator) RunWithCallback(ctx context.Context, cfg Config, callback func(dynamo.Point) bool) error {
	if err := validateConfig(cfg, false); err != nil {
		return err
	}

	l, err := newLoop(s.model, s.lag, s.controller, s.actuator, cfg)
	if err != nil {
		return err
	}

	for i := 0; i < cfg.Steps(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := l.step(nil)
		if err != nil {
			return err
		}
		if !callback(p) {
			return nil
		}
	}
	return nil
}

func validateConfig(cfg Config, streaming bool) error {
	if !(cfg.Dt > 0) || math.IsInf(cfg.Dt, 0) {
		return dynamo.Invalid("dt", cfg.Dt, "must be positive")
	}
	if streaming {
		if math.IsNaN(cfg.Duration) || cfg.Duration < 0 {
			return dynamo.Invalid("duration", cfg.Duration, "must be non-negative")
		}
	} else if !(cfg.Duration > 0) || math.IsInf(cfg.Duration, 0) {
		return dynamo.Invalid("duration", cfg.Duration, "must be positive")
	}
	if math.IsNaN(cfg.NoiseStd) || cfg.NoiseStd < 0 {
		return dynamo.Invalid("noise_std", cfg.NoiseStd, "must be non-negative")
	}
	if math.IsNaN(cfg.Y0) || math.IsNaN(cfg.U0) {
		return fmt.Errorf("%w: initial state must be finite", dynamo.ErrInvalidParameter)
	}
	return nil
}
