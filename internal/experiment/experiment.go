package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/sim"
	"github.com/san-kum/looptune/internal/tuning"
)

// Experiment is one configured loop, ready to run.
type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	model     process.Model
	simulator *sim.Simulator
	simCfg    sim.Config
}

func New(cfg *config.Config) (*Experiment, error) {
	return NewWithRegistry(NewRegistry(), cfg)
}

func NewWithRegistry(r *Registry, cfg *config.Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := r.Model(cfg.Process)
	if err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	ctrl, err := r.Controller(cfg.Controller, cfg.InitState.OP)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	act, err := r.Valve(cfg.Valve)
	if err != nil {
		return nil, fmt.Errorf("valve: %w", err)
	}
	lag, err := r.Lag(cfg.Discretization)
	if err != nil {
		return nil, err
	}

	s := sim.New(model, ctrl, act)
	s.SetLag(lag)
	for _, m := range r.DefaultMetrics() {
		s.AddMetric(m)
	}
	return &Experiment{
		cfg:       cfg,
		registry:  r,
		model:     model,
		simulator: s,
		simCfg:    SimConfig(cfg),
	}, nil
}

// Build returns a ready simulator and its run configuration.
func Build(cfg *config.Config) (*sim.Simulator, sim.Config, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, sim.Config{}, err
	}
	return e.simulator, e.simCfg, nil
}

// SimConfig maps the scenario fields onto sim.Config.
func SimConfig(cfg *config.Config) sim.Config {
	return sim.Config{
		Dt:          cfg.Dt,
		Duration:    cfg.Duration,
		Y0:          cfg.InitState.PV,
		U0:          cfg.InitState.OP,
		Setpoint:    cfg.Setpoint,
		Disturbance: cfg.Disturbance,
		NoiseStd:    cfg.NoiseStd,
		Seed:        cfg.Seed,
	}
}

func (e *Experiment) Run(ctx context.Context) (*dynamo.Run, error) {
	return e.simulator.Run(ctx, e.simCfg)
}

// Stream builds an independent streaming loop from the same config.
func (e *Experiment) Stream() (*sim.Stream, error) {
	return e.StreamFor(e.simCfg.Duration)
}

// StreamFor is Stream with another duration; 0 never ends.
func (e *Experiment) StreamFor(duration float64) (*sim.Stream, error) {
	ctrl, err := e.registry.Controller(e.cfg.Controller, e.cfg.InitState.OP)
	if err != nil {
		return nil, err
	}
	act, err := e.registry.Valve(e.cfg.Valve)
	if err != nil {
		return nil, err
	}
	cfg := e.simCfg
	cfg.Duration = duration
	st, err := sim.NewStream(e.model, ctrl, act, cfg)
	if err != nil {
		return nil, err
	}
	lag, err := e.registry.Lag(e.cfg.Discretization)
	if err != nil {
		return nil, err
	}
	st.SetLag(lag)
	return st, nil
}

// Case packages the experiment for sim.Compare. Each call of the
// constructors builds fresh state.
func (e *Experiment) Case(name string) sim.Case {
	cfg := e.cfg
	r := e.registry
	// The name was checked when the experiment was built.
	newLag := func() integrators.Lag {
		lag, _ := r.Lag(cfg.Discretization)
		return lag
	}
	return sim.Case{
		Name:          name,
		Model:         e.model,
		NewController: func() (sim.Controller, error) { return r.Controller(cfg.Controller, cfg.InitState.OP) },
		NewActuator:   func() (sim.Actuator, error) { return r.Valve(cfg.Valve) },
		NewMetrics:    r.DefaultMetrics,
		NewLag:        newLag,
		Config:        e.simCfg,
	}
}

func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }
func (e *Experiment) SimConfig() sim.Config     { return e.simCfg }
func (e *Experiment) Model() process.Model      { return e.model }
func (e *Experiment) Config() *config.Config    { return e.cfg }

// Tuned returns a copy of cfg whose PID gains come from method, using
// cfg.Tuning.Speed and the configured form.
func Tuned(cfg *config.Config, method tuning.Method) (*config.Config, tuning.Gains, error) {
	r := NewRegistry()
	model, err := r.Model(cfg.Process)
	if err != nil {
		return nil, tuning.Gains{}, err
	}
	form, err := control.ParseForm(cfg.Controller.Form)
	if err != nil {
		return nil, tuning.Gains{}, fmt.Errorf("%w: %v", dynamo.ErrInvalidParameter, err)
	}
	g, err := tuning.Tune(model, method, cfg.Tuning.Speed, form)
	if err != nil {
		return nil, tuning.Gains{}, err
	}

	out := cfg.Clone()
	out.Controller.Type = "pid"
	out.Controller.Form = form.String()
	out.Controller.Kp, out.Controller.Ti, out.Controller.Td = g.Kp, g.Ti, g.Td
	out.Tuning.Method = string(method)
	return out, g, nil
}

// StepTest returns a copy of cfg that replaces the controller with a
// manual station stepping the output by delta at time at.
func StepTest(cfg *config.Config, delta, at float64) *config.Config {
	out := cfg.Clone()
	sched := dynamo.StepAt(cfg.InitState.OP, at, cfg.InitState.OP+delta)
	out.Controller = config.ControllerConfig{
		Type:   "manual",
		OutMin: cfg.Controller.OutMin,
		OutMax: cfg.Controller.OutMax,
		Output: &sched,
	}
	return out
}
