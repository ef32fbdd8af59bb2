package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
	"github.com/san-kum/looptune/internal/metrics"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/sim"
	"github.com/san-kum/looptune/internal/valve"
)

// Registry turns the names used in config files into loop components.
type Registry struct {
	controllers map[string]func(config.ControllerConfig, float64) (sim.Controller, error)
	lags        map[string]func() integrators.Lag
}

func NewRegistry() *Registry {
	r := &Registry{
		controllers: make(map[string]func(config.ControllerConfig, float64) (sim.Controller, error)),
		lags:        make(map[string]func() integrators.Lag),
	}

	r.controllers["pid"] = func(c config.ControllerConfig, _ float64) (sim.Controller, error) {
		cfg, err := PIDConfig(c)
		if err != nil {
			return nil, err
		}
		pid, err := control.New(cfg)
		if err != nil {
			return nil, err
		}
		return pid, nil
	}
	r.controllers["manual"] = func(c config.ControllerConfig, op0 float64) (sim.Controller, error) {
		sched := dynamo.Constant(op0)
		if c.Output != nil {
			sched = *c.Output
		}
		m := control.NewManual(sched)
		if c.OutMin < c.OutMax {
			m.SetLimits(c.OutMin, c.OutMax)
		}
		return m, nil
	}
	r.controllers["relay"] = func(c config.ControllerConfig, _ float64) (sim.Controller, error) {
		relay, err := control.NewRelay(c.Bias, c.Amplitude, c.Hysteresis)
		if err != nil {
			return nil, err
		}
		return relay, nil
	}

	r.lags["exact"] = func() integrators.Lag { return integrators.NewExact() }
	r.lags["euler"] = func() integrators.Lag { return integrators.NewEuler() }

	return r
}

// PIDConfig maps the YAML controller section onto control.Config.
func PIDConfig(c config.ControllerConfig) (control.Config, error) {
	form, err := control.ParseForm(c.Form)
	if err != nil {
		return control.Config{}, fmt.Errorf("%w: %v", dynamo.ErrInvalidParameter, err)
	}
	aw, err := control.ParseAntiWindup(c.AntiWindup)
	if err != nil {
		return control.Config{}, fmt.Errorf("%w: %v", dynamo.ErrInvalidParameter, err)
	}
	cfg := control.Config{
		Form:           form,
		Kp:             c.Kp,
		Ti:             c.Ti,
		Td:             c.Td,
		OutMin:         c.OutMin,
		OutMax:         c.OutMax,
		Bias:           c.Bias,
		Beta:           c.Beta,
		FilterN:        c.FilterN,
		AntiWindup:     aw,
		TrackingTime:   c.TrackingTime,
		Gap:            c.Gap,
		SetpointFilter: c.SPFilter,
		PVFilter:       c.PVFilter,
	}
	if cfg.FilterN == 0 {
		cfg.FilterN = control.DefaultFilterN
	}
	return cfg, cfg.Validate()
}

// Model builds the process model named by p.Family.
func (r *Registry) Model(p config.ProcessConfig) (process.Model, error) {
	family, err := process.ParseFamily(p.Family)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrInvalidParameter, err)
	}
	return process.FromParams(family, map[string]float64{
		"k":        p.K,
		"tau":      p.Tau,
		"tau1":     p.Tau1,
		"tau2":     p.Tau2,
		"theta":    p.Theta,
		"kprime":   p.KPrime,
		"tau_leak": p.TauLeak,
	})
}

// Controller builds the controller named by c.Type. op0 is the initial
// output, used as the hold value of a manual station with no schedule.
func (r *Registry) Controller(c config.ControllerConfig, op0 float64) (sim.Controller, error) {
	fn, ok := r.controllers[c.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown controller: %s", dynamo.ErrInvalidParameter, c.Type)
	}
	return fn(c, op0)
}

// Valve returns nil (no actuator) when v is nil.
func (r *Registry) Valve(v *config.ValveConfig) (sim.Actuator, error) {
	if v == nil {
		return nil, nil
	}
	ch, err := valve.ParseCharacteristic(v.Characteristic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrInvalidParameter, err)
	}
	vv, err := valve.New(valve.Config{
		Deadband:       v.Deadband,
		Stiction:       v.Stiction,
		Overshoot:      v.Overshoot,
		PositionerTau:  v.PositionerTau,
		Characteristic: ch,
		Rangeability:   v.Rangeability,
	})
	if err != nil {
		return nil, err
	}
	return vv, nil
}

func (r *Registry) Lag(name string) (integrators.Lag, error) {
	if name == "" {
		return nil, nil
	}
	fn, ok := r.lags[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown discretization: %s", dynamo.ErrInvalidParameter, name)
	}
	return fn(), nil
}

func (r *Registry) ListControllers() []string { return sortedKeys(r.controllers) }
func (r *Registry) ListLags() []string        { return sortedKeys(r.lags) }

func (r *Registry) ListFamilies() []string {
	return []string{string(process.FamilyFOPDT), string(process.FamilySOPDT), string(process.FamilyIntegrator)}
}

// DefaultMetrics returns fresh metric instances for one run.
func (r *Registry) DefaultMetrics() []sim.Metric {
	return metrics.Standard()
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
