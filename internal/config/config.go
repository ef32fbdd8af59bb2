package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/looptune/internal/dynamo"
)

const (
	DefaultDt       = 0.1
	DefaultDuration = 200.0
	DefaultPV       = 50.0
	DefaultOP       = 50.0
	DefaultKp       = 1.0
	DefaultTi       = 10.0
)

// Config describes one loop: process, controller, optional valve and the
// scenario it is run through.
type Config struct {
	Name        string           `yaml:"name,omitempty"`
	Process     ProcessConfig    `yaml:"process"`
	Controller  ControllerConfig `yaml:"controller"`
	Valve       *ValveConfig     `yaml:"valve,omitempty"`
	Dt          float64          `yaml:"dt"`
	Duration    float64          `yaml:"duration"`
	Seed        int64            `yaml:"seed"`
	NoiseStd    float64          `yaml:"noise_std"`
	InitState   InitStateConfig  `yaml:"init_state"`
	Setpoint    dynamo.Schedule  `yaml:"setpoint"`
	Disturbance dynamo.Schedule  `yaml:"disturbance"`
	Tuning      TuningConfig     `yaml:"tuning"`
	// Discretization of the process lags: "exact" (default) or "euler".
	Discretization string `yaml:"discretization,omitempty"`
}

// ProcessConfig holds every family's parameters; Family selects which are
// read. TauLeak 0 means a pure integrator.
type ProcessConfig struct {
	Family  string  `yaml:"family"`
	K       float64 `yaml:"k,omitempty"`
	Tau     float64 `yaml:"tau,omitempty"`
	Tau1    float64 `yaml:"tau1,omitempty"`
	Tau2    float64 `yaml:"tau2,omitempty"`
	Theta   float64 `yaml:"theta"`
	KPrime  float64 `yaml:"kprime,omitempty"`
	TauLeak float64 `yaml:"tau_leak,omitempty"`
}

type ControllerConfig struct {
	Type         string  `yaml:"type"`
	Form         string  `yaml:"form"`
	Kp           float64 `yaml:"kp"`
	Ti           float64 `yaml:"ti"`
	Td           float64 `yaml:"td"`
	OutMin       float64 `yaml:"out_min"`
	OutMax       float64 `yaml:"out_max"`
	Bias         float64 `yaml:"bias"`
	Beta         float64 `yaml:"beta"`
	FilterN      float64 `yaml:"filter_n"`
	AntiWindup   string  `yaml:"anti_windup"`
	TrackingTime float64 `yaml:"tracking_time,omitempty"`
	Gap          float64 `yaml:"gap,omitempty"`
	SPFilter     float64 `yaml:"sp_filter,omitempty"`
	PVFilter     float64 `yaml:"pv_filter,omitempty"`

	// relay
	Amplitude  float64 `yaml:"amplitude,omitempty"`
	Hysteresis float64 `yaml:"hysteresis,omitempty"`

	// manual
	Output *dynamo.Schedule `yaml:"output,omitempty"`
}

type ValveConfig struct {
	Characteristic string  `yaml:"characteristic"`
	Deadband       float64 `yaml:"deadband"`
	Stiction       float64 `yaml:"stiction"`
	Overshoot      float64 `yaml:"overshoot,omitempty"`
	PositionerTau  float64 `yaml:"positioner_tau"`
	Rangeability   float64 `yaml:"rangeability,omitempty"`
}

type InitStateConfig struct {
	PV float64 `yaml:"pv"`
	OP float64 `yaml:"op"`
}

// TuningConfig picks the rule applied by `tune` and `compare`. Speed is
// tau_c or lambda; a negative speed uses the recommended value.
type TuningConfig struct {
	Method string  `yaml:"method"`
	Speed  float64 `yaml:"speed"`
}

func DefaultConfig() *Config {
	return &Config{
		Process: ProcessConfig{Family: "fopdt", K: 1, Tau: 10, Theta: 2},
		Controller: ControllerConfig{
			Type:       "pid",
			Form:       "PI",
			Kp:         DefaultKp,
			Ti:         DefaultTi,
			OutMin:     0,
			OutMax:     100,
			Bias:       DefaultOP,
			Beta:       1,
			FilterN:    10,
			AntiWindup: "conditional",
		},
		Dt:        DefaultDt,
		Duration:  DefaultDuration,
		InitState: InitStateConfig{PV: DefaultPV, OP: DefaultOP},
		Setpoint:  dynamo.StepAt(DefaultPV, 10, DefaultPV+5),
		Tuning:    TuningConfig{Method: "simc", Speed: -1},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the scenario fields. Names (family, form, characteristic)
// are checked when the loop is built.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"dt", c.Dt},
		{"duration", c.Duration},
	} {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return dynamo.Invalid(f.name, f.v, "must be positive")
		}
	}
	if c.Duration < c.Dt {
		return dynamo.Invalid("duration", c.Duration, "shorter than one step")
	}
	if math.IsNaN(c.NoiseStd) || c.NoiseStd < 0 {
		return dynamo.Invalid("noise_std", c.NoiseStd, "must be non-negative")
	}
	if c.Process.Family == "" {
		return fmt.Errorf("%w: process family is required", dynamo.ErrInvalidParameter)
	}
	if c.Controller.Type == "" {
		return fmt.Errorf("%w: controller type is required", dynamo.ErrInvalidParameter)
	}
	return nil
}

// Clone returns a deep copy, so presets can be modified safely.
func (c *Config) Clone() *Config {
	out := *c
	if c.Valve != nil {
		v := *c.Valve
		out.Valve = &v
	}
	if c.Controller.Output != nil {
		o := cloneSchedule(*c.Controller.Output)
		out.Controller.Output = &o
	}
	out.Setpoint = cloneSchedule(c.Setpoint)
	out.Disturbance = cloneSchedule(c.Disturbance)
	return &out
}

func cloneSchedule(s dynamo.Schedule) dynamo.Schedule {
	if s.Changes != nil {
		s.Changes = append([]dynamo.Change(nil), s.Changes...)
	}
	return s
}
