package config

import (
	"sort"

	"github.com/san-kum/looptune/internal/dynamo"
)

// Presets holds canned loops by loop type and variant. Use GetPreset, which
// returns a copy.
var Presets = map[string]map[string]*Config{
	"temperature": {
		"jacket": {
			Name:       "jacketed reactor temperature",
			Process:    ProcessConfig{Family: "fopdt", K: 0.8, Tau: 120, Theta: 15},
			Controller: pid("PID", 2, 120, 8, 40),
			Dt:         1,
			Duration:   1500,
			InitState:  InitStateConfig{PV: 80, OP: 40},
			Setpoint:   dynamo.StepAt(80, 50, 85),
			Tuning:     TuningConfig{Method: "simc", Speed: -1},
		},
		"furnace": {
			Name:       "furnace outlet temperature",
			Process:    ProcessConfig{Family: "sopdt", K: 3, Tau1: 200, Tau2: 40, Theta: 20},
			Controller: pid("PID", 1, 240, 30, 55),
			Dt:         1,
			Duration:   2500,
			InitState:  InitStateConfig{PV: 350, OP: 55},
			Setpoint:   dynamo.StepAt(350, 100, 360),
			NoiseStd:   0.2,
			Tuning:     TuningConfig{Method: "lambda", Speed: 120},
		},
	},
	"flow": {
		"clean": {
			Name:       "liquid flow, healthy valve",
			Process:    ProcessConfig{Family: "fopdt", K: 1.2, Tau: 3, Theta: 0.5},
			Controller: pid("PI", 0.4, 2, 0, 50),
			Valve:      &ValveConfig{Characteristic: "equal_percentage", PositionerTau: 0.5, Rangeability: 50},
			Dt:         0.1,
			Duration:   120,
			InitState:  InitStateConfig{PV: 60, OP: 50},
			Setpoint:   dynamo.StepAt(60, 10, 65),
			NoiseStd:   0.3,
			Tuning:     TuningConfig{Method: "lambda", Speed: 3},
		},
		"sticky": {
			Name:       "liquid flow, sticking valve",
			Process:    ProcessConfig{Family: "fopdt", K: 1.2, Tau: 3, Theta: 0.5},
			Controller: pid("PI", 0.4, 2, 0, 50),
			Valve:      &ValveConfig{Characteristic: "linear", Deadband: 0.5, Stiction: 2, PositionerTau: 0.5},
			Dt:         0.1,
			Duration:   300,
			InitState:  InitStateConfig{PV: 60, OP: 50},
			Setpoint:   dynamo.StepAt(60, 10, 65),
			Tuning:     TuningConfig{Method: "lambda", Speed: 3},
		},
	},
	"level": {
		"surge": {
			Name:        "surge drum level, averaging control",
			Process:     ProcessConfig{Family: "integrator", KPrime: 0.02, Theta: 2},
			Controller:  pid("PI", 2, 200, 0, 50),
			Dt:          0.5,
			Duration:    2000,
			InitState:   InitStateConfig{PV: 50, OP: 50},
			Setpoint:    dynamo.Constant(50),
			Disturbance: dynamo.StepAt(0, 100, -5),
			Tuning:      TuningConfig{Method: "lambda", Speed: 150},
		},
		"tight": {
			Name:       "boiler drum level",
			Process:    ProcessConfig{Family: "integrator", KPrime: 0.05, TauLeak: 500, Theta: 1},
			Controller: pid("PI", 5, 20, 0, 50),
			Dt:         0.2,
			Duration:   600,
			InitState:  InitStateConfig{PV: 50, OP: 50},
			Setpoint:   dynamo.StepAt(50, 20, 52),
			Tuning:     TuningConfig{Method: "simc", Speed: -1},
		},
	},
	"pressure": {
		"header": {
			Name:        "steam header pressure",
			Process:     ProcessConfig{Family: "sopdt", K: 0.5, Tau1: 8, Tau2: 2, Theta: 1},
			Controller:  pid("PI", 3, 8, 0, 50),
			Dt:          0.1,
			Duration:    200,
			InitState:   InitStateConfig{PV: 10, OP: 50},
			Setpoint:    dynamo.StepAt(10, 10, 11),
			Disturbance: dynamo.StepAt(0, 100, 4),
			NoiseStd:    0.02,
			Tuning:      TuningConfig{Method: "simc-improved", Speed: -1},
		},
	},
}

func pid(form string, kp, ti, td, bias float64) ControllerConfig {
	return ControllerConfig{
		Type:       "pid",
		Form:       form,
		Kp:         kp,
		Ti:         ti,
		Td:         td,
		OutMin:     0,
		OutMax:     100,
		Bias:       bias,
		Beta:       1,
		FilterN:    10,
		AntiWindup: "conditional",
	}
}

// GetPreset returns a copy of the preset, or nil.
func GetPreset(loop, variant string) *Config {
	loopPresets, ok := Presets[loop]
	if !ok {
		return nil
	}
	cfg, ok := loopPresets[variant]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// ListPresets returns the variants of a loop type in name order.
func ListPresets(loop string) []string {
	loopPresets, ok := Presets[loop]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(loopPresets))
	for name := range loopPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Loops returns the preset loop types in name order.
func Loops() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
