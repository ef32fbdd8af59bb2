package sim

import (
	"github.com/san-kum/looptune/internal/dynamo"
)

// Controller is a stateful loop controller (control.PID, control.Manual,
// control.Relay).
type Controller interface {
	Reset(out0, pv0 float64)
	Step(sp, pv, dt float64) (float64, error)
}

// Actuator sits between the controller output and the process input
// (valve.Valve). Flow is what the process sees.
type Actuator interface {
	Reset(position float64)
	Apply(command, dt float64) (float64, error)
	Flow() float64
}

type Metric interface {
	Name() string
	Observe(p dynamo.Point)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(p dynamo.Point)
}

// Config describes one run. Times are in seconds; Y0 and U0 are the initial
// steady state of PV and controller output.
type Config struct {
	Dt          float64
	Duration    float64
	Y0          float64
	U0          float64
	Setpoint    dynamo.Schedule
	Disturbance dynamo.Schedule
	NoiseStd    float64
	Seed        int64
}

func DefaultConfig() Config {
	return Config{
		Dt:       0.1,
		Duration: 100,
		Setpoint: dynamo.Constant(1),
	}
}

// Steps is the number of points a batch run produces.
func (c Config) Steps() int {
	return int(c.Duration/c.Dt+0.5) + 1
}
