// Package control provides the loop controllers driven by the simulator.
//
// Every controller has the same lifecycle: construct, Reset(out0, pv0),
// then Step(sp, pv, dt) once per sample. Stepping before Reset fails with
// [dynamo.ErrNotInitialized].
//
//   - [PID]: ISA PID with setpoint weighting, filtered derivative on PV and
//     anti-windup
//   - [Manual]: open-loop station replaying an output schedule (step tests)
//   - [Relay]: on/off relay with hysteresis for ultimate-gain experiments
//
// # Usage
//
//	pid, err := control.New(control.Config{Form: control.FormPI, Kp: 2.5, Ti: 5, OutMax: 100, Beta: 1, FilterN: 10})
//	pid.Reset(op0, pv0)
//	op, err := pid.Step(sp, pv, dt)
//
// [PID] implements GetParams/SetParam for live tuning.
package control
