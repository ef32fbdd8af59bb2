// Package analysis reads oscillations out of loop trajectories.
//
//   - [DominantPeriod]: strongest spectral period of a signal (gonum FFT)
//   - [DetectOscillation]: amplitude, period and persistence of a limit cycle
//   - [GainSweep]: closed-loop P-only sweep for the ultimate gain
//   - [NewPortrait]: OP versus PV trace, the usual stiction signature
//
// # Example
//
//	pu, err := analysis.DominantPeriod(run.PV(), cfg.Dt)
//	if errors.Is(err, dynamo.ErrInsufficientData) {
//	    // signal is flat or too short
//	}
package analysis
