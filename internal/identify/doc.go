// Package identify turns a raw step test into a process model.
//
// The pipeline is [Segment], which finds the dominant input step and the
// steady levels around it, followed by [Identify] (or one of the per-family
// fitters), which seeds the model analytically and refines it by least
// squares.
//
// # Segmentation
//
// Inputs are median filtered before differencing so isolated spikes never
// read as steps. Two detectors run on the filtered input:
//
//   - [DetectStepsByDiff] thresholds first differences against a MAD
//     noise estimate
//   - [CUSUMChangePoints] accumulates two-sided drift sums and survives slow
//     ramps the difference detector misses
//
// # Fitting
//
// The gain and baseline enter the response linearly and are solved in
// closed form for every candidate set of time constants. Only the time
// constants and dead time are searched: a coarse grid, then Nelder-Mead.
// A fit that does not converge is an error; there is no fallback to a
// simpler model family.
package identify
