// Package viz renders loop trajectories.
//
//   - [Terminal]: asciigraph trend charts (SP/PV, OP, valve) for the CLI
//   - [SavePNG] / [WritePNG]: a two-panel gonum/plot image
//   - [Canvas] and [PortraitString]: Braille rendering of phase portraits
//   - [Sparkline]: one-line trend used by the live TUI
package viz
