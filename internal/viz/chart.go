package viz

import (
	"fmt"
	"io"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/looptune/internal/dynamo"
)

// ChartOptions sizes the terminal charts. Zero fields take the defaults.
type ChartOptions struct {
	Width  int
	Height int
	Color  bool
	// From and To clip the plotted time window, in seconds. To <= From means
	// the whole run.
	From, To float64
}

func DefaultChartOptions() ChartOptions {
	return ChartOptions{Width: 80, Height: 12, Color: true}
}

// Terminal writes the SP/PV trend, the controller output and, when the run
// carries a valve, the stem position.
func Terminal(w io.Writer, run *dynamo.Run, opts ChartOptions) error {
	if run == nil || run.Len() < 2 {
		return fmt.Errorf("run has too few points to plot: %w", dynamo.ErrInsufficientData)
	}
	def := DefaultChartOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}

	pts := window(run.Points, opts.From, opts.To)
	if len(pts) < 2 {
		return fmt.Errorf("time window [%g, %g] holds %d points: %w", opts.From, opts.To, len(pts), dynamo.ErrInsufficientData)
	}
	col := func(f func(dynamo.Point) float64) []float64 {
		out := make([]float64, len(pts))
		for i, p := range pts {
			out[i] = f(p)
		}
		return out
	}
	sp := col(func(p dynamo.Point) float64 { return p.Setpoint })
	pv := col(func(p dynamo.Point) float64 { return p.PV })
	op := col(func(p dynamo.Point) float64 { return p.OP })

	span := fmt.Sprintf("t %.1f..%.1f s", pts[0].T, pts[len(pts)-1].T)

	trend := []asciigraph.Option{
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Caption("SP / PV  " + span),
	}
	if opts.Color {
		trend = append(trend,
			asciigraph.SeriesLegends("SP", "PV"),
			asciigraph.SeriesColors(asciigraph.Goldenrod, asciigraph.LimeGreen),
		)
	}
	if _, err := fmt.Fprintln(w, asciigraph.PlotMany([][]float64{sp, pv}, trend...)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	out := []asciigraph.Option{
		asciigraph.Height(opts.Height / 2),
		asciigraph.Width(opts.Width),
		asciigraph.Caption("OP %"),
	}
	series := [][]float64{op}
	if hasValve(pts) {
		series = append(series, col(func(p dynamo.Point) float64 { return p.Valve }))
		out[2] = asciigraph.Caption("OP % / valve %")
		if opts.Color {
			out = append(out, asciigraph.SeriesLegends("OP", "valve"))
		}
	}
	if opts.Color {
		out = append(out, asciigraph.SeriesColors(asciigraph.DeepSkyBlue, asciigraph.Orchid))
	}
	_, err := fmt.Fprintln(w, asciigraph.PlotMany(series, out...))
	return err
}

// Series plots one named signal.
func Series(w io.Writer, name string, values []float64, opts ChartOptions) error {
	if len(values) < 2 {
		return fmt.Errorf("%s: %w", name, dynamo.ErrInsufficientData)
	}
	if opts.Width <= 0 {
		opts.Width = DefaultChartOptions().Width
	}
	if opts.Height <= 0 {
		opts.Height = DefaultChartOptions().Height
	}
	_, err := fmt.Fprintln(w, asciigraph.Plot(values,
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Caption(name),
	))
	return err
}

// Sparkline compresses values into width block characters.
func Sparkline(values []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	step := len(values) / width
	if step < 1 {
		step = 1
	}
	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		idx := int((values[i*step] - lo) / rng * float64(len(chars)-1))
		idx = max(0, min(idx, len(chars)-1))
		b.WriteRune(chars[idx])
	}
	return b.String()
}

func window(pts []dynamo.Point, from, to float64) []dynamo.Point {
	if to <= from {
		return pts
	}
	lo, hi := len(pts), 0
	for i, p := range pts {
		if p.T >= from && p.T <= to {
			lo = min(lo, i)
			hi = i + 1
		}
	}
	if lo >= hi {
		return nil
	}
	return pts[lo:hi]
}

func hasValve(pts []dynamo.Point) bool {
	for _, p := range pts {
		if p.Valve != p.OP {
			return true
		}
	}
	return false
}
