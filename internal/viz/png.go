package viz

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/looptune/internal/dynamo"
)

var (
	colorSP    = color.RGBA{R: 200, G: 140, B: 0, A: 255}
	colorPV    = color.RGBA{R: 20, G: 140, B: 60, A: 255}
	colorOP    = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	colorValve = color.RGBA{R: 170, G: 60, B: 170, A: 255}
)

// SavePNG writes a two-panel image (SP/PV on top, OP and valve below) of
// width x height inches.
func SavePNG(run *dynamo.Run, title, path string, width, height float64) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create plot dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := WritePNG(bw, run, title, width, height); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func WritePNG(w io.Writer, run *dynamo.Run, title string, width, height float64) error {
	if run == nil || run.Len() < 2 {
		return fmt.Errorf("run has too few points to plot: %w", dynamo.ErrInsufficientData)
	}
	if width <= 0 {
		width = 10
	}
	if height <= 0 {
		height = 7
	}

	top := plot.New()
	top.Title.Text = title
	top.Y.Label.Text = "PV"
	if err := addSeries(top, run, "SP", colorSP, plotter.PostStep, func(p dynamo.Point) float64 { return p.Setpoint }); err != nil {
		return err
	}
	if err := addSeries(top, run, "PV", colorPV, plotter.NoStep, func(p dynamo.Point) float64 { return p.PV }); err != nil {
		return err
	}
	top.Add(plotter.NewGrid())
	top.Legend.Top = true

	bottom := plot.New()
	bottom.X.Label.Text = "time (s)"
	bottom.Y.Label.Text = "%"
	if err := addSeries(bottom, run, "OP", colorOP, plotter.PostStep, func(p dynamo.Point) float64 { return p.OP }); err != nil {
		return err
	}
	if hasValve(run.Points) {
		if err := addSeries(bottom, run, "valve", colorValve, plotter.NoStep, func(p dynamo.Point) float64 { return p.Valve }); err != nil {
			return err
		}
	}
	bottom.Add(plotter.NewGrid())
	bottom.Legend.Top = true

	img := vgimg.New(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: 4 * vg.Millimeter, PadTop: 2 * vg.Millimeter, PadBottom: 2 * vg.Millimeter, PadLeft: 2 * vg.Millimeter, PadRight: 4 * vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{top}, {bottom}}, tiles, dc)
	top.Draw(canvases[0][0])
	bottom.Draw(canvases[1][0])

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func addSeries(p *plot.Plot, run *dynamo.Run, name string, c color.Color, step plotter.StepKind, f func(dynamo.Point) float64) error {
	pts := make(plotter.XYs, run.Len())
	for i, pt := range run.Points {
		pts[i].X = pt.T
		pts[i].Y = f(pt)
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s line: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	line.StepStyle = step
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
