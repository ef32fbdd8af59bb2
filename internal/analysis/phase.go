package analysis

import (
	"math"
	"strings"

	"github.com/san-kum/looptune/internal/dynamo"
)

// Portrait is an x/y trace of two loop signals. Plotting controller output
// against PV (or valve position) shows a valve that sticks as a
// parallelogram rather than an ellipse.
type Portrait struct {
	XLabel, YLabel string
	Points         []struct{ X, Y float64 }
}

// NewPortrait pairs two columns of a run, skipping the first transient
// seconds.
func NewPortrait(run *dynamo.Run, xLabel string, x func(dynamo.Point) float64, yLabel string, y func(dynamo.Point) float64, transient float64) *Portrait {
	p := &Portrait{XLabel: xLabel, YLabel: yLabel}
	for _, pt := range run.Points {
		if pt.T < transient {
			continue
		}
		p.Points = append(p.Points, struct{ X, Y float64 }{X: x(pt), Y: y(pt)})
	}
	return p
}

// OPvsPV is the controller output against the measurement.
func OPvsPV(run *dynamo.Run, transient float64) *Portrait {
	return NewPortrait(run,
		"OP", func(p dynamo.Point) float64 { return p.OP },
		"PV", func(p dynamo.Point) float64 { return p.PV },
		transient)
}

// OPvsValve is the controller output against the stem position.
func OPvsValve(run *dynamo.Run, transient float64) *Portrait {
	return NewPortrait(run,
		"OP", func(p dynamo.Point) float64 { return p.OP },
		"valve", func(p dynamo.Point) float64 { return p.Valve },
		transient)
}

// ASCII draws the trace on a width x height character grid with 10%
// padding around the data.
func (p *Portrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	var sb strings.Builder
	sb.WriteString(p.YLabel + " vs " + p.XLabel + "\n")
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Area is the signed shoelace area of the trace, normalized by its
// bounding box. An open loop in the OP-PV plane (hysteresis from deadband
// or stiction) gives a large magnitude; a line gives zero.
func (p *Portrait) Area() float64 {
	n := len(p.Points)
	if n < 3 {
		return 0
	}
	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	var a float64
	for i, pt := range p.Points {
		next := p.Points[(i+1)%n]
		a += pt.X*next.Y - next.X*pt.Y
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}
	box := (maxX - minX) * (maxY - minY)
	if box == 0 {
		return 0
	}
	return a / 2 / box
}
