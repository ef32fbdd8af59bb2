package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/looptune/internal/analysis"
)

const brailleBlank = 0x2800

// Braille cells are 2x4 dots:
//
//	1 4
//	2 5
//	3 6
//	7 8
var dotBits = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a Braille dot grid. A Width x Height cell canvas addresses
// (2*Width) x (4*Height) dots with (0, 0) at the top left.
type Canvas struct {
	Width, Height int
	cells         [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Dots returns the addressable dot size.
func (c *Canvas) Dots() (int, int) { return c.Width * 2, c.Height * 4 }

// Set lights the dot at (x, y). Out-of-range dots are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.cells[row][col] |= dotBits[y%4][x%2]
}

func (c *Canvas) Clear() {
	for i := range c.cells {
		for j := range c.cells[i] {
			c.cells[i][j] = brailleBlank
		}
	}
}

// Line draws with Bresenham.
func (c *Canvas) Line(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// PortraitString traces a portrait on a Braille canvas of width x height
// cells, joining consecutive samples, with an axis caption underneath.
func PortraitString(p *analysis.Portrait, width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 1 || height < 1 {
		return ""
	}
	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}

	c := NewCanvas(width, height)
	dw, dh := c.Dots()
	project := func(x, y float64) (int, int) {
		px := int(math.Round((x - minX) / spanX * float64(dw-1)))
		py := int(math.Round((maxY - y) / spanY * float64(dh-1)))
		return px, py
	}

	px, py := project(p.Points[0].X, p.Points[0].Y)
	c.Set(px, py)
	for _, pt := range p.Points[1:] {
		nx, ny := project(pt.X, pt.Y)
		c.Line(px, py, nx, ny)
		px, py = nx, ny
	}
	caption := fmt.Sprintf("x: %s [%.2f, %.2f]  y: %s [%.2f, %.2f]", p.XLabel, minX, maxX, p.YLabel, minY, maxY)
	return c.String() + caption + "\n"
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
