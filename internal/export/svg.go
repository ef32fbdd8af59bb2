// Package export renders loop analysis results as standalone SVG.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/looptune/internal/analysis"
	"github.com/san-kum/looptune/internal/dynamo"
)

// PortraitSVG traces p as one polyline on a width x height pixel image,
// with 10% padding and the axis labels and ranges in the corners.
func PortraitSVG(p *analysis.Portrait, width, height int, stroke string) (string, error) {
	if p == nil || len(p.Points) < 2 {
		return "", fmt.Errorf("portrait needs at least 2 points: %w", dynamo.ErrInsufficientData)
	}
	if width < 16 || height < 16 {
		return "", dynamo.Invalid("size", float64(min(width, height)), "must be at least 16 px")
	}
	if stroke == "" {
		stroke = "#32cd32"
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}
	loX, hiX := pad(minX, maxX)
	loY, hiY := pad(minY, maxY)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`, width, height, width, height, stroke)

	for i, pt := range p.Points {
		x := (pt.X - loX) / (hiX - loX) * float64(width)
		y := float64(height) - (pt.Y-loY)/(hiY-loY)*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")
	fmt.Fprintf(&sb, `<g fill="#8c8c8c" font-family="monospace" font-size="11">
<text x="4" y="%d">%s [%.3g, %.3g]</text>
<text x="4" y="14">%s [%.3g, %.3g]</text>
</g>
</svg>
`, height-4, escape(p.XLabel), minX, maxX, escape(p.YLabel), minY, maxY)
	return sb.String(), nil
}

// WritePortraitSVG writes PortraitSVG to w.
func WritePortraitSVG(w io.Writer, p *analysis.Portrait, width, height int) error {
	s, err := PortraitSVG(p, width, height, "")
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

func pad(lo, hi float64) (float64, float64) {
	span := hi - lo
	if span == 0 {
		span = 1
	}
	return lo - 0.1*span, hi + 0.1*span
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return escaper.Replace(s) }
