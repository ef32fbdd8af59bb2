package viz

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/san-kum/looptune/internal/analysis"
	"github.com/san-kum/looptune/internal/dynamo"
)

func rampRun(n int) *dynamo.Run {
	run := &dynamo.Run{}
	for i := 0; i < n; i++ {
		t := float64(i) * 0.5
		run.Points = append(run.Points, dynamo.Point{T: t, Setpoint: 50, PV: 40 + float64(i)/float64(n)*10, OP: 60, Valve: 60})
	}
	return run
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	if err := Terminal(&buf, rampRun(100), ChartOptions{Width: 40, Height: 6}); err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"SP / PV", "OP %"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	if strings.Contains(out, "valve") {
		t.Error("expected no valve chart when valve tracks OP")
	}
}

func TestTerminalWithoutColor(t *testing.T) {
	run := rampRun(100)
	for i := range run.Points {
		run.Points[i].Valve = 30
	}
	var buf bytes.Buffer
	if err := Terminal(&buf, run, ChartOptions{Width: 40, Height: 6, Color: false}); err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"SP", "PV", "OP % / valve %"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("expected no ANSI escape codes")
	}
}

func TestTerminalWithColor(t *testing.T) {
	var buf bytes.Buffer
	if err := Terminal(&buf, rampRun(100), ChartOptions{Width: 40, Height: 6, Color: true}); err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	if !strings.Contains(buf.String(), "■") {
		t.Error("expected series legends")
	}
}

func TestTerminalErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := Terminal(&buf, rampRun(1), ChartOptions{}); !errors.Is(err, dynamo.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if err := Terminal(&buf, rampRun(100), ChartOptions{From: 1000, To: 2000}); !errors.Is(err, dynamo.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for empty window, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	pts := rampRun(10).Points
	got := window(pts, 1, 2)
	if len(got) != 3 || got[0].T != 1 || got[2].T != 2 {
		t.Errorf("expected t 1..2 (3 points), got %d points", len(got))
	}
	if len(window(pts, 0, 0)) != 10 {
		t.Error("expected full run for empty window")
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		values []float64
		width  int
		want   int
	}{
		{[]float64{1, 2, 3, 4, 5, 6, 7, 8}, 8, 8},
		{[]float64{1, 2, 3, 4, 5, 6, 7, 8}, 4, 4},
		{[]float64{1, 2}, 10, 2},
		{nil, 5, 5},
		{[]float64{1}, 0, 0},
	}
	for _, tt := range tests {
		got := Sparkline(tt.values, tt.width)
		if n := utf8.RuneCountInString(got); n != tt.want {
			t.Errorf("Sparkline(%v, %d): expected %d runes, got %d", tt.values, tt.width, tt.want, n)
		}
	}
	s := []rune(Sparkline([]float64{0, 10}, 2))
	if s[0] != '▁' || s[1] != '█' {
		t.Errorf("expected low then high block, got %q", string(s))
	}
}

func TestCanvas(t *testing.T) {
	c := NewCanvas(2, 1)
	c.Set(0, 0)
	c.Set(3, 3)
	c.Set(-1, 0)
	c.Set(100, 100)
	got := []rune(strings.TrimSuffix(c.String(), "\n"))
	if len(got) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(got))
	}
	if got[0] != brailleBlank+0x1 {
		t.Errorf("expected dot 1 in first cell, got %U", got[0])
	}
	if got[1] != brailleBlank+0x80 {
		t.Errorf("expected dot 8 in second cell, got %U", got[1])
	}
	c.Clear()
	if strings.TrimSuffix(c.String(), "\n") != string([]rune{brailleBlank, brailleBlank}) {
		t.Error("expected blank canvas after Clear")
	}
}

func TestCanvasLine(t *testing.T) {
	c := NewCanvas(4, 1)
	c.Line(0, 0, 7, 0)
	for i, r := range []rune(strings.TrimSuffix(c.String(), "\n")) {
		if r != brailleBlank+0x1+0x8 {
			t.Errorf("cell %d: expected top row lit, got %U", i, r)
		}
	}
}

func TestPortraitString(t *testing.T) {
	p := &analysis.Portrait{XLabel: "OP", YLabel: "PV"}
	for i := 0; i < 20; i++ {
		p.Points = append(p.Points, struct{ X, Y float64 }{X: float64(i), Y: float64(i % 5)})
	}
	out := PortraitString(p, 10, 4)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 4 canvas rows and a caption, got %d lines", len(lines))
	}
	if !strings.Contains(lines[4], "x: OP") {
		t.Errorf("expected caption, got %q", lines[4])
	}
	if PortraitString(nil, 10, 4) != "" {
		t.Error("expected empty string for nil portrait")
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, rampRun(50), "loop", 4, 3); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("expected PNG signature")
	}
	if err := WritePNG(&buf, &dynamo.Run{}, "", 4, 3); !errors.Is(err, dynamo.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}
