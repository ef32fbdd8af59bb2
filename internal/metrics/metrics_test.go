package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/looptune/internal/dynamo"
)

func feed(m interface{ Observe(dynamo.Point) }, pts []dynamo.Point) {
	for _, p := range pts {
		m.Observe(p)
	}
}

// constant error of 2 over 3 seconds
func flatError() []dynamo.Point {
	pts := make([]dynamo.Point, 4)
	for i := range pts {
		pts[i] = dynamo.Point{T: float64(i), Setpoint: 3, PV: 1}
	}
	return pts
}

func TestErrorIntegrals(t *testing.T) {
	tests := []struct {
		name     string
		m        *ErrorIntegral
		expected float64
	}{
		{"iae", NewIAE(), 6},
		{"ise", NewISE(), 12},
		{"itae", NewITAE(), 2 * (0 + 1 + 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed(tt.m, flatError())
			if got := tt.m.Value(); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
			tt.m.Reset()
			if tt.m.Value() != 0 {
				t.Error("expected zero after reset")
			}
		})
	}
}

func TestOvershoot(t *testing.T) {
	pts := []dynamo.Point{
		{T: 0, Setpoint: 0, PV: 0},
		{T: 1, Setpoint: 10, PV: 0},
		{T: 2, Setpoint: 10, PV: 12},
		{T: 3, Setpoint: 10, PV: 10},
	}
	m := NewOvershoot()
	feed(m, pts)
	if got := m.Value(); math.Abs(got-20) > 1e-12 {
		t.Errorf("expected 20%% overshoot, got %f", got)
	}

	m.Reset()
	feed(m, flatError())
	if m.Value() != 0 {
		t.Errorf("expected 0 without a setpoint change, got %f", m.Value())
	}
}

func TestSettlingTime(t *testing.T) {
	pts := []dynamo.Point{
		{T: 0, Setpoint: 0, PV: 0},
		{T: 1, Setpoint: 10, PV: 0},
		{T: 2, Setpoint: 10, PV: 8},
		{T: 3, Setpoint: 10, PV: 10.5},
		{T: 4, Setpoint: 10, PV: 10.1},
		{T: 5, Setpoint: 10, PV: 10},
	}
	m := NewSettlingTime(DefaultSettlingBand)
	feed(m, pts)
	if got := m.Value(); got != 3 {
		t.Errorf("expected settling 3s after the step, got %f", got)
	}

	m.Reset()
	feed(m, pts[:4])
	if got := m.Value(); got != 2 {
		t.Errorf("expected run length when never settled, got %f", got)
	}
}

func TestTravelAndReversals(t *testing.T) {
	pts := []dynamo.Point{
		{OP: 10, Valve: 10},
		{OP: 20, Valve: 20},
		{OP: 15, Valve: 15},
		{OP: 15, Valve: 15},
		{OP: 25, Valve: 25},
	}
	effort := NewControlEffort()
	travel := NewValveTravel()
	rev := NewReversals()
	for _, m := range []interface{ Observe(dynamo.Point) }{effort, travel, rev} {
		feed(m, pts)
	}

	if effort.Value() != 25 {
		t.Errorf("expected control effort 25, got %f", effort.Value())
	}
	if travel.Value() != 25 {
		t.Errorf("expected valve travel 25, got %f", travel.Value())
	}
	if rev.Value() != 2 {
		t.Errorf("expected 2 reversals, got %f", rev.Value())
	}
}

func TestTimeInBand(t *testing.T) {
	m := NewTimeInBand(0.5)
	feed(m, []dynamo.Point{
		{Setpoint: 1, PV: 1},
		{Setpoint: 1, PV: 2},
	})
	if m.Value() != 0.5 {
		t.Errorf("expected 0.5, got %f", m.Value())
	}
}

func TestStandardNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, n := range Names() {
		if seen[n] {
			t.Errorf("duplicate metric %s", n)
		}
		seen[n] = true
	}
}
