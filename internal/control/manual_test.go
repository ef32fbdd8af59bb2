package control

import (
	"errors"
	"testing"

	"github.com/san-kum/looptune/internal/dynamo"
)

func TestManualReplaysSchedule(t *testing.T) {
	m := NewManual(dynamo.StepAt(20, 1.0, 30))
	if _, err := m.Step(0, 0, 0.1); !errors.Is(err, dynamo.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}

	m.Reset(0, 0)
	var out []float64
	for i := 0; i < 15; i++ {
		u, err := m.Step(0, 0, 0.1)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, u)
	}
	if out[0] != 20 {
		t.Errorf("expected 20 before the step, got %f", out[0])
	}
	if out[14] != 30 {
		t.Errorf("expected 30 after the step, got %f", out[14])
	}
}

func TestManualHoldAndLimits(t *testing.T) {
	m := NewManual(dynamo.Constant(50))
	m.Reset(0, 0)

	m.Hold(150)
	if u, _ := m.Step(0, 0, 0.1); u != 100 {
		t.Errorf("expected clamp to 100, got %f", u)
	}
	m.Release()
	if u, _ := m.Step(0, 0, 0.1); u != 50 {
		t.Errorf("expected schedule value 50, got %f", u)
	}
}

func TestRelaySwitching(t *testing.T) {
	r, err := NewRelay(50, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	r.Reset(0, 0)

	tests := []struct {
		pv   float64
		want float64
	}{
		{0, 60},
		{0.3, 60},
		{0.6, 40},
		{0, 40},
		{-0.6, 60},
	}
	for i, tt := range tests {
		u, _ := r.Step(0, tt.pv, 0.1)
		if u != tt.want {
			t.Errorf("step %d (pv=%v): expected %v, got %v", i, tt.pv, tt.want, u)
		}
	}

	if _, err := NewRelay(50, 0, 0); !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}
