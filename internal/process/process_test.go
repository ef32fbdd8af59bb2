package process

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
)

func TestConstructorsRejectInvalid(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"negative tau", func() error { _, err := NewFOPDT(1, -1, 0); return err }},
		{"negative theta", func() error { _, err := NewFOPDT(1, 1, -0.5); return err }},
		{"negative gain", func() error { _, err := NewFOPDT(-2, 1, 0); return err }},
		{"nan gain", func() error { _, err := NewFOPDT(math.NaN(), 1, 0); return err }},
		{"negative tau2", func() error { _, err := NewSOPDT(1, 1, -1, 0); return err }},
		{"zero leak", func() error { _, err := NewIntegratorLeak(1, 0, 0); return err }},
		{"negative kprime", func() error { _, err := NewIntegrator(-1, 0); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, dynamo.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestValidateAcceptsPointers(t *testing.T) {
	if err := Validate(&FOPDT{K: 1, Tau: 2, Theta: 0}); err != nil {
		t.Errorf("expected pointer model to validate, got %v", err)
	}
	if err := Validate(nil); !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected nil model rejected, got %v", err)
	}
}

func TestFOPDTReferenceScenario(t *testing.T) {
	m, err := NewFOPDT(2.0, 10.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPlant(m, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	p.Reset(0, 0)

	// pv[k] is the output at t = k*dt, before the input at step k is applied.
	pv := []float64{p.Output()}
	for k := 0; k < 800; k++ {
		pv = append(pv, p.Step(1, 0))
	}

	if got := pv[20]; got != 0 {
		t.Errorf("expected no response inside dead time, got %f at t=2", got)
	}
	if got := pv[120]; math.Abs(got-1.264) > 1e-3 {
		t.Errorf("expected pv~1.264 at t=12, got %.4f", got)
	}
	if got := pv[800]; math.Abs(got-2.0) > 2e-3 {
		t.Errorf("expected pv~2.0 at t=80, got %.4f", got)
	}
}

func TestFOPDTZeroTauIsPureGain(t *testing.T) {
	m, _ := NewFOPDT(3, 0, 0)
	s := Next(m, State{}, 2, 0, 0.1)
	if s.Y != 6 {
		t.Errorf("expected 6, got %f", s.Y)
	}
}

func TestDiscreteMatchesAnalytic(t *testing.T) {
	models := []Model{
		FOPDT{K: 1.5, Tau: 4, Theta: 1},
		SOPDT{K: 2, Tau1: 5, Tau2: 2, Theta: 0.5},
		SOPDT{K: 1, Tau1: 3, Tau2: 3, Theta: 0},
		IntegratorLeak{KPrime: 0.2, TauLeak: math.Inf(1), Theta: 1},
		IntegratorLeak{KPrime: 0.2, TauLeak: 8, Theta: 0.3},
	}

	dt := 0.1
	for _, m := range models {
		t.Run(String(m), func(t *testing.T) {
			p, err := NewPlant(m, dt)
			if err != nil {
				t.Fatal(err)
			}
			p.Reset(0, 0)
			for k := 1; k <= 300; k++ {
				y := p.Step(1, 0)
				want := StepResponse(m, float64(k)*dt)
				if math.Abs(y-want) > 1e-9*math.Max(1, math.Abs(want)) {
					t.Fatalf("k=%d: expected %.9f, got %.9f", k, want, y)
				}
			}
		})
	}
}

func TestEulerLagApproximatesExact(t *testing.T) {
	m := SOPDT{K: 1, Tau1: 4, Tau2: 1, Theta: 0}
	exact, _ := NewPlant(m, 0.01)
	euler, _ := NewPlant(m, 0.01)
	euler.SetLag(integrators.NewEuler())
	exact.Reset(0, 0)
	euler.Reset(0, 0)

	for k := 0; k < 2000; k++ {
		exact.Step(1, 0)
		euler.Step(1, 0)
	}
	if math.Abs(exact.Output()-euler.Output()) > 5e-3 {
		t.Errorf("expected euler within 5e-3 of exact, got %.5f vs %.5f", euler.Output(), exact.Output())
	}
}

func TestDisturbanceEntersAsLoad(t *testing.T) {
	m, _ := NewFOPDT(2, 1, 0)
	p, _ := NewPlant(m, 0.1)
	p.Reset(0, 0)
	for k := 0; k < 500; k++ {
		p.Step(1, 0.5)
	}
	if math.Abs(p.Output()-2.5) > 1e-6 {
		t.Errorf("expected K*u+d = 2.5, got %f", p.Output())
	}
}

func TestSteadyStateGain(t *testing.T) {
	if k, ok := SteadyStateGain(IntegratorLeak{KPrime: 0.5, TauLeak: 4}); !ok || k != 2 {
		t.Errorf("expected leaky gain 2, got %f ok=%v", k, ok)
	}
	if _, ok := SteadyStateGain(IntegratorLeak{KPrime: 0.5, TauLeak: math.Inf(1)}); ok {
		t.Error("pure integrator has no steady-state gain")
	}
}

func TestDelayLine(t *testing.T) {
	t.Run("whole steps", func(t *testing.T) {
		d, err := NewDelayLine(0.3, 0.1)
		if err != nil {
			t.Fatal(err)
		}
		if d.Depth() != 3 {
			t.Errorf("expected depth 3, got %d", d.Depth())
		}
		d.Reset(0)
		var out []float64
		for i := 1; i <= 5; i++ {
			out = append(out, d.Push(float64(i)))
		}
		want := []float64{0, 0, 0, 1, 2}
		for i := range want {
			if out[i] != want[i] {
				t.Errorf("push %d: expected %f, got %f", i, want[i], out[i])
			}
		}
	})

	t.Run("fractional", func(t *testing.T) {
		d, _ := NewDelayLine(0.25, 0.1)
		if d.Depth() != 3 {
			t.Errorf("expected depth 3, got %d", d.Depth())
		}
		d.Reset(0)
		var last float64
		for i := 1; i <= 6; i++ {
			last = d.Push(float64(i))
		}
		// 2.5 steps behind 6.
		if math.Abs(last-3.5) > 1e-12 {
			t.Errorf("expected 3.5, got %f", last)
		}
	})

	t.Run("zero delay", func(t *testing.T) {
		d, _ := NewDelayLine(0, 0.1)
		d.Reset(0)
		if got := d.Push(7); got != 7 {
			t.Errorf("expected passthrough, got %f", got)
		}
	})

	t.Run("invalid dt", func(t *testing.T) {
		if _, err := NewDelayLine(1, 0); !errors.Is(err, dynamo.ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
	})
}

func TestResetIsDeterministic(t *testing.T) {
	m, _ := NewSOPDT(1, 3, 1, 0.45)
	p, _ := NewPlant(m, 0.1)

	run := func() []float64 {
		p.Reset(0, 0)
		var out []float64
		for k := 0; k < 100; k++ {
			out = append(out, p.Step(math.Sin(float64(k)/7), 0))
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("step %d differs after reset: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestParseFamily(t *testing.T) {
	if f, err := ParseFamily("sopdt"); err != nil || f != FamilySOPDT {
		t.Errorf("expected sopdt, got %v %v", f, err)
	}
	if _, err := ParseFamily("pendulum"); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestFromParamsRoundTrip(t *testing.T) {
	models := []Model{
		FOPDT{K: 2, Tau: 10, Theta: 1},
		SOPDT{K: 1, Tau1: 5, Tau2: 2, Theta: 0.5},
		IntegratorLeak{KPrime: 0.1, TauLeak: math.Inf(1), Theta: 2},
		IntegratorLeak{KPrime: 0.1, TauLeak: 50, Theta: 2},
	}
	for _, m := range models {
		got, err := FromParams(m.Family(), m.Params())
		if err != nil {
			t.Fatalf("%s: %v", String(m), err)
		}
		if got != m {
			t.Errorf("expected %s, got %s", String(m), String(got))
		}
	}
	if _, err := FromParams("bogus", nil); !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestResetOperatingPoint(t *testing.T) {
	m, _ := NewFOPDT(2, 5, 1)
	p, _ := NewPlant(m, 0.1)
	p.Reset(40, 150)

	for k := 0; k < 100; k++ {
		if y := p.Step(40, 0); y != 150 {
			t.Fatalf("expected rest at 150, got %f at step %d", y, k)
		}
	}
	for k := 0; k < 1000; k++ {
		p.Step(45, 0)
	}
	if math.Abs(p.Output()-160) > 1e-6 {
		t.Errorf("expected 150 + K*5 = 160, got %f", p.Output())
	}
}
