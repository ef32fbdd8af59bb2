package identify

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
)

// stepTest drives m with u stepping from lo to hi at index at and returns
// the sampled response about y0, with optional white noise.
func stepTest(t *testing.T, m process.Model, n, at int, dt, lo, hi, y0, noise float64) ([]float64, []float64, []float64) {
	t.Helper()
	p, err := process.NewPlant(m, dt)
	if err != nil {
		t.Fatal(err)
	}
	p.Reset(lo, y0)
	rng := rand.New(rand.NewSource(42))

	tm := make([]float64, n)
	u := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		tm[i] = float64(i) * dt
		u[i] = lo
		if i >= at {
			u[i] = hi
		}
		y[i] = p.Output() + noise*rng.NormFloat64()
		p.Step(u[i], 0)
	}
	return tm, u, y
}

func within(t *testing.T, name string, got, want, rel float64) {
	t.Helper()
	if math.Abs(got-want) > rel*math.Abs(want) {
		t.Errorf("%s: expected %.4f within %.0f%%, got %.4f", name, want, rel*100, got)
	}
}

func TestFitFOPDTRecoversNoiseFree(t *testing.T) {
	truth := process.FOPDT{K: 2, Tau: 10, Theta: 3}
	tm, u, y := stepTest(t, truth, 240, 20, 0.5, 20, 30, 50, 0)

	rec, err := Segment(tm, u, y, DefaultSegmentOptions())
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := Identify(context.Background(), rec, process.FamilyFOPDT, opts)
	if err != nil {
		t.Fatal(err)
	}
	m := res.Model.(process.FOPDT)
	within(t, "K", m.K, 2, 0.05)
	within(t, "tau", m.Tau, 10, 0.05)
	within(t, "theta", m.Theta, 3, 0.05)

	if res.Algorithm != Algorithm {
		t.Errorf("expected algorithm %s, got %s", Algorithm, res.Algorithm)
	}
	if res.R2 < 0.999 {
		t.Errorf("expected near-perfect R2, got %f", res.R2)
	}
	if !res.CreatedAt.Equal(opts.Now()) {
		t.Errorf("expected injected timestamp, got %v", res.CreatedAt)
	}
	if res.N != 240 || len(res.Predicted) != 240 {
		t.Errorf("expected 240 samples, got %d and %d", res.N, len(res.Predicted))
	}
	within(t, "offset", res.Offset, 50, 0.05)
}

func TestFitFOPDTWithNoise(t *testing.T) {
	truth := process.FOPDT{K: 2, Tau: 10, Theta: 3}
	// 1% of the 20-unit output change
	tm, u, y := stepTest(t, truth, 240, 20, 0.5, 20, 30, 0, 0.2)

	rec, err := Segment(tm, u, y, DefaultSegmentOptions())
	if err != nil {
		t.Fatal(err)
	}
	res, err := FitFOPDT(context.Background(), rec, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m := res.Model.(process.FOPDT)
	within(t, "K", m.K, 2, 0.05)
	within(t, "tau", m.Tau, 10, 0.05)
	within(t, "theta", m.Theta, 3, 0.05)
}

func TestFitSOPDT(t *testing.T) {
	truth := process.SOPDT{K: 1.5, Tau1: 8, Tau2: 3, Theta: 1}
	tm, u, y := stepTest(t, truth, 400, 20, 0.25, 40, 50, 10, 0)

	rec, err := Segment(tm, u, y, DefaultSegmentOptions())
	if err != nil {
		t.Fatal(err)
	}
	res, err := FitSOPDT(context.Background(), rec, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m := res.Model.(process.SOPDT)
	within(t, "K", m.K, 1.5, 0.05)
	within(t, "apparent lag", m.Tau1+m.Tau2+m.Theta, 12, 0.05)
	if m.Tau1 < m.Tau2 {
		t.Errorf("expected tau1 >= tau2, got %f < %f", m.Tau1, m.Tau2)
	}
}

func TestFitIntegrator(t *testing.T) {
	truth := process.IntegratorLeak{KPrime: 0.05, TauLeak: math.Inf(1), Theta: 2}
	tm, u, y := stepTest(t, truth, 160, 20, 0.5, 0, 10, 30, 0)

	rec := StepTestRecord{T: tm, U: u, Y: y, StepIndex: 20, PreMean: 30, PostMean: y[len(y)-1], UPre: 0, UPost: 10}
	res, err := FitIntegrator(context.Background(), rec, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m := res.Model.(process.IntegratorLeak)
	if !m.Pure() {
		t.Errorf("expected a pure integrator, got %s", process.String(m))
	}
	within(t, "kprime", m.KPrime, 0.05, 0.05)
	within(t, "theta", m.Theta, 2, 0.05)
}

func TestFitReportsNonConvergence(t *testing.T) {
	truth := process.FOPDT{K: 2, Tau: 10, Theta: 3}
	tm, u, y := stepTest(t, truth, 240, 20, 0.5, 20, 30, 0, 0)
	rec, err := Segment(tm, u, y, DefaultSegmentOptions())
	if err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Local.MaxIterations = 1
	if _, err := FitFOPDT(context.Background(), rec, opts); !errors.Is(err, dynamo.ErrFitDidNotConverge) {
		t.Errorf("expected ErrFitDidNotConverge, got %v", err)
	}
}

func TestFitRejectsReverseActing(t *testing.T) {
	truth := process.FOPDT{K: 2, Tau: 10, Theta: 3}
	tm, u, y := stepTest(t, truth, 240, 20, 0.5, 20, 30, 0, 0)
	for i := range y {
		y[i] = 100 - y[i]
	}
	rec, err := Segment(tm, u, y, DefaultSegmentOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := FitFOPDT(context.Background(), rec, DefaultOptions()); !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestFitRejectsShortRecords(t *testing.T) {
	truth := process.FOPDT{K: 2, Tau: 10, Theta: 3}
	tm, u, y := stepTest(t, truth, 240, 20, 0.5, 20, 30, 0, 0)
	full := StepTestRecord{T: tm, U: u, Y: y, StepIndex: 20, PreMean: 0, PostMean: 20, UPre: 20, UPost: 30}

	tests := []struct {
		name string
		rec  StepTestRecord
	}{
		{"one pre-step sample", StepTestRecord{T: tm[19:], U: u[19:], Y: y[19:], StepIndex: 1, PostMean: 20, UPre: 20, UPost: 30}},
		{"few post-step samples", StepTestRecord{T: tm[:25], U: u[:25], Y: y[:25], StepIndex: 20, PostMean: 20, UPre: 20, UPost: 30}},
		{"step at start", StepTestRecord{T: tm, U: u, Y: y, StepIndex: 0, PostMean: 20, UPre: 20, UPost: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for name, fit := range map[string]func(context.Context, StepTestRecord, Options) (FitResult, error){
				"fopdt": FitFOPDT, "sopdt": FitSOPDT, "integrator": FitIntegrator,
			} {
				if _, err := fit(context.Background(), tt.rec, DefaultOptions()); !errors.Is(err, dynamo.ErrInsufficientData) {
					t.Errorf("%s: expected ErrInsufficientData, got %v", name, err)
				}
			}
		})
	}
	if err := full.Validate(); err != nil {
		t.Errorf("expected a full record to validate, got %v", err)
	}
}

func TestIdentifyUnknownFamily(t *testing.T) {
	_, err := Identify(context.Background(), StepTestRecord{}, "bogus", DefaultOptions())
	if !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestUnitResponseMatchesAnalytic(t *testing.T) {
	tm := make([]float64, 100)
	u := make([]float64, 100)
	for i := range tm {
		tm[i] = float64(i) * 0.5
		if i >= 10 {
			u[i] = 1
		}
	}
	// dead time of 1.25 s falls between samples
	r := unitResponse(process.FOPDT{K: 1, Tau: 4}, tm, u, 0, 1.25)
	for i, ti := range tm {
		want := process.StepResponse(process.FOPDT{K: 1, Tau: 4, Theta: 1.25}, ti-5)
		if math.Abs(r[i]-want) > 1e-9 {
			t.Fatalf("t=%.2f: expected %f, got %f", ti, want, r[i])
		}
	}
}
