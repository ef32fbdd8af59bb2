package sim

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/valve"
)

type blowUp struct{ n int }

func (b *blowUp) Reset(out0, pv0 float64) { b.n = 0 }
func (b *blowUp) Step(sp, pv, dt float64) (float64, error) {
	b.n++
	if b.n > 5 {
		return math.Inf(1), nil
	}
	return 1, nil
}

type countMetric struct{ n int }

func (c *countMetric) Name() string           { return "count" }
func (c *countMetric) Observe(p dynamo.Point) { c.n++ }
func (c *countMetric) Value() float64         { return float64(c.n) }
func (c *countMetric) Reset()                 { c.n = 0 }

func openLoop(t *testing.T) (*Simulator, Config) {
	t.Helper()
	m, err := process.NewFOPDT(2, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	s := New(m, control.NewManual(dynamo.Constant(1)), nil)
	cfg := Config{Dt: 0.1, Duration: 80, Setpoint: dynamo.Constant(0)}
	return s, cfg
}

func TestOpenLoopStepMatchesReference(t *testing.T) {
	s, cfg := openLoop(t)
	run, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if run.Len() != 801 {
		t.Fatalf("expected 801 points, got %d", run.Len())
	}
	pv := run.PV()
	if math.Abs(pv[120]-1.264) > 1e-3 {
		t.Errorf("expected pv~1.264 at t=12, got %.4f", pv[120])
	}
	if math.Abs(pv[800]-2.0) > 2e-3 {
		t.Errorf("expected pv~2.0 at t=80, got %.4f", pv[800])
	}
	if last := run.Points[800].T; math.Abs(last-80) > 1e-9 {
		t.Errorf("expected last time 80, got %f", last)
	}
}

func TestRunIsRepeatable(t *testing.T) {
	m, _ := process.NewFOPDT(2, 10, 2)
	pid, _ := control.New(control.Config{
		Form: control.FormPI, Kp: 1.25, Ti: 10, OutMin: 0, OutMax: 100, Beta: 1, FilterN: control.DefaultFilterN,
	})
	s := New(m, pid, nil)
	cfg := DefaultConfig()
	cfg.NoiseStd = 0.05
	cfg.Seed = 7

	a, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Points {
		if a.Points[i] != b.Points[i] {
			t.Fatalf("runs diverged at step %d", i)
		}
	}
}

func TestClosedLoopTracksSetpoint(t *testing.T) {
	m, _ := process.NewFOPDT(2, 10, 2)
	pid, _ := control.New(control.Config{
		Form: control.FormPI, Kp: 1.25, Ti: 10, OutMin: 0, OutMax: 100, Beta: 1, FilterN: control.DefaultFilterN,
	})
	s := New(m, pid, nil)

	run, err := s.Run(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	last := run.Points[run.Len()-1]
	if math.Abs(last.PV-1) > 1e-3 {
		t.Errorf("expected pv to settle at 1, got %f", last.PV)
	}
	if math.Abs(last.OP-0.5) > 1e-3 {
		t.Errorf("expected op to settle at 0.5, got %f", last.OP)
	}
}

func TestValveSitsBetweenControllerAndProcess(t *testing.T) {
	m, _ := process.NewFOPDT(1, 5, 0)
	v, err := valve.New(valve.Config{Characteristic: valve.QuickOpening})
	if err != nil {
		t.Fatal(err)
	}
	s := New(m, control.NewManual(dynamo.Constant(25)), v)
	cfg := Config{Dt: 0.1, Duration: 60}

	run, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	last := run.Points[run.Len()-1]
	if last.Valve != 25 {
		t.Errorf("expected valve at 25, got %f", last.Valve)
	}
	if math.Abs(last.PV-50) > 0.1 {
		t.Errorf("expected pv~50 through quick-opening trim, got %f", last.PV)
	}
}

func TestNumericalInstabilityStopsRun(t *testing.T) {
	m, _ := process.NewFOPDT(1, 1, 0)
	s := New(m, &blowUp{}, nil)

	run, err := s.Run(context.Background(), Config{Dt: 0.1, Duration: 10})
	if !errors.Is(err, dynamo.ErrNumericalInstability) {
		t.Fatalf("expected ErrNumericalInstability, got %v", err)
	}
	var se *dynamo.SimulationError
	if !errors.As(err, &se) || se.Step != 5 {
		t.Errorf("expected failure at step 5, got %v", err)
	}
	if run.Len() != 5 {
		t.Errorf("expected 5 good points kept, got %d", run.Len())
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	s, _ := openLoop(t)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative noise", Config{Dt: 0.1, Duration: 1, NoiseStd: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Run(context.Background(), tt.cfg); !errors.Is(err, dynamo.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestRunHonorsCancel(t *testing.T) {
	s, cfg := openLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := s.Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if run.Len() != 0 {
		t.Errorf("expected no points, got %d", run.Len())
	}
}

func TestMetricsObserveEveryPoint(t *testing.T) {
	s, cfg := openLoop(t)
	s.AddMetric(&countMetric{})
	run, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if run.Metrics["count"] != 801 {
		t.Errorf("expected 801 observations, got %f", run.Metrics["count"])
	}
}

func TestStreamMatchesBatch(t *testing.T) {
	s, cfg := openLoop(t)
	cfg.Duration = 5
	cfg.NoiseStd = 0.1
	cfg.Seed = 3
	batch, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	m, _ := process.NewFOPDT(2, 10, 2)
	st, err := NewStream(m, control.NewManual(dynamo.Constant(1)), nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; ; i++ {
		p, err := st.Next(context.Background())
		if err == io.EOF {
			if i != batch.Len() {
				t.Errorf("expected EOF after %d points, got %d", batch.Len(), i)
			}
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if p != batch.Points[i] {
			t.Fatalf("stream diverged at step %d", i)
		}
	}
}

func TestStreamFeedAndSetpoint(t *testing.T) {
	m, _ := process.NewFOPDT(1, 1, 0)
	st, err := NewStream(m, control.NewManual(dynamo.Constant(10)), nil, Config{Dt: 1})
	if err != nil {
		t.Fatal(err)
	}

	st.SetSetpoint(4)
	p, err := st.Feed(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if p.PV != 42 || p.Predicted != 0 {
		t.Errorf("expected measured pv 42 and model 0, got %f and %f", p.PV, p.Predicted)
	}
	if p.Setpoint != 4 {
		t.Errorf("expected setpoint override 4, got %f", p.Setpoint)
	}

	st.Restart()
	if st.Time() != 0 {
		t.Errorf("expected restart to rewind time, got %f", st.Time())
	}
}

func TestStreamCancelLeavesStateAlone(t *testing.T) {
	m, _ := process.NewFOPDT(1, 1, 0)
	st, _ := NewStream(m, control.NewManual(dynamo.Constant(1)), nil, Config{Dt: 0.5})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := st.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if st.Time() != 0 {
		t.Errorf("expected time unchanged, got %f", st.Time())
	}
}
