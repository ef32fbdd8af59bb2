package dynamo

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestParamErrorUnwrap(t *testing.T) {
	err := Invalid("tau", -1, "must be non-negative")

	if !errors.Is(err, ErrInvalidParameter) {
		t.Error("expected ParamError to match ErrInvalidParameter")
	}

	var pe *ParamError
	if !errors.As(err, &pe) {
		t.Fatal("expected errors.As to find *ParamError")
	}
	if pe.Field != "tau" {
		t.Errorf("expected field tau, got %s", pe.Field)
	}
}

func TestSimulationErrorUnwrap(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 0.3, Wrapped: ErrNumericalInstability}
	if !errors.Is(err, ErrNumericalInstability) {
		t.Error("expected SimulationError to unwrap")
	}
	if err.Error() == "" {
		t.Error("expected message")
	}
}

func TestPointIsValid(t *testing.T) {
	if !(Point{T: 1, PV: 2}).IsValid() {
		t.Error("expected finite point to be valid")
	}
	if (Point{PV: math.NaN()}).IsValid() {
		t.Error("expected NaN point to be invalid")
	}
	if (Point{OP: math.Inf(1)}).IsValid() {
		t.Error("expected Inf point to be invalid")
	}
}

func TestRunColumns(t *testing.T) {
	r := &Run{Points: []Point{{T: 0, PV: 1, OP: 5}, {T: 0.5, PV: 2, OP: 6}, {T: 1, PV: 3, OP: 7}}}

	pv := r.PV()
	if len(pv) != 3 || pv[2] != 3 {
		t.Errorf("unexpected pv column %v", pv)
	}

	p, ok := r.At(0.6)
	if !ok || p.T != 0.5 {
		t.Errorf("expected nearest point t=0.5, got %v", p.T)
	}

	empty := &Run{}
	if _, ok := empty.At(0); ok {
		t.Error("expected no point in empty run")
	}
}

func TestSeriesSeconds(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Series{Tag: "TIC101.PV", Samples: []Sample{
		{Time: t0, Value: 1, Quality: QualityGood},
		{Time: t0.Add(1500 * time.Millisecond), Value: 2, Quality: QualityGood},
	}}

	ts, vs := s.Seconds()
	if ts[1] != 1.5 {
		t.Errorf("expected 1.5s, got %f", ts[1])
	}
	if vs[1] != 2 {
		t.Errorf("expected value 2, got %f", vs[1])
	}
}

func TestParallelForCoversRange(t *testing.T) {
	const n = 1000
	var hits [n]int32

	ParallelFor(n, 10, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestScheduleAt(t *testing.T) {
	s := Schedule{Initial: 1, Changes: []Change{{At: 10, Value: 3}, {At: 5, Value: 2}}}

	tests := []struct {
		t    float64
		want float64
	}{
		{0, 1},
		{4.99, 1},
		{5, 2},
		{9, 2},
		{10, 3},
		{100, 3},
	}
	for _, tt := range tests {
		if got := s.At(tt.t); got != tt.want {
			t.Errorf("At(%v): expected %v, got %v", tt.t, tt.want, got)
		}
	}

	if got := StepAt(0, 1, 5).At(1); got != 5 {
		t.Errorf("expected step value 5, got %v", got)
	}
	if got := Constant(7).At(1e6); got != 7 {
		t.Errorf("expected constant 7, got %v", got)
	}
}
