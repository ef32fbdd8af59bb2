package identify

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/looptune/internal/dynamo"
)

func TestMovingMedian(t *testing.T) {
	x := []float64{1, 100, 2, 3, 4}
	got, err := MovingMedian(x, 3)
	if err != nil {
		t.Fatal(err)
	}
	expected := []float64{50.5, 2, 3, 3, 3.5}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("index %d: expected %f, got %f", i, expected[i], got[i])
		}
	}

	if _, err := MovingMedian(x, 4); !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected even window rejected, got %v", err)
	}

	same, _ := MovingMedian(x, 1)
	if same[1] != 100 {
		t.Errorf("expected identity for window 1, got %v", same)
	}
}

func TestMedianSeqWidensEvenWindow(t *testing.T) {
	x := []float64{9, 1, 8, 2, 7, 3, 6}
	odd, err := MovingMedian(x, 5)
	if err != nil {
		t.Fatal(err)
	}
	i := 0
	for j, v := range MedianSeq(x, 4) {
		if j != i || v != odd[i] {
			t.Errorf("index %d: expected %v, got %v at %d", i, odd[i], v, j)
		}
		i++
	}
	if i != len(x) {
		t.Errorf("expected %d values, got %d", len(x), i)
	}
}

func TestMedianSeqStopsEarly(t *testing.T) {
	count := 0
	for i := range MedianSeq([]float64{1, 2, 3, 4, 5}, 3) {
		count++
		if i == 1 {
			break
		}
	}
	if count != 2 {
		t.Errorf("expected 2 yields, got %d", count)
	}
}

func TestLargestStepAndMedianSegment(t *testing.T) {
	x := []float64{0, 0, 0.1, 5, 5, 5}
	k, d := LargestStep(x)
	if k != 3 || math.Abs(d-4.9) > 1e-12 {
		t.Errorf("expected step at 3 of 4.9, got %d, %f", k, d)
	}
	if got := MedianSegment(x, 3, 100); got != 5 {
		t.Errorf("expected 5, got %f", got)
	}
	if got := MedianSegment(x, 4, 2); got != median(x) {
		t.Errorf("expected whole-series median for empty window, got %f", got)
	}
}

func stepSeries(n, at int, lo, hi float64) ([]float64, []float64) {
	t := make([]float64, n)
	u := make([]float64, n)
	for i := range t {
		t[i] = float64(i) * 0.5
		u[i] = lo
		if i >= at {
			u[i] = hi
		}
	}
	return t, u
}

func TestDetectStepsByDiff(t *testing.T) {
	tm, u := stepSeries(100, 40, 20, 30)
	u[10] = 80 // single-sample spike
	events, err := DetectStepsByDiff(tm, u, DefaultDiffOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %v", len(events), events)
	}
	if events[0].Index != 40 || events[0].Delta != 10 {
		t.Errorf("expected step at 40 of 10, got %+v", events[0])
	}
}

func TestDetectStepsRespectsDwell(t *testing.T) {
	tm, u := stepSeries(100, 97, 0, 1)
	events, _ := DetectStepsByDiff(tm, u, DefaultDiffOptions())
	if len(events) != 0 {
		t.Errorf("expected step too close to the end rejected, got %v", events)
	}
}

func TestCUSUMSingleAlarm(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := make([]float64, 500)
	for i := range x {
		if i >= 250 {
			x[i] = 1
		}
		x[i] += 0.1 * rng.NormFloat64()
	}

	cps, err := CUSUMChangePoints(x, DefaultCUSUMOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 1 {
		t.Fatalf("expected 1 change point, got %d: %v", len(cps), cps)
	}
	if math.Abs(float64(cps[0].Index-250)) > 3 {
		t.Errorf("expected change near 250, got %d", cps[0].Index)
	}
	if cps[0].Direction != 1 {
		t.Errorf("expected upward change, got %d", cps[0].Direction)
	}
}

func TestCUSUMFiveSigmaThreshold(t *testing.T) {
	const sigma = 0.1
	opts := CUSUMOptions{Drift: 1.5, Threshold: 5, Sigma: sigma, Warmup: 20, Window: 5}
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		x := make([]float64, 500)
		for i := range x {
			if i >= 250 {
				x[i] = 1
			}
			x[i] += sigma * rng.NormFloat64()
		}

		cps, err := CUSUMChangePoints(x, opts)
		if err != nil {
			t.Fatal(err)
		}
		if len(cps) != 1 {
			t.Errorf("seed %d: expected 1 change point, got %d: %v", seed, len(cps), cps)
			continue
		}
		if math.Abs(float64(cps[0].Index-250)) > 3 {
			t.Errorf("seed %d: expected change within 3 of 250, got %d", seed, cps[0].Index)
		}
	}
}

func TestSegment(t *testing.T) {
	tm, u := stepSeries(200, 60, 20, 30)
	y := make([]float64, len(u))
	for i := range y {
		y[i] = 5
		if i > 70 {
			y[i] = 25
		}
	}

	rec, err := Segment(tm, u, y, DefaultSegmentOptions())
	if err != nil {
		t.Fatal(err)
	}
	if rec.StepIndex != 60 {
		t.Errorf("expected step index 60, got %d", rec.StepIndex)
	}
	if rec.UPre != 20 || rec.UPost != 30 {
		t.Errorf("expected input 20 -> 30, got %f -> %f", rec.UPre, rec.UPost)
	}
	if rec.PreMean != 5 || rec.PostMean != 25 {
		t.Errorf("expected output 5 -> 25, got %f -> %f", rec.PreMean, rec.PostMean)
	}
	if rec.StepTime() != 30 {
		t.Errorf("expected step time 30, got %f", rec.StepTime())
	}
}

func TestSegmentInsufficientData(t *testing.T) {
	tests := []struct {
		name string
		at   int
		lo   float64
		hi   float64
	}{
		{"no step", 50, 10, 10},
		{"step too early", 3, 10, 20},
		{"step too small", 50, 10, 10.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, u := stepSeries(100, tt.at, tt.lo, tt.hi)
			y := make([]float64, len(u))
			_, err := Segment(tm, u, y, DefaultSegmentOptions())
			if !errors.Is(err, dynamo.ErrInsufficientData) {
				t.Errorf("expected ErrInsufficientData, got %v", err)
			}
		})
	}
}
