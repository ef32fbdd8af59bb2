package identify

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/looptune/internal/dynamo"
)

// StepTestRecord is one isolated input step and the response to it.
// PreMean and PostMean are output levels; UPre and UPost are input levels.
type StepTestRecord struct {
	T         []float64 `json:"t"`
	U         []float64 `json:"u"`
	Y         []float64 `json:"y"`
	StepIndex int       `json:"step_index"`
	PreMean   float64   `json:"pre_mean"`
	PostMean  float64   `json:"post_mean"`
	UPre      float64   `json:"u_pre"`
	UPost     float64   `json:"u_post"`
}

func (r StepTestRecord) StepTime() float64 { return r.T[r.StepIndex] }
func (r StepTestRecord) DeltaU() float64   { return r.UPost - r.UPre }
func (r StepTestRecord) DeltaY() float64   { return r.PostMean - r.PreMean }

// Minimum samples on each side of the step for a record to be fitted.
const (
	MinPreSamples  = 5
	MinPostSamples = 10
)

// Validate checks the invariants a fitter relies on.
func (r StepTestRecord) Validate() error {
	n := len(r.T)
	if len(r.U) != n || len(r.Y) != n {
		return fmt.Errorf("%w: t, u and y lengths differ (%d, %d, %d)", dynamo.ErrInvalidParameter, n, len(r.U), len(r.Y))
	}
	if r.StepIndex <= 0 || r.StepIndex >= n {
		return fmt.Errorf("%w: step index %d outside record", dynamo.ErrInsufficientData, r.StepIndex)
	}
	if r.StepIndex < MinPreSamples {
		return fmt.Errorf("%w: %d samples before the step, need %d", dynamo.ErrInsufficientData, r.StepIndex, MinPreSamples)
	}
	if n-r.StepIndex < MinPostSamples {
		return fmt.Errorf("%w: %d samples after the step, need %d", dynamo.ErrInsufficientData, n-r.StepIndex, MinPostSamples)
	}
	for i := 1; i < n; i++ {
		if !(r.T[i] > r.T[i-1]) {
			return dynamo.Invalid("t", r.T[i], "must be strictly increasing")
		}
	}
	for _, col := range [][]float64{r.T, r.U, r.Y} {
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: record holds non-finite samples", dynamo.ErrInvalidParameter)
			}
		}
	}
	if r.DeltaU() == 0 {
		return fmt.Errorf("%w: zero input step", dynamo.ErrInsufficientData)
	}
	return nil
}

type SegmentOptions struct {
	Diff  DiffOptions
	CUSUM CUSUMOptions
	// Guard samples on each side of the step are left out of level
	// estimates.
	Guard int
	// LevelWindow bounds the input level windows; 0 uses everything up to
	// the record edge.
	LevelWindow  int
	TailFraction float64
	MinPre       int
	MinPost      int
	MinStep      float64
}

func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{
		Diff:         DefaultDiffOptions(),
		CUSUM:        DefaultCUSUMOptions(),
		Guard:        2,
		TailFraction: 0.2,
		MinPre:       5,
		MinPost:      10,
		MinStep:      0.01,
	}
}

// Segment finds the dominant input step in (t, u) and the steady levels of
// u and y around it.
func Segment(t, u, y []float64, opts SegmentOptions) (StepTestRecord, error) {
	n := len(t)
	if len(u) != n || len(y) != n {
		return StepTestRecord{}, fmt.Errorf("%w: t, u and y lengths differ (%d, %d, %d)", dynamo.ErrInvalidParameter, n, len(u), len(y))
	}
	if n < opts.MinPre+opts.MinPost || n < 4 {
		return StepTestRecord{}, fmt.Errorf("%w: %d samples", dynamo.ErrInsufficientData, n)
	}

	candidates, err := stepCandidates(t, u, opts)
	if err != nil {
		return StepTestRecord{}, err
	}
	if len(candidates) == 0 {
		return StepTestRecord{}, fmt.Errorf("%w: no input step found", dynamo.ErrInsufficientData)
	}

	bestK, bestPre, bestPost := -1, 0.0, 0.0
	for _, k := range candidates {
		pre, post := inputLevels(u, k, opts)
		if bestK < 0 || math.Abs(post-pre) > math.Abs(bestPost-bestPre) {
			bestK, bestPre, bestPost = k, pre, post
		}
	}
	k := bestK

	if k-opts.Guard < opts.MinPre {
		return StepTestRecord{}, fmt.Errorf("%w: %d samples before the step, need %d", dynamo.ErrInsufficientData, k-opts.Guard, opts.MinPre)
	}
	if n-k < opts.MinPost {
		return StepTestRecord{}, fmt.Errorf("%w: %d samples after the step, need %d", dynamo.ErrInsufficientData, n-k, opts.MinPost)
	}
	if math.Abs(bestPost-bestPre) < opts.MinStep {
		return StepTestRecord{}, fmt.Errorf("%w: input step %.4g below %.4g", dynamo.ErrInsufficientData, bestPost-bestPre, opts.MinStep)
	}

	tail := opts.TailFraction
	if tail <= 0 || tail > 1 {
		tail = 0.2
	}
	tailStart := n - max(1, int(math.Round(tail*float64(n))))
	tailStart = max(tailStart, k)

	return StepTestRecord{
		T:         slices.Clone(t),
		U:         slices.Clone(u),
		Y:         slices.Clone(y),
		StepIndex: k,
		PreMean:   MedianSegment(y, 0, k-opts.Guard),
		PostMean:  MedianSegment(y, tailStart, n),
		UPre:      bestPre,
		UPost:     bestPost,
	}, nil
}

func stepCandidates(t, u []float64, opts SegmentOptions) ([]int, error) {
	var out []int
	events, err := DetectStepsByDiff(t, u, opts.Diff)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		out = append(out, ev.Index)
	}

	cps, err := CUSUMChangePoints(u, opts.CUSUM)
	if err != nil {
		return nil, err
	}
	for _, cp := range cps {
		if cp.Index > 0 && cp.Index < len(u) && !slices.Contains(out, cp.Index) {
			out = append(out, cp.Index)
		}
	}

	if len(out) == 0 {
		if k, d := LargestStep(u); d != 0 {
			out = append(out, k)
		}
	}
	return out, nil
}

func inputLevels(u []float64, k int, opts SegmentOptions) (float64, float64) {
	preStart, postEnd := 0, len(u)
	if opts.LevelWindow > 0 {
		preStart = k - opts.Guard - opts.LevelWindow
		postEnd = k + opts.Guard + opts.LevelWindow
	}
	return MedianSegment(u, preStart, k-opts.Guard), MedianSegment(u, k+opts.Guard, postEnd)
}
