package identify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/optim"
	"github.com/san-kum/looptune/internal/process"
)

const Algorithm = "grid+nelder-mead"

type Options struct {
	// GridPoints per searched parameter in the coarse stage.
	GridPoints int
	Local      optim.LocalSettings
	// FitLeak also searches a leak rate for integrating processes.
	FitLeak bool
	Now     func() time.Time
}

func DefaultOptions() Options {
	return Options{GridPoints: 9, Local: optim.DefaultLocalSettings(), Now: time.Now}
}

type FitResult struct {
	ID          string             `json:"id"`
	Family      process.Family     `json:"family"`
	Model       process.Model      `json:"-"`
	Params      map[string]float64 `json:"params"`
	Offset      float64            `json:"offset"`
	SSE         float64            `json:"sse"`
	R2          float64            `json:"r2"`
	RMSE        float64            `json:"rmse"`
	N           int                `json:"n"`
	Algorithm   string             `json:"algorithm"`
	Status      string             `json:"status"`
	Evaluations int                `json:"evaluations"`
	CreatedAt   time.Time          `json:"created_at"`
	Predicted   []float64          `json:"-"`
}

// Identify fits the requested family to rec.
func Identify(ctx context.Context, rec StepTestRecord, family process.Family, opts Options) (FitResult, error) {
	switch family {
	case process.FamilyFOPDT:
		return FitFOPDT(ctx, rec, opts)
	case process.FamilySOPDT:
		return FitSOPDT(ctx, rec, opts)
	case process.FamilyIntegrator:
		return FitIntegrator(ctx, rec, opts)
	}
	return FitResult{}, fmt.Errorf("%w: unknown model family %q", dynamo.ErrInvalidParameter, family)
}

// problem describes the nonlinear part of one family's fit. Parameters are
// natural (seconds, rates); x is the unconstrained search space.
type problem struct {
	family process.Family
	names  []string
	grid   [][]float64
	// unit builds the gain-one, delay-free model and its dead time.
	unit  func(p []float64) (process.Model, float64, bool)
	toX   func(p []float64) []float64
	fromX func(x []float64) []float64
	final func(p []float64, gain float64) (process.Model, error)
}

func FitFOPDT(ctx context.Context, rec StepTestRecord, opts Options) (FitResult, error) {
	if err := rec.Validate(); err != nil {
		return FitResult{}, err
	}
	s := analyticSeed(rec, process.FamilyFOPDT)
	g := gridPoints(opts)

	return fit(ctx, rec, problem{
		family: process.FamilyFOPDT,
		names:  []string{"tau", "theta"},
		grid:   [][]float64{tauAxis(s.tau, s, g), thetaAxis(s, g)},
		unit: func(p []float64) (process.Model, float64, bool) {
			return process.FOPDT{K: 1, Tau: p[0]}, p[1], p[0] > 0 && p[1] >= 0
		},
		toX:   func(p []float64) []float64 { return []float64{math.Log(p[0]), math.Sqrt(p[1])} },
		fromX: func(x []float64) []float64 { return []float64{math.Exp(x[0]), x[1] * x[1]} },
		final: func(p []float64, gain float64) (process.Model, error) {
			return process.NewFOPDT(gain, p[0], p[1])
		},
	}, opts)
}

func FitSOPDT(ctx context.Context, rec StepTestRecord, opts Options) (FitResult, error) {
	if err := rec.Validate(); err != nil {
		return FitResult{}, err
	}
	s := analyticSeed(rec, process.FamilySOPDT)
	g := gridPoints(opts)

	return fit(ctx, rec, problem{
		family: process.FamilySOPDT,
		names:  []string{"tau1", "tau2", "theta"},
		grid:   [][]float64{tauAxis(s.tau1, s, g), tauAxis(s.tau2, s, g), thetaAxis(s, g)},
		unit: func(p []float64) (process.Model, float64, bool) {
			return process.SOPDT{K: 1, Tau1: p[0], Tau2: p[1]}, p[2], p[0] > 0 && p[1] > 0 && p[2] >= 0
		},
		toX: func(p []float64) []float64 {
			return []float64{math.Log(p[0]), math.Log(p[1]), math.Sqrt(p[2])}
		},
		fromX: func(x []float64) []float64 {
			return []float64{math.Exp(x[0]), math.Exp(x[1]), x[2] * x[2]}
		},
		final: func(p []float64, gain float64) (process.Model, error) {
			tau1, tau2 := p[0], p[1]
			if tau1 < tau2 {
				tau1, tau2 = tau2, tau1
			}
			return process.NewSOPDT(gain, tau1, tau2, p[2])
		},
	}, opts)
}

// FitIntegrator fits a pure integrator, or a leaky one with opts.FitLeak.
func FitIntegrator(ctx context.Context, rec StepTestRecord, opts Options) (FitResult, error) {
	if err := rec.Validate(); err != nil {
		return FitResult{}, err
	}
	s := analyticSeed(rec, process.FamilyIntegrator)
	if s.kprime < 0 {
		return FitResult{}, dynamo.Invalid("kprime", s.kprime, "reverse-acting process")
	}
	g := gridPoints(opts)

	tauLeak := func(rate float64) float64 {
		if rate == 0 {
			return math.Inf(1)
		}
		return 1 / rate
	}

	pr := problem{
		family: process.FamilyIntegrator,
		names:  []string{"theta"},
		grid:   [][]float64{thetaAxis(s, g)},
		unit: func(p []float64) (process.Model, float64, bool) {
			return process.IntegratorLeak{KPrime: 1, TauLeak: math.Inf(1)}, p[0], p[0] >= 0
		},
		toX:   func(p []float64) []float64 { return []float64{math.Sqrt(p[0])} },
		fromX: func(x []float64) []float64 { return []float64{x[0] * x[0]} },
		final: func(p []float64, gain float64) (process.Model, error) {
			return process.NewIntegrator(gain, p[0])
		},
	}
	if opts.FitLeak {
		pr.names = append(pr.names, "leak")
		pr.grid = append(pr.grid, optim.Linspace(0, 4/s.span, g))
		pr.unit = func(p []float64) (process.Model, float64, bool) {
			return process.IntegratorLeak{KPrime: 1, TauLeak: tauLeak(p[1])}, p[0], p[0] >= 0 && p[1] >= 0
		}
		pr.toX = func(p []float64) []float64 { return []float64{math.Sqrt(p[0]), math.Sqrt(p[1])} }
		pr.fromX = func(x []float64) []float64 { return []float64{x[0] * x[0], x[1] * x[1]} }
		pr.final = func(p []float64, gain float64) (process.Model, error) {
			return process.NewIntegratorLeak(gain, tauLeak(p[1]), p[0])
		}
	}
	return fit(ctx, rec, pr, opts)
}

var errInfeasible = errors.New("infeasible parameters")

func fit(ctx context.Context, rec StepTestRecord, pr problem, opts Options) (FitResult, error) {
	score := func(p []float64) ([]float64, projection, bool) {
		m, theta, ok := pr.unit(p)
		if !ok {
			return nil, projection{}, false
		}
		r := unitResponse(m, rec.T, rec.U, rec.UPre, theta)
		proj, ok := project(r, rec.Y)
		return r, proj, ok
	}

	gs := optim.NewGridSearch(pr.names, pr.grid).Sequential()
	best, _, err := gs.Search(ctx, func(_ context.Context, params map[string]float64) (float64, error) {
		_, proj, ok := score(vector(pr.names, params))
		if !ok {
			return 0, errInfeasible
		}
		return proj.sse, nil
	})
	if errors.Is(err, optim.ErrNoFeasiblePoint) {
		return FitResult{}, fmt.Errorf("%w: no feasible starting point", dynamo.ErrFitDidNotConverge)
	}
	if err != nil {
		return FitResult{}, err
	}

	objective := func(x []float64) float64 {
		_, proj, ok := score(pr.fromX(x))
		if !ok {
			return math.MaxFloat64
		}
		return proj.sse
	}
	local, err := optim.NelderMead(objective, pr.toX(vector(pr.names, best)), opts.Local)
	if err != nil {
		return FitResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return FitResult{}, err
	}

	p := pr.fromX(local.X)
	r, proj, ok := score(p)
	if !ok {
		return FitResult{}, fmt.Errorf("%w: final parameters infeasible", dynamo.ErrFitDidNotConverge)
	}
	if proj.gain < 0 {
		return FitResult{}, dynamo.Invalid("k", proj.gain, "reverse-acting process")
	}
	m, err := pr.final(p, proj.gain)
	if err != nil {
		return FitResult{}, fmt.Errorf("%w: %w", dynamo.ErrFitDidNotConverge, err)
	}

	pred := make([]float64, len(r))
	for i := range r {
		pred[i] = proj.gain*r[i] + proj.offset
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	n := len(rec.Y)
	return FitResult{
		ID:          uuid.NewString(),
		Family:      pr.family,
		Model:       m,
		Params:      m.Params(),
		Offset:      proj.offset,
		SSE:         proj.sse,
		R2:          rSquared(rec.Y, proj.sse),
		RMSE:        math.Sqrt(proj.sse / float64(n)),
		N:           n,
		Algorithm:   Algorithm,
		Status:      local.Status.String(),
		Evaluations: gs.Size() + local.Evals,
		CreatedAt:   now().UTC(),
		Predicted:   pred,
	}, nil
}

func vector(names []string, params map[string]float64) []float64 {
	v := make([]float64, len(names))
	for i, n := range names {
		v[i] = params[n]
	}
	return v
}

func gridPoints(opts Options) int {
	if opts.GridPoints < 2 {
		return 9
	}
	return opts.GridPoints
}

func tauAxis(center float64, s seed, n int) []float64 {
	lo := math.Max(center/4, s.dt/2)
	hi := math.Max(center*4, lo*2)
	return optim.Geomspace(lo, hi, n)
}

func thetaAxis(s seed, n int) []float64 {
	hi := math.Min(0.6*s.span, math.Max(2*s.theta, 5*s.dt))
	return optim.Linspace(0, hi, n)
}

func rSquared(y []float64, sse float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var sst float64
	for _, v := range y {
		sst += (v - mean) * (v - mean)
	}
	if sst == 0 {
		if sse == 0 {
			return 1
		}
		return 0
	}
	return 1 - sse/sst
}
