package optim

import (
	"fmt"
	"math"

	"github.com/san-kum/looptune/internal/dynamo"
	"gonum.org/v1/gonum/optimize"
)

type LocalSettings struct {
	MaxIterations int
	Tolerance     float64
	SimplexSize   float64
}

func DefaultLocalSettings() LocalSettings {
	return LocalSettings{MaxIterations: 2000, Tolerance: 1e-10, SimplexSize: 0.25}
}

type LocalResult struct {
	X      []float64
	F      float64
	Status optimize.Status
	Evals  int
}

// NelderMead minimizes f from x0 with gonum's simplex method. Any
// termination other than convergence is ErrFitDidNotConverge.
func NelderMead(f func(x []float64) float64, x0 []float64, s LocalSettings) (LocalResult, error) {
	problem := optimize.Problem{Func: f}
	settings := &optimize.Settings{
		MajorIterations: s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.Tolerance,
			Relative:   s.Tolerance,
			Iterations: 50,
		},
	}
	method := &optimize.NelderMead{SimplexSize: s.SimplexSize}

	res, err := optimize.Minimize(problem, x0, settings, method)
	if err != nil {
		return LocalResult{}, fmt.Errorf("%w: %v", dynamo.ErrFitDidNotConverge, err)
	}

	out := LocalResult{X: res.X, F: res.F, Status: res.Status, Evals: res.FuncEvaluations}
	switch res.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge:
	default:
		return out, fmt.Errorf("%w: status %s", dynamo.ErrFitDidNotConverge, res.Status)
	}
	if math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		return out, fmt.Errorf("%w: objective not finite", dynamo.ErrFitDidNotConverge)
	}
	return out, nil
}
