package optim

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/san-kum/looptune/internal/dynamo"
)

var ErrNoFeasiblePoint = errors.New("optim: no feasible grid point")

// Objective scores one parameter set; lower is better. Returning an error
// marks the point infeasible.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	sequential bool
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Sequential makes Search evaluate every point in the calling goroutine,
// in index order.
func (g *GridSearch) Sequential() *GridSearch {
	g.sequential = true
	return g
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	if len(g.ranges) == 0 {
		return 0
	}
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search evaluates every grid point, in parallel unless Sequential was set,
// and returns the best parameters and score. Infeasible points are skipped.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (map[string]float64, float64, error) {
	n := g.Size()

	var (
		mu         sync.Mutex
		best       = math.Inf(1)
		bestIndex  = -1
		evalCancel error
	)

	eval := func(start, end int) {
		localBest, localIndex := math.Inf(1), -1
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				evalCancel = err
				mu.Unlock()
				return
			}
			val, err := objective(ctx, g.point(i))
			if err != nil || math.IsNaN(val) {
				continue
			}
			if val < localBest {
				localBest, localIndex = val, i
			}
		}

		mu.Lock()
		defer mu.Unlock()
		// ties go to the lower index so results do not depend on scheduling
		if localIndex >= 0 && (localBest < best || (localBest == best && localIndex < bestIndex)) {
			best, bestIndex = localBest, localIndex
		}
	}
	if g.sequential {
		eval(0, n)
	} else {
		dynamo.ParallelFor(n, 16, eval)
	}

	if evalCancel != nil {
		return nil, math.Inf(1), evalCancel
	}
	if bestIndex < 0 {
		return nil, math.Inf(1), ErrNoFeasiblePoint
	}
	return g.point(bestIndex), best, nil
}

// point decodes a flat index, last parameter varying fastest.
func (g *GridSearch) point(i int) map[string]float64 {
	p := make(map[string]float64, len(g.paramNames))
	for d := len(g.paramNames) - 1; d >= 0; d-- {
		r := g.ranges[d]
		p[g.paramNames[d]] = r[i%len(r)]
		i /= len(r)
	}
	return p
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// Geomspace returns n log-spaced values from lo to hi inclusive. Both must
// be positive.
func Geomspace(lo, hi float64, n int) []float64 {
	out := Linspace(math.Log(lo), math.Log(hi), n)
	for i := range out {
		out[i] = math.Exp(out[i])
	}
	out[0] = lo
	if n > 1 {
		out[n-1] = hi
	}
	return out
}
