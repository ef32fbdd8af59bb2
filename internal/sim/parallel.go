package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/integrators"
	"github.com/san-kum/looptune/internal/process"
	"golang.org/x/sync/errgroup"
)

// Case is one independently built loop. The constructors are called inside
// the case's goroutine so no controller or valve state is shared.
type Case struct {
	Name          string
	Model         process.Model
	NewController func() (Controller, error)
	NewActuator   func() (Actuator, error)
	NewMetrics    func() []Metric
	// NewLag may be nil for exact discretization.
	NewLag        func() integrators.Lag
	Config        Config
}

type Outcome struct {
	Name string
	Run  *dynamo.Run
}

// Compare runs every case concurrently and returns outcomes in case order.
// The first failure cancels the rest.
func Compare(ctx context.Context, cases []Case) ([]Outcome, error) {
	out := make([]Outcome, len(cases))
	g, ctx := errgroup.WithContext(ctx)

	for i, c := range cases {
		g.Go(func() error {
			ctrl, err := c.NewController()
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			var act Actuator
			if c.NewActuator != nil {
				if act, err = c.NewActuator(); err != nil {
					return fmt.Errorf("%s: %w", c.Name, err)
				}
			}

			s := New(c.Model, ctrl, act)
			if c.NewLag != nil {
				s.SetLag(c.NewLag())
			}
			if c.NewMetrics != nil {
				for _, m := range c.NewMetrics() {
					s.AddMetric(m)
				}
			}

			run, err := s.Run(ctx, c.Config)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			out[i] = Outcome{Name: c.Name, Run: run}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ensemble repeats one case over consecutive noise seeds.
type Ensemble struct {
	base      Case
	numRuns   int
	seedStart int64
}

func NewEnsemble(c Case, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{base: c, numRuns: numRuns, seedStart: seedStart}
}

func (e *Ensemble) Run(ctx context.Context) ([]*dynamo.Run, error) {
	cases := make([]Case, e.numRuns)
	for i := range cases {
		c := e.base
		c.Name = fmt.Sprintf("%s#%d", e.base.Name, i)
		c.Config.Seed = e.seedStart + int64(i)
		cases[i] = c
	}

	outcomes, err := Compare(ctx, cases)
	if err != nil {
		return nil, err
	}
	runs := make([]*dynamo.Run, len(outcomes))
	for i, o := range outcomes {
		runs[i] = o.Run
	}
	return runs, nil
}
