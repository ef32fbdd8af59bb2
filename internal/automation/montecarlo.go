package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/looptune/internal/analysis"
	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/experiment"
)

// MonteCarloConfig perturbs the process parameters of Base by up to
// ±Perturbation (relative, uniform) while the controller stays as
// configured. Trials run without measurement noise.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Seed         int64
}

// MonteCarloResult is one trial. A trial is stable when the run completes
// and PV shows no sustained oscillation over the second half.
type MonteCarloResult struct {
	TrialID int                  `json:"trial"`
	Process config.ProcessConfig `json:"process"`
	Stable  bool                 `json:"stable"`
	Metrics map[string]float64   `json:"metrics,omitempty"`
	Err     string               `json:"error,omitempty"`
}

// RunMonteCarlo draws every trial up front from Seed, so results do not
// depend on scheduling.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig) ([]MonteCarloResult, error) {
	if cfg.Base == nil {
		return nil, fmt.Errorf("%w: monte carlo has no base config", dynamo.ErrInvalidParameter)
	}
	if cfg.NumTrials < 1 {
		return nil, dynamo.Invalid("trials", float64(cfg.NumTrials), "must be at least 1")
	}
	if !(cfg.Perturbation >= 0 && cfg.Perturbation < 1) {
		return nil, dynamo.Invalid("perturbation", cfg.Perturbation, "must be in [0, 1)")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	trials := make([]*config.Config, cfg.NumTrials)
	for i := range trials {
		c := cfg.Base.Clone()
		c.NoiseStd = 0
		for _, name := range processParams {
			v, _ := Param(c, name)
			_ = SetParam(c, name, v*(1+(2*rng.Float64()-1)*cfg.Perturbation))
		}
		trials[i] = c
	}

	results := make([]MonteCarloResult, cfg.NumTrials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range trials {
		g.Go(func() error {
			r, err := trial(gctx, c)
			if err != nil {
				return err
			}
			r.TrialID = i
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// trial returns an error only for cancellation.
func trial(ctx context.Context, c *config.Config) (MonteCarloResult, error) {
	res := MonteCarloResult{Process: c.Process}
	e, err := experiment.New(c)
	if err != nil {
		res.Err = err.Error()
		return res, nil
	}
	run, err := e.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		res.Err = err.Error()
		return res, nil
	}
	res.Metrics = run.Metrics
	osc, err := analysis.DetectOscillation(run.PV(), c.Dt, c.Duration/2)
	if err != nil {
		res.Err = err.Error()
		return res, nil
	}
	res.Stable = !osc.Sustained
	return res, nil
}

func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
