package automation

import (
	"context"
	"fmt"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/experiment"
	"github.com/san-kum/looptune/internal/sim"
)

// ParameterSweep varies one named loop parameter linearly over
// [ParamMin, ParamMax] in NumSteps runs.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

type SweepResult struct {
	ParamValue float64            `json:"value"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Values lists the swept parameter values.
func (s *ParameterSweep) Values() ([]float64, error) {
	if s.NumSteps < 2 {
		return nil, dynamo.Invalid("steps", float64(s.NumSteps), "need at least 2")
	}
	if !(s.ParamMax > s.ParamMin) {
		return nil, dynamo.Invalid("max", s.ParamMax, "must exceed min")
	}
	step := (s.ParamMax - s.ParamMin) / float64(s.NumSteps-1)
	out := make([]float64, s.NumSteps)
	for i := range out {
		out[i] = s.ParamMin + float64(i)*step
	}
	return out, nil
}

// RunSweep runs every value concurrently and returns results in value
// order.
func RunSweep(ctx context.Context, sweep *ParameterSweep) ([]SweepResult, error) {
	if sweep.Base == nil {
		return nil, fmt.Errorf("%w: sweep has no base config", dynamo.ErrInvalidParameter)
	}
	values, err := sweep.Values()
	if err != nil {
		return nil, err
	}

	cases := make([]sim.Case, len(values))
	for i, v := range values {
		cfg := sweep.Base.Clone()
		if err := SetParam(cfg, sweep.ParamName, v); err != nil {
			return nil, err
		}
		e, err := experiment.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.ParamName, v, err)
		}
		cases[i] = e.Case(fmt.Sprintf("%s=%g", sweep.ParamName, v))
	}

	outcomes, err := sim.Compare(ctx, cases)
	if err != nil {
		return nil, err
	}
	results := make([]SweepResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = SweepResult{ParamValue: values[i], Metrics: o.Run.Metrics}
	}
	return results, nil
}
