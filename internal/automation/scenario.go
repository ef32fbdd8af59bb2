// Package automation runs scripted batches of loops: scenario files,
// one-parameter sweeps and Monte Carlo model-mismatch studies.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/experiment"
	"github.com/san-kum/looptune/internal/sim"
	"github.com/san-kum/looptune/internal/tuning"
)

// Scenario is a scripted sequence of loop runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep builds one loop from a preset or a config file, applies
// Set, optionally retunes it and runs it Seeds times.
type ScenarioStep struct {
	Name   string             `yaml:"name"`
	Preset string             `yaml:"preset,omitempty"`
	Config string             `yaml:"config,omitempty"`
	Set    map[string]float64 `yaml:"set,omitempty"`
	Method string             `yaml:"method,omitempty"`
	// Seeds > 1 repeats the run over consecutive noise seeds.
	Seeds int `yaml:"seeds,omitempty"`
}

type StepResult struct {
	Name   string
	Config *config.Config
	Gains  *tuning.Gains
	Runs   []*dynamo.Run
	// Metrics are averaged over Runs.
	Metrics map[string]float64
}

// LoadScenario reads a scenario file. Step config paths are relative to the
// scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range sc.Steps {
		if c := sc.Steps[i].Config; c != "" && !filepath.IsAbs(c) {
			sc.Steps[i].Config = filepath.Join(dir, c)
		}
	}
	return &sc, sc.Validate()
}

func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: scenario %q has no steps", dynamo.ErrInvalidParameter, sc.Name)
	}
	for i, st := range sc.Steps {
		if (st.Preset == "") == (st.Config == "") {
			return fmt.Errorf("%w: step %d needs exactly one of preset or config", dynamo.ErrInvalidParameter, i+1)
		}
		if st.Seeds < 0 {
			return dynamo.Invalid("seeds", float64(st.Seeds), "must be non-negative")
		}
	}
	return nil
}

// Build resolves the step's loop config.
func (st ScenarioStep) Build() (*config.Config, *tuning.Gains, error) {
	var cfg *config.Config
	if st.Preset != "" {
		loop, variant, _ := strings.Cut(st.Preset, "/")
		if cfg = config.GetPreset(loop, variant); cfg == nil {
			return nil, nil, fmt.Errorf("%w: unknown preset %q", dynamo.ErrInvalidParameter, st.Preset)
		}
	} else {
		loaded, err := config.Load(st.Config)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	for _, name := range slices.Sorted(maps.Keys(st.Set)) {
		if err := SetParam(cfg, name, st.Set[name]); err != nil {
			return nil, nil, err
		}
	}
	if st.Method == "" {
		return cfg, nil, cfg.Validate()
	}
	m, err := tuning.ParseMethod(st.Method)
	if err != nil {
		return nil, nil, err
	}
	tuned, g, err := experiment.Tuned(cfg, m)
	if err != nil {
		return nil, nil, err
	}
	return tuned, &g, nil
}

// RunScenario executes the steps in order. It stops at the first failing
// step and returns the results so far.
func RunScenario(ctx context.Context, sc *Scenario, log *slog.Logger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(sc.Steps))
	for i, st := range sc.Steps {
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}
		log.Info("scenario step", slog.Int("step", i+1), slog.Int("of", len(sc.Steps)), slog.String("name", name))

		cfg, g, err := st.Build()
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		e, err := experiment.New(cfg)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}

		var runs []*dynamo.Run
		if st.Seeds > 1 {
			runs, err = sim.NewEnsemble(e.Case(name), st.Seeds, cfg.Seed).Run(ctx)
		} else {
			var run *dynamo.Run
			run, err = e.Run(ctx)
			runs = []*dynamo.Run{run}
		}
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		results = append(results, StepResult{
			Name:    name,
			Config:  cfg,
			Gains:   g,
			Runs:    runs,
			Metrics: meanMetrics(runs),
		})
	}
	return results, nil
}

func meanMetrics(runs []*dynamo.Run) map[string]float64 {
	out := make(map[string]float64)
	if len(runs) == 0 {
		return out
	}
	for _, r := range runs {
		for k, v := range r.Metrics {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(runs))
	}
	return out
}
