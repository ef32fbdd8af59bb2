package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSetParam(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := SetParam(cfg, "theta", 4); err != nil {
		t.Fatal(err)
	}
	if cfg.Process.Theta != 4 {
		t.Errorf("expected theta 4, got %v", cfg.Process.Theta)
	}
	if err := SetParam(cfg, "kp", 2.5); err != nil {
		t.Fatal(err)
	}
	if v, _ := Param(cfg, "kp"); v != 2.5 {
		t.Errorf("expected kp 2.5, got %v", v)
	}
	if err := SetParam(cfg, "mass", 1); !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestLoadAndRunScenario(t *testing.T) {
	dir := t.TempDir()
	loop := config.DefaultConfig()
	loop.Duration = 50
	if err := config.Save(filepath.Join(dir, "loop.yaml"), loop); err != nil {
		t.Fatal(err)
	}
	script := `name: retune
steps:
  - name: as-built
    config: loop.yaml
  - name: simc
    config: loop.yaml
    method: simc
  - name: noisy
    preset: flow/clean
    set: {duration: 20}
    seeds: 3
`
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Steps[0].Config != filepath.Join(dir, "loop.yaml") {
		t.Errorf("expected config path resolved against the scenario, got %s", sc.Steps[0].Config)
	}

	results, err := RunScenario(context.Background(), sc, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Gains != nil {
		t.Errorf("expected no gains for an untuned step")
	}
	if results[1].Gains == nil || results[1].Config.Controller.Kp != results[1].Gains.Kp {
		t.Errorf("expected tuned gains applied, got %+v", results[1].Gains)
	}
	if len(results[2].Runs) != 3 {
		t.Errorf("expected 3 seeded runs, got %d", len(results[2].Runs))
	}
	if results[2].Config.Duration != 20 {
		t.Errorf("expected duration override, got %v", results[2].Config.Duration)
	}
	if _, ok := results[0].Metrics["iae"]; !ok {
		t.Errorf("expected averaged metrics")
	}
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
	}{
		{"empty", Scenario{}},
		{"no source", Scenario{Steps: []ScenarioStep{{Name: "x"}}}},
		{"two sources", Scenario{Steps: []ScenarioStep{{Preset: "flow/clean", Config: "a.yaml"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.sc.Validate(); !errors.Is(err, dynamo.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestRunSweep(t *testing.T) {
	base := config.DefaultConfig()
	base.Duration = 60
	res, err := RunSweep(context.Background(), &ParameterSweep{Base: base, ParamName: "kp", ParamMin: 0.5, ParamMax: 1.5, NumSteps: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if res[1].ParamValue != 1 {
		t.Errorf("expected middle value 1, got %v", res[1].ParamValue)
	}
	if base.Controller.Kp != config.DefaultKp {
		t.Errorf("expected base config untouched, got kp %v", base.Controller.Kp)
	}
	for _, r := range res {
		if _, ok := r.Metrics["iae"]; !ok {
			t.Errorf("expected iae at %v", r.ParamValue)
		}
	}

	if _, err := RunSweep(context.Background(), &ParameterSweep{Base: base, ParamName: "kp", ParamMin: 1, ParamMax: 1, NumSteps: 3}); !errors.Is(err, dynamo.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for empty range, got %v", err)
	}
}

func TestMonteCarlo(t *testing.T) {
	base := config.DefaultConfig()
	res, err := RunMonteCarlo(context.Background(), &MonteCarloConfig{Base: base, Perturbation: 0, NumTrials: 2, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	stable, unstable := MonteCarloStats(res)
	if stable != 2 || unstable != 0 {
		t.Errorf("expected 2 stable trials, got %d stable %d unstable (%+v)", stable, unstable, res)
	}
	if res[1].TrialID != 1 {
		t.Errorf("expected trial ids in order, got %d", res[1].TrialID)
	}

	aggressive := base.Clone()
	aggressive.Controller.Kp = 20
	res, err = RunMonteCarlo(context.Background(), &MonteCarloConfig{Base: aggressive, Perturbation: 0.1, NumTrials: 3, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	if stable, _ := MonteCarloStats(res); stable != 0 {
		t.Errorf("expected no stable trials at Kp=20, got %d", stable)
	}
}

func TestMonteCarloIsRepeatable(t *testing.T) {
	cfg := &MonteCarloConfig{Base: config.DefaultConfig(), Perturbation: 0.3, NumTrials: 4, Seed: 7}
	a, err := RunMonteCarlo(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RunMonteCarlo(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i].Process != b[i].Process {
			t.Errorf("trial %d: expected same draw, got %+v and %+v", i, a[i].Process, b[i].Process)
		}
	}
	if a[0].Process == a[1].Process {
		t.Errorf("expected trials to differ")
	}
}
