package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/metrics"
)

// loopFlags are the scenario flags shared by every command that builds a
// loop. Precedence: flags over --config over --preset over defaults.
type loopFlags struct {
	configFile string
	preset     string

	family  string
	k       float64
	tau     float64
	tau1    float64
	tau2    float64
	theta   float64
	kprime  float64
	tauLeak float64

	ctrlType   string
	form       string
	kp         float64
	ti         float64
	td         float64
	antiWindup string

	dt       float64
	duration float64
	seed     int64
	noise    float64
	sp       float64
	spAt     float64

	characteristic string
	deadband       float64
	stiction       float64

	speed float64
	lag   string
}

func (f *loopFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "loop config file (yaml)")
	fs.StringVar(&f.preset, "preset", "", "preset as loop/variant, e.g. flow/sticky")

	fs.StringVar(&f.family, "family", "fopdt", "process family (fopdt, sopdt, integrator)")
	fs.Float64Var(&f.k, "k", 1, "process gain")
	fs.Float64Var(&f.tau, "tau", 10, "time constant (s)")
	fs.Float64Var(&f.tau1, "tau1", 10, "first time constant (s, sopdt)")
	fs.Float64Var(&f.tau2, "tau2", 2, "second time constant (s, sopdt)")
	fs.Float64Var(&f.theta, "theta", 2, "dead time (s)")
	fs.Float64Var(&f.kprime, "kprime", 0.01, "integrating gain (1/s)")
	fs.Float64Var(&f.tauLeak, "tau-leak", 0, "integrator leak time constant (s, 0 = pure)")

	fs.StringVar(&f.ctrlType, "controller", "pid", "controller (pid, manual, relay)")
	fs.StringVar(&f.form, "form", "PI", "PID form (P, PI, PID)")
	fs.Float64Var(&f.kp, "kp", config.DefaultKp, "proportional gain")
	fs.Float64Var(&f.ti, "ti", config.DefaultTi, "integral time (s)")
	fs.Float64Var(&f.td, "td", 0, "derivative time (s)")
	fs.StringVar(&f.antiWindup, "anti-windup", "conditional", "anti-windup (conditional, back-calculation)")

	fs.Float64Var(&f.dt, "dt", config.DefaultDt, "sample time (s)")
	fs.Float64Var(&f.duration, "time", config.DefaultDuration, "duration (s)")
	fs.Int64Var(&f.seed, "seed", 0, "noise seed")
	fs.Float64Var(&f.noise, "noise", 0, "measurement noise std dev")
	fs.Float64Var(&f.sp, "sp", 0, "setpoint after the step")
	fs.Float64Var(&f.spAt, "sp-at", 10, "setpoint step time (s)")

	fs.StringVar(&f.characteristic, "valve", "", "add a valve (linear, equal_percentage, quick_opening)")
	fs.Float64Var(&f.deadband, "deadband", 0, "valve deadband (% travel)")
	fs.Float64Var(&f.stiction, "stiction", 0, "valve stiction (% travel)")

	fs.Float64Var(&f.speed, "speed", -1, "closed-loop speed tau_c/lambda (s, negative = recommended)")
	fs.StringVar(&f.lag, "discretization", "exact", "process lag discretization (exact, euler)")
}

func (f *loopFlags) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.preset != "" {
		loop, variant, _ := strings.Cut(f.preset, "/")
		p := config.GetPreset(loop, variant)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q (loops: %s)", f.preset, strings.Join(config.Loops(), ", "))
		}
		cfg = p
	}
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	setString := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64, v float64) {
		if changed(name) {
			*dst = v
		}
	}

	setString("family", &cfg.Process.Family, f.family)
	setFloat("k", &cfg.Process.K, f.k)
	setFloat("tau", &cfg.Process.Tau, f.tau)
	setFloat("tau1", &cfg.Process.Tau1, f.tau1)
	setFloat("tau2", &cfg.Process.Tau2, f.tau2)
	setFloat("theta", &cfg.Process.Theta, f.theta)
	setFloat("kprime", &cfg.Process.KPrime, f.kprime)
	setFloat("tau-leak", &cfg.Process.TauLeak, f.tauLeak)

	setString("controller", &cfg.Controller.Type, f.ctrlType)
	setString("form", &cfg.Controller.Form, f.form)
	setFloat("kp", &cfg.Controller.Kp, f.kp)
	setFloat("ti", &cfg.Controller.Ti, f.ti)
	setFloat("td", &cfg.Controller.Td, f.td)
	setString("anti-windup", &cfg.Controller.AntiWindup, f.antiWindup)

	setFloat("dt", &cfg.Dt, f.dt)
	setFloat("time", &cfg.Duration, f.duration)
	setFloat("noise", &cfg.NoiseStd, f.noise)
	setFloat("speed", &cfg.Tuning.Speed, f.speed)
	setString("discretization", &cfg.Discretization, f.lag)
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("sp") || changed("sp-at") {
		target := cfg.Setpoint.At(cfg.Duration)
		if changed("sp") {
			target = f.sp
		}
		cfg.Setpoint = dynamo.StepAt(cfg.InitState.PV, f.spAt, target)
	}

	if changed("valve") || changed("deadband") || changed("stiction") {
		if cfg.Valve == nil {
			cfg.Valve = &config.ValveConfig{Characteristic: "linear", PositionerTau: 1}
		}
		setString("valve", &cfg.Valve.Characteristic, f.characteristic)
		setFloat("deadband", &cfg.Valve.Deadband, f.deadband)
		setFloat("stiction", &cfg.Valve.Stiction, f.stiction)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// metricRows orders the standard metrics first, then any extras by name.
func metricRows(m map[string]float64) []string {
	seen := make(map[string]bool, len(m))
	var names []string
	for _, n := range metrics.Names() {
		if _, ok := m[n]; ok {
			names = append(names, n)
			seen[n] = true
		}
	}
	var extra []string
	for n := range m {
		if !seen[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func printMetrics(title string, m map[string]float64) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	for _, n := range metricRows(m) {
		tw.AppendRow(table.Row{n, fmt.Sprintf("%.4g", m[n])})
	}
	tw.Render()
}
