package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/san-kum/looptune/internal/analysis"
	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/experiment"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/sim"
	"github.com/san-kum/looptune/internal/tuning"
)

func tuneCmd() *cobra.Command {
	var (
		lf     loopFlags
		method string
		out    string
		run    bool
	)
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "compute PID gains from the process model",
		Long: `tune applies a tuning rule to the configured process model.
--method all prints every rule side by side.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			if method == "" {
				method = cfg.Tuning.Method
			}
			if method == "all" {
				return tuneAll(cfg)
			}
			m, err := tuning.ParseMethod(method)
			if err != nil {
				return err
			}
			tuned, g, err := experiment.Tuned(cfg, m)
			if err != nil {
				return err
			}

			if viper.GetBool("json") && !run {
				return printJSON(map[string]any{"method": m, "form": tuned.Controller.Form, "gains": g})
			}
			if !viper.GetBool("json") {
				fmt.Printf("%s (%s): %s\n", m, tuned.Controller.Form, g)
			}
			if out != "" {
				if err := config.Save(out, tuned); err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("wrote %s\n", out)
				}
			}
			if !run {
				return nil
			}
			e, err := experiment.New(tuned)
			if err != nil {
				return err
			}
			res, err := e.Run(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"method": m, "form": tuned.Controller.Form, "gains": g, "metrics": res.Metrics})
			}
			printMetrics("closed loop", res.Metrics)
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().StringVar(&method, "method", "", "tuning rule ("+methodList()+", all)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the tuned config here")
	cmd.Flags().BoolVar(&run, "run", false, "simulate the tuned loop")
	return cmd
}

func tuneAll(cfg *config.Config) error {
	model, err := experiment.NewRegistry().Model(cfg.Process)
	if err != nil {
		return err
	}
	form, err := control.ParseForm(cfg.Controller.Form)
	if err != nil {
		return err
	}

	type row struct {
		Method tuning.Method `json:"method"`
		Gains  tuning.Gains  `json:"gains"`
		Error  string        `json:"error,omitempty"`
	}
	var rows []row
	for _, m := range tuning.Methods() {
		g, err := tuning.Tune(model, m, cfg.Tuning.Speed, form)
		r := row{Method: m, Gains: g}
		if err != nil {
			r.Error = err.Error()
		}
		rows = append(rows, r)
	}
	if viper.GetBool("json") {
		return printJSON(rows)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(fmt.Sprintf("%s, %s", process.String(model), form))
	tw.AppendHeader(table.Row{"Method", "Kp", "Ti", "Td", "Note"})
	for _, r := range rows {
		if r.Error != "" {
			tw.AppendRow(table.Row{r.Method, "-", "-", "-", r.Error})
			continue
		}
		tw.AppendRow(table.Row{r.Method, num(r.Gains.Kp), num(r.Gains.Ti), num(r.Gains.Td), ""})
	}
	tw.Render()
	return nil
}

func num(v float64) string { return fmt.Sprintf("%.4g", v) }

func compareCmd() *cobra.Command {
	var (
		lf      loopFlags
		methods []string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "simulate the configured loop against tuned alternatives",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			if len(methods) == 0 {
				for _, m := range tuning.Methods() {
					methods = append(methods, string(m))
				}
			}

			base, err := experiment.New(cfg)
			if err != nil {
				return err
			}
			cases := []sim.Case{base.Case("configured")}
			gains := []tuning.Gains{{Kp: cfg.Controller.Kp, Ti: cfg.Controller.Ti, Td: cfg.Controller.Td}}
			for _, name := range methods {
				m, err := tuning.ParseMethod(name)
				if err != nil {
					return err
				}
				tuned, g, err := experiment.Tuned(cfg, m)
				if err != nil {
					log.Warn("tuning rule skipped", slog.String("method", name), slog.Any("error", err))
					continue
				}
				e, err := experiment.New(tuned)
				if err != nil {
					log.Warn("tuning rule skipped", slog.String("method", name), slog.Any("error", err))
					continue
				}
				cases = append(cases, e.Case(name))
				gains = append(gains, g)
			}

			outcomes, err := sim.Compare(cmd.Context(), cases)
			if err != nil {
				return err
			}

			if viper.GetBool("json") {
				type result struct {
					Name    string             `json:"name"`
					Gains   tuning.Gains       `json:"gains"`
					Metrics map[string]float64 `json:"metrics"`
				}
				res := make([]result, len(outcomes))
				for i, o := range outcomes {
					res[i] = result{Name: o.Name, Gains: gains[i], Metrics: o.Run.Metrics}
				}
				return printJSON(res)
			}

			names := metricRows(outcomes[0].Run.Metrics)
			header := table.Row{"Case", "Kp", "Ti", "Td"}
			for _, n := range names {
				header = append(header, n)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(header)
			for i, o := range outcomes {
				row := table.Row{o.Name, num(gains[i].Kp), num(gains[i].Ti), num(gains[i].Td)}
				for _, n := range names {
					row = append(row, num(o.Run.Metrics[n]))
				}
				tw.AppendRow(row)
			}
			tw.Render()
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().StringSliceVar(&methods, "methods", nil, "tuning rules to compare (default all)")
	return cmd
}

func relayCmd() *cobra.Command {
	var (
		lf         loopFlags
		amplitude  float64
		hysteresis float64
		transient  float64
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "relay autotune: estimate Ku and Pu from a limit cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			form, err := control.ParseForm(cfg.Controller.Form)
			if err != nil {
				return err
			}
			test := cfg.Clone()
			test.Controller = config.ControllerConfig{
				Type:       "relay",
				Bias:       cfg.InitState.OP,
				Amplitude:  amplitude,
				Hysteresis: hysteresis,
			}
			test.Setpoint = dynamo.Constant(cfg.InitState.PV)
			if transient <= 0 {
				transient = test.Duration / 3
			}

			e, err := experiment.New(test)
			if err != nil {
				return err
			}
			res, err := e.Run(cmd.Context())
			if err != nil {
				return err
			}
			osc, err := analysis.DetectOscillation(res.PV(), test.Dt, transient)
			if err != nil {
				return err
			}
			if !osc.Sustained {
				return fmt.Errorf("%w: no sustained limit cycle after %gs; raise --amplitude or --time", dynamo.ErrInsufficientData, transient)
			}
			ku, err := tuning.RelayUltimate(amplitude, osc.Amplitude)
			if err != nil {
				return err
			}
			g, err := tuning.ZNUltimate(ku, osc.Period, form)
			if err != nil {
				return err
			}

			if viper.GetBool("json") {
				return printJSON(map[string]any{"ku": ku, "pu": osc.Period, "pv_amplitude": osc.Amplitude, "form": form.String(), "gains": g})
			}
			fmt.Printf("limit cycle: period %.4g s, PV amplitude %.4g\n", osc.Period, osc.Amplitude)
			fmt.Printf("Ku = %.4g, Pu = %.4g s\n", ku, osc.Period)
			fmt.Printf("zn-ultimate (%s): %s\n", form, g)
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().Float64Var(&amplitude, "amplitude", 5, "relay amplitude (% OP)")
	cmd.Flags().Float64Var(&hysteresis, "hysteresis", 0.1, "relay hysteresis (PV units)")
	cmd.Flags().Float64Var(&transient, "transient", 0, "ignore this many seconds (default a third of the run)")
	return cmd
}

func sweepCmd() *cobra.Command {
	var (
		lf        loopFlags
		list      string
		kpMin     float64
		kpMax     float64
		n         int
		step      float64
		transient float64
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "find the ultimate gain by sweeping a P-only loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			model, err := experiment.NewRegistry().Model(cfg.Process)
			if err != nil {
				return err
			}
			gains, err := sweepGains(list, kpMin, kpMax, n)
			if err != nil {
				return err
			}
			if transient <= 0 {
				transient = cfg.Duration / 2
			}

			points, err := analysis.GainSweep(cmd.Context(), analysis.SweepConfig{
				Model:     model,
				Bias:      cfg.InitState.OP,
				OutMin:    cfg.Controller.OutMin,
				OutMax:    cfg.Controller.OutMax,
				PV0:       cfg.InitState.PV,
				Step:      step,
				Dt:        cfg.Dt,
				Duration:  cfg.Duration,
				Transient: transient,
			}, gains)
			if err != nil {
				return err
			}
			ku, pu, found := analysis.UltimateFromSweep(points)
			aku, apu, aerr := analyticUltimate(model)

			if viper.GetBool("json") {
				res := map[string]any{"points": points, "found": found}
				if found {
					res["ku"], res["pu"] = ku, pu
				}
				if aerr == nil {
					res["analytic_ku"], res["analytic_pu"] = aku, apu
				}
				return printJSON(res)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetTitle(process.String(model))
			tw.AppendHeader(table.Row{"Kp", "Period (s)", "Amplitude", "Sustained"})
			for _, p := range points {
				tw.AppendRow(table.Row{num(p.Kp), num(p.Period), num(p.Amplitude), p.Sustained})
			}
			tw.Render()
			if found {
				fmt.Printf("first sustained oscillation: Kp = %.4g, period %.4g s\n", ku, pu)
			} else {
				fmt.Println("no sustained oscillation in the swept range")
			}
			if aerr == nil {
				fmt.Printf("analytic: Ku = %.4g, Pu = %.4g s\n", aku, apu)
			}
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().StringVar(&list, "gains", "", "comma-separated gains (overrides the range)")
	cmd.Flags().Float64Var(&kpMin, "kp-min", 0.5, "smallest gain")
	cmd.Flags().Float64Var(&kpMax, "kp-max", 20, "largest gain")
	cmd.Flags().IntVar(&n, "n", 16, "gains in the geometric range")
	cmd.Flags().Float64Var(&step, "step", 1, "setpoint step")
	cmd.Flags().Float64Var(&transient, "transient", 0, "ignore this many seconds (default half the run)")
	return cmd
}

// sweepGains parses list, or spaces n gains geometrically over [lo, hi].
func sweepGains(list string, lo, hi float64, n int) ([]float64, error) {
	if list != "" {
		var out []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("bad gain %q: %w", f, err)
			}
			out = append(out, v)
		}
		return out, nil
	}
	if !(lo > 0) || !(hi > lo) || n < 2 {
		return nil, fmt.Errorf("%w: need 0 < kp-min < kp-max and n >= 2", dynamo.ErrInvalidParameter)
	}
	out := make([]float64, n)
	r := math.Pow(hi/lo, 1/float64(n-1))
	for i := range out {
		out[i] = lo * math.Pow(r, float64(i))
	}
	return out, nil
}

func analyticUltimate(m process.Model) (ku, pu float64, err error) {
	switch v := m.(type) {
	case process.FOPDT:
		return tuning.UltimateGain(v)
	case process.IntegratorLeak:
		if v.Pure() {
			return tuning.UltimateGainIntegrator(v.KPrime, v.Theta)
		}
	}
	return 0, 0, fmt.Errorf("%w: no closed form for %s", dynamo.ErrInvalidParameter, m.Family())
}
