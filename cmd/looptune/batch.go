package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/san-kum/looptune/internal/automation"
	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/experiment"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/storage"
)

func scenarioCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "run a scripted batch of loops",
		Long: `scenario runs each step of a YAML script in order:

  name: retune FIC101
  steps:
    - name: as-built
      config: fic101.yaml
    - name: lambda
      config: fic101.yaml
      method: lambda
      set: {speed: 4}
    - name: worn valve
      preset: flow/sticky
      seeds: 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := automation.LoadScenario(args[0])
			if err != nil {
				return err
			}
			results, err := automation.RunScenario(cmd.Context(), sc, newLogger())
			if err != nil {
				return err
			}

			var st *storage.Store
			if save {
				st = storage.New(viper.GetString("data"))
				if err := st.Init(); err != nil {
					return err
				}
			}
			ids := make([]string, len(results))
			for i, r := range results {
				if st == nil {
					continue
				}
				m, err := experimentModel(r.Config)
				if err != nil {
					return err
				}
				meta := runMetadata(r.Config, m)
				meta.Name = sc.Name + "/" + r.Name
				saved, err := st.Save(meta, r.Config, r.Runs[0])
				if err != nil {
					return err
				}
				ids[i] = saved.ID
			}

			if viper.GetBool("json") {
				type row struct {
					Name    string             `json:"name"`
					RunID   string             `json:"run_id,omitempty"`
					Runs    int                `json:"runs"`
					Metrics map[string]float64 `json:"metrics"`
				}
				rows := make([]row, len(results))
				for i, r := range results {
					rows[i] = row{Name: r.Name, RunID: ids[i], Runs: len(r.Runs), Metrics: r.Metrics}
				}
				return printJSON(rows)
			}

			names := metricRows(results[0].Metrics)
			header := table.Row{"Step", "Runs"}
			for _, n := range names {
				header = append(header, n)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetTitle(sc.Name)
			tw.AppendHeader(header)
			for _, r := range results {
				row := table.Row{r.Name, len(r.Runs)}
				for _, n := range names {
					row = append(row, num(r.Metrics[n]))
				}
				tw.AppendRow(row)
			}
			tw.Render()
			for i, id := range ids {
				if id != "" {
					fmt.Printf("%s: run id %s\n", results[i].Name, id)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the first run of every step")
	return cmd
}

func experimentModel(cfg *config.Config) (process.Model, error) {
	return experiment.NewRegistry().Model(cfg.Process)
}

func robustCmd() *cobra.Command {
	var (
		lf     loopFlags
		spread float64
		trials int
		seed   int64
	)
	cmd := &cobra.Command{
		Use:   "robust",
		Short: "Monte Carlo model mismatch: how often does the loop stay stable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			res, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
				Base:         cfg,
				Perturbation: spread,
				NumTrials:    trials,
				Seed:         seed,
			})
			if err != nil {
				return err
			}
			stable, unstable := automation.MonteCarloStats(res)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"stable": stable, "unstable": unstable, "trials": res})
			}

			worst := -1
			for i, r := range res {
				if r.Stable && (worst < 0 || r.Metrics["iae"] > res[worst].Metrics["iae"]) {
					worst = i
				}
			}
			fmt.Printf("%d trials at ±%.0f%% process mismatch: %d stable, %d unstable\n", len(res), spread*100, stable, unstable)
			if worst >= 0 {
				p := res[worst].Process
				fmt.Printf("worst stable IAE %.4g at K=%.4g tau=%.4g theta=%.4g\n", res[worst].Metrics["iae"], p.K, p.Tau, p.Theta)
			}
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().Float64Var(&spread, "spread", 0.2, "relative process parameter spread")
	cmd.Flags().IntVar(&trials, "trials", 100, "number of trials")
	cmd.Flags().Int64Var(&seed, "mc-seed", 1, "trial draw seed")
	return cmd
}

func paramSweepCmd() *cobra.Command {
	var (
		lf     loopFlags
		param  string
		lo, hi float64
		steps  int
	)
	cmd := &cobra.Command{
		Use:   "param-sweep",
		Short: "sweep one loop parameter and tabulate the metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			res, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
				Base:      cfg,
				ParamName: param,
				ParamMin:  lo,
				ParamMax:  hi,
				NumSteps:  steps,
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			names := metricRows(res[0].Metrics)
			header := table.Row{param}
			for _, n := range names {
				header = append(header, n)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(header)
			for _, r := range res {
				row := table.Row{num(r.ParamValue)}
				for _, n := range names {
					row = append(row, num(r.Metrics[n]))
				}
				tw.AppendRow(row)
			}
			tw.Render()
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().StringVar(&param, "param", "kp", fmt.Sprintf("parameter %v", automation.ParamNames()))
	cmd.Flags().Float64Var(&lo, "min", 0.5, "first value")
	cmd.Flags().Float64Var(&hi, "max", 2, "last value")
	cmd.Flags().IntVar(&steps, "steps", 7, "number of values")
	return cmd
}
