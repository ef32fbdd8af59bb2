package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/san-kum/looptune/internal/analysis"
	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/experiment"
	"github.com/san-kum/looptune/internal/export"
	"github.com/san-kum/looptune/internal/metrics"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/sim"
	"github.com/san-kum/looptune/internal/storage"
	"github.com/san-kum/looptune/internal/tui"
	"github.com/san-kum/looptune/internal/tuning"
	"github.com/san-kum/looptune/internal/viz"
)

func initCmd() *cobra.Command {
	var preset string
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a starter loop config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "loop.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			cfg := config.DefaultConfig()
			if preset != "" {
				loop, variant, _ := strings.Cut(preset, "/")
				if cfg = config.GetPreset(loop, variant); cfg == nil {
					return fmt.Errorf("unknown preset %q", preset)
				}
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "start from a preset (loop/variant)")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		lf     loopFlags
		method string
		band   float64
		noSave bool
		chart  bool
		png    string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "run a closed-loop simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			if method != "" {
				m, err := tuning.ParseMethod(method)
				if err != nil {
					return err
				}
				tuned, g, err := experiment.Tuned(cfg, m)
				if err != nil {
					return err
				}
				cfg = tuned
				if !viper.GetBool("json") {
					fmt.Printf("%s gains: %s\n", m, g)
				}
			}

			e, err := experiment.New(cfg)
			if err != nil {
				return err
			}
			if band > 0 {
				e.Simulator().AddMetric(metrics.NewTimeInBand(band))
			}

			start := time.Now()
			run, err := e.Run(cmd.Context())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			meta := runMetadata(cfg, e.Model())
			if !noSave {
				st := storage.New(viper.GetString("data"))
				if err := st.Init(); err != nil {
					return err
				}
				if meta, err = st.Save(meta, cfg, run); err != nil {
					return err
				}
			} else {
				meta.Points = run.Len()
				meta.Metrics = run.Metrics
			}

			if viper.GetBool("json") {
				return printJSON(meta)
			}
			fmt.Printf("model: %s\n", meta.Model)
			fmt.Printf("completed %d steps in %v\n", run.Len(), elapsed.Round(time.Millisecond))
			if meta.ID != "" {
				fmt.Printf("run id: %s\n", meta.ID)
			}
			printMetrics("metrics", run.Metrics)
			if chart {
				fmt.Println()
				if err := viz.Terminal(os.Stdout, run, viz.DefaultChartOptions()); err != nil {
					return err
				}
			}
			if png != "" {
				if err := viz.SavePNG(run, cfg.Name, png, 0, 0); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", png)
			}
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().StringVar(&method, "method", "", "tune the controller first ("+methodList()+")")
	cmd.Flags().Float64Var(&band, "band", 0, "also report time within this |SP-PV| band")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	cmd.Flags().BoolVar(&chart, "plot", false, "draw the trend in the terminal")
	cmd.Flags().StringVar(&png, "png", "", "write the trend to a PNG file")
	return cmd
}

func runMetadata(cfg *config.Config, m process.Model) storage.RunMetadata {
	return storage.RunMetadata{
		Name:     cfg.Name,
		Model:    process.String(m),
		Family:   string(m.Family()),
		Params:   m.Params(),
		Tuning:   cfg.Tuning.Method,
		Seed:     cfg.Seed,
		Dt:       cfg.Dt,
		Duration: cfg.Duration,
		NoiseStd: cfg.NoiseStd,
	}
}

func methodList() string {
	ms := tuning.Methods()
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := storage.New(viper.GetString("data")).List()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Println("no runs found")
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Model", "Tuning", "Time", "Duration", "IAE"})
			for _, r := range runs {
				tw.AppendRow(table.Row{
					r.ID,
					r.Model,
					r.Tuning,
					r.Timestamp.Local().Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%gs", r.Duration),
					fmt.Sprintf("%.4g", r.Metrics["iae"]),
				})
			}
			tw.Render()
			return nil
		},
	}
}

func plotCmd() *cobra.Command {
	var (
		png           string
		opts          = viz.DefaultChartOptions()
		width, height float64
	)
	cmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(viper.GetString("data"))
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			run, err := st.LoadRun(args[0])
			if err != nil {
				return err
			}
			if png != "" {
				if err := viz.SavePNG(run, meta.Model, png, width, height); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", png)
				return nil
			}
			fmt.Printf("run: %s\n", meta.ID)
			fmt.Printf("model: %s\n\n", meta.Model)
			return viz.Terminal(os.Stdout, run, opts)
		},
	}
	cmd.Flags().StringVar(&png, "png", "", "write a PNG instead of drawing in the terminal")
	cmd.Flags().Float64Var(&opts.From, "from", 0, "window start (s)")
	cmd.Flags().Float64Var(&opts.To, "to", 0, "window end (s, 0 = end of run)")
	cmd.Flags().IntVar(&opts.Width, "width", opts.Width, "chart width (columns)")
	cmd.Flags().IntVar(&opts.Height, "height", opts.Height, "chart height (rows)")
	cmd.Flags().BoolVar(&opts.Color, "color", opts.Color, "colored series")
	cmd.Flags().Float64Var(&width, "png-width", 0, "PNG width (inches, 0 = default)")
	cmd.Flags().Float64Var(&height, "png-height", 0, "PNG height (inches, 0 = default)")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(viper.GetString("data"))
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			run, err := st.LoadRun(args[0])
			if err != nil {
				return err
			}

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			switch format {
			case "json":
				return storage.ExportJSON(w, *meta, run)
			case "csv":
				return storage.WriteCSV(w, run)
			}
			return fmt.Errorf("unknown format %q (json, csv)", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format (json, csv)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		transient float64
		portrait  string
		spectrum  bool
		svg       string
	)
	cmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "oscillation and valve analysis of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(viper.GetString("data"))
			meta, err := st.Load(args[0])
			if err != nil {
				return err
			}
			run, err := st.LoadRun(args[0])
			if err != nil {
				return err
			}
			if run.Len() < 2 {
				return fmt.Errorf("run %s: %w", meta.ID, dynamo.ErrInsufficientData)
			}

			pv, err := analysis.DetectOscillation(run.PV(), meta.Dt, transient)
			if err != nil {
				return err
			}
			op, err := analysis.DetectOscillation(run.OP(), meta.Dt, transient)
			if err != nil {
				return err
			}

			var p *analysis.Portrait
			switch portrait {
			case "op-pv":
				p = analysis.OPvsPV(run, transient)
			case "op-valve":
				p = analysis.OPvsValve(run, transient)
			case "":
			default:
				return fmt.Errorf("unknown portrait %q (op-pv, op-valve)", portrait)
			}

			if viper.GetBool("json") {
				res := map[string]any{"id": meta.ID, "pv": pv, "op": op}
				if p != nil {
					res["portrait_area"] = p.Area()
				}
				return printJSON(res)
			}

			fmt.Printf("run: %s\n", meta.ID)
			fmt.Printf("model: %s\n\n", meta.Model)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Signal", "Period (s)", "Amplitude", "Sustained"})
			tw.AppendRow(table.Row{"PV", fmt.Sprintf("%.4g", pv.Period), fmt.Sprintf("%.4g", pv.Amplitude), pv.Sustained})
			tw.AppendRow(table.Row{"OP", fmt.Sprintf("%.4g", op.Period), fmt.Sprintf("%.4g", op.Amplitude), op.Sustained})
			tw.Render()

			if spectrum {
				s, err := analysis.PowerSpectrum(run.PV(), meta.Dt)
				if err != nil {
					return err
				}
				fmt.Println()
				opts := viz.DefaultChartOptions()
				opts.Height = 8
				if err := viz.Series(os.Stdout, fmt.Sprintf("PV spectrum, 0..%.3g Hz", s.Freq[len(s.Freq)-1]), s.Amp, opts); err != nil {
					return err
				}
			}
			if p != nil {
				fmt.Println()
				fmt.Println(viz.PortraitString(p, 60, 16))
				fmt.Printf("enclosed area: %.4g\n", p.Area())
				if svg != "" {
					f, err := os.Create(svg)
					if err != nil {
						return err
					}
					if err := export.WritePortraitSVG(f, p, 480, 480); err != nil {
						f.Close()
						return err
					}
					if err := f.Close(); err != nil {
						return err
					}
					fmt.Printf("wrote %s\n", svg)
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&transient, "transient", 0, "ignore this many seconds at the start")
	cmd.Flags().StringVar(&portrait, "portrait", "", "draw a phase portrait (op-pv, op-valve)")
	cmd.Flags().BoolVar(&spectrum, "spectrum", false, "draw the PV amplitude spectrum")
	cmd.Flags().StringVar(&svg, "svg", "", "also write the portrait to an SVG file")
	return cmd
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [loop]",
		Short: "list preset loops",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loops := config.Loops()
			if len(args) == 1 {
				loops = []string{args[0]}
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Preset", "Description", "Process"})
			for _, loop := range loops {
				variants := config.ListPresets(loop)
				if len(variants) == 0 {
					return fmt.Errorf("no presets for loop %q (loops: %s)", loop, strings.Join(config.Loops(), ", "))
				}
				for _, v := range variants {
					p := config.GetPreset(loop, v)
					tw.AppendRow(table.Row{loop + "/" + v, p.Name, p.Process.Family})
				}
			}
			tw.Render()
			return nil
		},
	}
}

func liveCmd() *cobra.Command {
	var (
		lf    loopFlags
		opts  = tui.DefaultOptions()
		bound bool
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "run a loop interactively in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolve(cmd)
			if err != nil {
				return err
			}
			e, err := experiment.New(cfg)
			if err != nil {
				return err
			}
			duration := cfg.Duration
			if !bound && !cmd.Flags().Changed("time") {
				duration = 0
			}
			stream, err := e.StreamFor(duration)
			if err != nil {
				return err
			}
			opts.Title = cfg.Name
			if opts.Title == "" {
				opts.Title = process.String(e.Model())
			}
			opts.Metrics = []sim.Metric{metrics.NewIAE(), metrics.NewOvershoot()}
			return tui.Run(cmd.Context(), stream, opts)
		},
	}
	lf.bind(cmd)
	cmd.Flags().BoolVar(&bound, "bounded", false, "stop at the configured duration")
	cmd.Flags().Float64Var(&opts.SetpointStep, "sp-step", opts.SetpointStep, "setpoint change per key press")
	cmd.Flags().DurationVar(&opts.Frame, "frame", opts.Frame, "frame interval")
	cmd.Flags().IntVar(&opts.History, "history", opts.History, "points kept on screen")
	return cmd
}
