package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/guptarohit/asciigraph"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/looptune/internal/control"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/historian"
	"github.com/san-kum/looptune/internal/identify"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/storage"
	"github.com/san-kum/looptune/internal/tuning"
)

type identifyFlags struct {
	csv     string
	tCol    string
	uCol    string
	yCol    string
	session int64
	opTag   string
	pvTag   string

	family string
	save   bool
	method string
	form   string
	speed  float64
	chart  bool
	leak   bool
}

func identifyCmd() *cobra.Command {
	var f identifyFlags
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "fit process models to a step test",
		Long: `identify finds the dominant OP step in a record and fits FOPDT, SOPDT
and integrating models to the PV response.

The record comes from a CSV file (--csv, e.g. an exported run) or from a
historian session (--session with --op and --pv tags).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentify(cmd.Context(), f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.csv, "csv", "", "CSV file holding the record")
	fs.StringVar(&f.tCol, "t", "t", "time column")
	fs.StringVar(&f.uCol, "u", "op", "input (OP) column")
	fs.StringVar(&f.yCol, "y", "pv", "output (PV) column")
	fs.Int64Var(&f.session, "session", 0, "historian session")
	fs.StringVar(&f.opTag, "op", "", "OP tag (historian)")
	fs.StringVar(&f.pvTag, "pv", "", "PV tag (historian)")
	fs.StringVar(&f.family, "family", "all", "model family (fopdt, sopdt, integrator, all)")
	fs.BoolVar(&f.save, "save", false, "store the step test and fits in the historian")
	fs.StringVar(&f.method, "method", "", "also suggest gains with this rule")
	fs.StringVar(&f.form, "form", "PI", "form for suggested gains (P, PI, PID)")
	fs.Float64Var(&f.speed, "speed", -1, "closed-loop speed for suggested gains (negative = recommended)")
	fs.BoolVar(&f.chart, "plot", false, "draw measured and fitted PV")
	fs.BoolVar(&f.leak, "leak", false, "also fit a leak for integrating processes")
	return cmd
}

func runIdentify(ctx context.Context, f identifyFlags) error {
	log := newLogger()
	if (f.csv == "") == (f.session == 0) {
		return fmt.Errorf("give exactly one of --csv or --session")
	}
	families, err := fitFamilies(f.family)
	if err != nil {
		return err
	}

	var (
		rec identify.StepTestRecord
		db  *historian.DB
	)
	if f.session != 0 || f.save {
		if db, err = historian.Open(viper.GetString("historian"), log); err != nil {
			return err
		}
		defer db.Close()
	}
	if f.csv != "" {
		if rec, err = csvStepTest(f); err != nil {
			return err
		}
	} else {
		if f.opTag == "" || f.pvTag == "" {
			return fmt.Errorf("--session needs --op and --pv")
		}
		if rec, err = db.StepTest(ctx, f.session, f.opTag, f.pvTag, identify.DefaultSegmentOptions()); err != nil {
			return err
		}
	}

	opts := identify.DefaultOptions()
	opts.FitLeak = f.leak
	results := make([]identify.FitResult, len(families))
	fitErrs := make([]error, len(families))
	g, gctx := errgroup.WithContext(ctx)
	for i, fam := range families {
		g.Go(func() error {
			results[i], fitErrs[i] = identify.Identify(gctx, rec, fam, opts)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var fits []identify.FitResult
	for i, err := range fitErrs {
		if err != nil {
			if len(families) == 1 {
				return err
			}
			log.Warn("fit failed", slog.String("family", string(families[i])), slog.Any("error", err))
			continue
		}
		fits = append(fits, results[i])
	}
	if len(fits) == 0 {
		return fmt.Errorf("%w: no family fitted", dynamo.ErrFitDidNotConverge)
	}
	sort.SliceStable(fits, func(i, j int) bool { return fits[i].R2 > fits[j].R2 })

	if f.save {
		session := f.session
		if session == 0 {
			if session, err = db.NewSession(ctx, "identify "+f.csv); err != nil {
				return err
			}
			if err := db.EndSession(ctx, session); err != nil {
				return err
			}
		}
		opTag, pvTag := f.opTag, f.pvTag
		if f.csv != "" {
			opTag, pvTag = f.uCol, f.yCol
		}
		id, err := db.SaveStepTest(ctx, session, opTag, pvTag, rec)
		if err != nil {
			return err
		}
		for _, fit := range fits {
			if err := db.SaveFit(ctx, id, fit); err != nil {
				return err
			}
		}
		log.Info("fits saved", slog.Int64("step_test", id), slog.Int("fits", len(fits)))
	}

	var suggested *tuning.Gains
	if f.method != "" {
		m, err := tuning.ParseMethod(f.method)
		if err != nil {
			return err
		}
		form, err := control.ParseForm(f.form)
		if err != nil {
			return err
		}
		g, err := tuning.Tune(fits[0].Model, m, f.speed, form)
		if err != nil {
			return err
		}
		suggested = &g
	}

	if viper.GetBool("json") {
		res := map[string]any{"step_test": rec, "fits": fits}
		if suggested != nil {
			res["gains"] = suggested
		}
		return printJSON(res)
	}

	fmt.Printf("step at t=%.4g: OP %.4g -> %.4g, PV %.4g -> %.4g (%d samples)\n",
		rec.StepTime(), rec.UPre, rec.UPost, rec.PreMean, rec.PostMean, len(rec.T))
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Family", "Model", "R2", "RMSE", "Status", "Evals"})
	for _, fit := range fits {
		tw.AppendRow(table.Row{fit.Family, process.String(fit.Model), fmt.Sprintf("%.4f", fit.R2), num(fit.RMSE), fit.Status, fit.Evaluations})
	}
	tw.Render()
	if suggested != nil {
		fmt.Printf("%s on %s: %s\n", f.method, fits[0].Family, *suggested)
	}
	if f.chart && len(fits[0].Predicted) == len(rec.Y) {
		fmt.Println()
		fmt.Println(asciigraph.PlotMany([][]float64{rec.Y, fits[0].Predicted},
			asciigraph.Height(12),
			asciigraph.Width(80),
			asciigraph.Caption("PV measured / "+string(fits[0].Family)+" fit"),
			asciigraph.SeriesColors(asciigraph.LimeGreen, asciigraph.DeepSkyBlue),
			asciigraph.SeriesLegends("measured", "fit"),
		))
	}
	return nil
}

func fitFamilies(s string) ([]process.Family, error) {
	if s == "all" {
		return []process.Family{process.FamilyFOPDT, process.FamilySOPDT, process.FamilyIntegrator}, nil
	}
	f, err := process.ParseFamily(s)
	if err != nil {
		return nil, err
	}
	return []process.Family{f}, nil
}

func csvStepTest(f identifyFlags) (identify.StepTestRecord, error) {
	file, err := os.Open(f.csv)
	if err != nil {
		return identify.StepTestRecord{}, err
	}
	defer file.Close()
	cols, err := storage.ReadColumns(file, f.tCol, f.uCol, f.yCol)
	if err != nil {
		return identify.StepTestRecord{}, err
	}
	return identify.Segment(cols[0], cols[1], cols[2], identify.DefaultSegmentOptions())
}
