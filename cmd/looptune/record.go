package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/looptune/internal/acquire"
	"github.com/san-kum/looptune/internal/dynamo"
	"github.com/san-kum/looptune/internal/historian"
	"github.com/san-kum/looptune/internal/process"
	"github.com/san-kum/looptune/internal/storage"
)

type recordFlags struct {
	source   string
	brokers  []string
	topics   []string
	group    string
	clientID string
	qos      int
	username string
	password string
	note     string
	limit    time.Duration
	batch    int
}

func recordCmd() *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "record",
		Short: "record live measurements from a broker into the historian",
		Long: `record subscribes to MQTT topics or a Kafka topic and writes every
reading to a new historian session until interrupted (or --for elapses).

Payloads are JSON: {"tag": "FIC101.PV", "ts": "2024-05-01T10:00:00Z",
"value": 42.1, "quality": 192}. A missing tag falls back to the last MQTT
topic level or the Kafka message key; a missing ts is the receive time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.source, "source", "mqtt", "broker type (mqtt, kafka)")
	fs.StringSliceVar(&f.brokers, "broker", []string{"tcp://localhost:1883"}, "broker address(es)")
	fs.StringSliceVar(&f.topics, "topic", []string{"plant/+/+"}, "topic filter(s); kafka reads the first")
	fs.StringVar(&f.group, "group", "", "kafka consumer group")
	fs.StringVar(&f.clientID, "client-id", "", "mqtt client id")
	fs.IntVar(&f.qos, "qos", 1, "mqtt qos (0, 1, 2)")
	fs.StringVar(&f.username, "username", "", "mqtt username")
	fs.StringVar(&f.password, "password", "", "mqtt password")
	fs.StringVar(&f.note, "note", "", "session note")
	fs.DurationVar(&f.limit, "for", 0, "stop after this long (0 = until interrupted)")
	fs.IntVar(&f.batch, "batch", historian.DefaultWriterOptions().BatchSize, "historian insert batch size")
	return cmd
}

func newSource(f recordFlags, log *slog.Logger) (acquire.Source, error) {
	switch f.source {
	case "mqtt":
		if len(f.brokers) != 1 {
			return nil, fmt.Errorf("mqtt takes one --broker, got %d", len(f.brokers))
		}
		if f.qos < 0 || f.qos > 2 {
			return nil, fmt.Errorf("mqtt qos %d out of range", f.qos)
		}
		return acquire.NewMQTTSource(acquire.MQTTConfig{
			Broker:   f.brokers[0],
			ClientID: f.clientID,
			Topics:   f.topics,
			QoS:      byte(f.qos),
			Username: f.username,
			Password: f.password,
		}, log)
	case "kafka":
		if len(f.topics) == 0 {
			return nil, errors.New("kafka needs --topic")
		}
		return acquire.NewKafkaSource(acquire.KafkaConfig{
			Brokers: f.brokers,
			Topic:   f.topics[0],
			GroupID: f.group,
		}, log)
	}
	return nil, fmt.Errorf("unknown source %q (mqtt, kafka)", f.source)
}

func runRecord(ctx context.Context, f recordFlags) error {
	log := newLogger()
	src, err := newSource(f, log)
	if err != nil {
		return err
	}
	defer src.Close()

	db, err := historian.Open(viper.GetString("historian"), log)
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := db.NewSession(ctx, f.note)
	if err != nil {
		return err
	}
	w := db.NewWriter(session, historian.WriterOptions{BatchSize: f.batch})

	if f.limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.limit)
		defer cancel()
	}

	// The channel is never closed: broker callbacks may still send after
	// Run returns.
	readings := make(chan acquire.Reading, 1024)
	write := func(r acquire.Reading) {
		if err := w.Write(r.Tag, r.Sample); errors.Is(err, historian.ErrQueueFull) {
			log.Warn("historian queue full, sample dropped", slog.String("tag", r.Tag))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return src.Run(gctx, readings) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case r := <-readings:
				write(r)
			}
		}
	})
	runErr := g.Wait()

drain:
	for {
		select {
		case r := <-readings:
			write(r)
		default:
			break drain
		}
	}

	closeErr := w.Close()
	// The session is closed on a context that outlives the interrupt.
	endErr := db.EndSession(context.WithoutCancel(ctx), session)

	written, dropped := w.Stats()
	log.Info("recording stopped",
		slog.Int64("session", session),
		slog.Int("written", written),
		slog.Int("dropped", dropped))
	fmt.Printf("session %d: %d samples written, %d dropped\n", session, written, dropped)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	return errors.Join(closeErr, endErr)
}

func historianCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "historian",
		Short: "inspect and load the historian database",
	}
	cmd.AddCommand(historianSessionsCmd(), historianTagsCmd(), historianFitsCmd(), historianImportCmd())
	return cmd
}

func openHistorian() (*historian.DB, error) {
	return historian.Open(viper.GetString("historian"), newLogger())
}

func historianSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "list recording sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistorian()
			if err != nil {
				return err
			}
			defer db.Close()
			sessions, err := db.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(sessions)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Started", "Ended", "Note"})
			for _, s := range sessions {
				ended := "open"
				if s.Ended != nil {
					ended = s.Ended.Local().Format(time.DateTime)
				}
				tw.AppendRow(table.Row{s.ID, s.Started.Local().Format(time.DateTime), ended, s.Note})
			}
			tw.Render()
			return nil
		},
	}
}

func historianTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "list tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistorian()
			if err != nil {
				return err
			}
			defer db.Close()
			tags, err := db.Tags(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(tags)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Role", "EU"})
			for _, t := range tags {
				tw.AppendRow(table.Row{t.ID, t.Name, t.Role, t.EU})
			}
			tw.Render()
			return nil
		},
	}
}

func historianFitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fits [step_test_id]",
		Short: "list stored model fits, best first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				v, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("bad step test id %q: %w", args[0], err)
				}
				id = v
			}
			db, err := openHistorian()
			if err != nil {
				return err
			}
			defer db.Close()
			fits, err := db.Fits(cmd.Context(), id)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(fits)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Fit", "Model", "R2", "RMSE", "Status", "Created"})
			for _, f := range fits {
				model := string(f.Family)
				if f.Model != nil {
					model = process.String(f.Model)
				}
				tw.AppendRow(table.Row{f.ID, model, fmt.Sprintf("%.4f", f.R2), num(f.RMSE), f.Status, f.CreatedAt.Local().Format(time.DateTime)})
			}
			tw.Render()
			return nil
		},
	}
}

func historianImportCmd() *cobra.Command {
	var (
		tCol    string
		columns []string
		start   string
		note    string
	)
	cmd := &cobra.Command{
		Use:   "import [file.csv]",
		Short: "import CSV columns as tags of a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t0 := time.Now().UTC()
			if start != "" {
				v, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("bad --start: %w", err)
				}
				t0 = v
			}
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			cols, err := storage.ReadColumns(file, append([]string{tCol}, columns...)...)
			if err != nil {
				return err
			}

			db, err := openHistorian()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			if note == "" {
				note = "import " + args[0]
			}
			session, err := db.NewSession(ctx, note)
			if err != nil {
				return err
			}
			for i, tag := range columns {
				samples := make([]dynamo.Sample, len(cols[0]))
				for j, t := range cols[0] {
					samples[j] = dynamo.Sample{
						Time:    t0.Add(time.Duration(t * float64(time.Second))),
						Value:   cols[i+1][j],
						Quality: dynamo.QualityGood,
					}
				}
				if err := db.WriteSamples(ctx, session, tag, samples); err != nil {
					return err
				}
			}
			if err := db.EndSession(ctx, session); err != nil {
				return err
			}
			fmt.Printf("session %d: %d rows of %v\n", session, len(cols[0]), columns)
			return nil
		},
	}
	cmd.Flags().StringVar(&tCol, "t", "t", "time column (seconds)")
	cmd.Flags().StringSliceVar(&columns, "columns", []string{"op", "pv"}, "columns to import as tags")
	cmd.Flags().StringVar(&start, "start", "", "time of t=0 (RFC3339, default now)")
	cmd.Flags().StringVar(&note, "note", "", "session note")
	return cmd
}
