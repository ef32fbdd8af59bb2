package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "looptune",
	Short: "process control loop tuning kit",
	Long: `looptune simulates single-loop process control, tunes PID controllers
from process models and fits those models to step-test data.

Loops are described by a YAML file (looptune init) or a preset
(looptune presets). Runs are stored under --data; measurements recorded
from a broker go to the SQLite historian at --historian.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LOOPTUNE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("data", ".looptune", "run store directory")
	rootCmd.PersistentFlags().String("historian", "looptune.db", "historian database path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data"))
	_ = viper.BindPFlag("historian", rootCmd.PersistentFlags().Lookup("historian"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(plotCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(presetsCmd())
	rootCmd.AddCommand(liveCmd())
	rootCmd.AddCommand(tuneCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(identifyCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(historianCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(robustCmd())
	rootCmd.AddCommand(paramSweepCmd())
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
