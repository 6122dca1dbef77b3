// Package cli implements the clubatlas command line interface: submission
// intake, review decisions, buffer reconciliation, snapshot maintenance, and
// configuration management.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"clubatlas/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clubatlas",
	Short: "Club directory submission pipeline",
	Long: `clubatlas manages a student club directory: durable submission intake,
review decisions, and a read-optimized JSON snapshot kept in sync with the
authoritative store.`,
	PersistentPreRunE: bootstrap,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

func bootstrap(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)
	return nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default ./clubatlas.yaml)")

	rootCmd.AddCommand(
		getSubmitCmd(),
		getApproveCmd(),
		getRejectCmd(),
		getListCmd(),
		getSweepCmd(),
		getRebuildCmd(),
		getMigrateCmd(),
		getConfigCmd(),
	)
}
