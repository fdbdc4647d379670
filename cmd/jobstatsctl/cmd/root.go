package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"jobstats/internal/backend"
	"jobstats/internal/config"
	"jobstats/internal/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

// Overridden in tests.
var (
	loadConfig  = config.Load
	openBackend = backend.Open
)

var rootCmd = &cobra.Command{
	Use:   "jobstatsctl",
	Short: "jobstatsctl inspects and manages job statistics",
	Long: `jobstatsctl is the command-line interface for jobstats.

jobstats records one row per queued job and one row per execution attempt,
with the time each attempt waited in the queue and the time it spent running.

Common workflows:

  Create or upgrade the PostgreSQL schema:
    jobstatsctl migrate

  Show a job and all of its attempts:
    jobstatsctl status <job-uuid>

  Enqueue a tracked job that fails twice before succeeding:
    jobstatsctl enqueue sleep --millis 200 --fail-attempts 2

Configuration:
  Settings are read from jobstats.yaml (or --config) and the environment:
    JOBSTATS_STORE   Statistics store: postgres, redis or memory
    DATABASE_URL     PostgreSQL connection string
    REDIS_ADDR       Redis address for the redis store
    QUEUE_DRIVER     Job queue backend: database or memory`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// withBackend loads configuration, opens the configured stores and hands
// them to fn. The stores are closed when fn returns.
func withBackend(cmd *cobra.Command, fn func(context.Context, *config.Config, *backend.Backend) error) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackend(ctx, cfg, cliLogger(cfg))
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, cfg, b)
}

func cliLogger(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel
	if level == "" || level == "info" {
		level = "warn"
	}
	return logger.New(level)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./jobstats.yaml)")
}
