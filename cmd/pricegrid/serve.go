package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pricegrid/pricegrid"
	"github.com/pricegrid/pricegrid/internal/config"
	"github.com/pricegrid/pricegrid/internal/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		envFile  string
		seedFile string
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion workers",
		Long: `Run the ingestion worker pool and stale-lock sweeper until interrupted.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  DATA_DIR               Data directory (default: ~/.pricegrid)
  DB_URL                 Database URL (default: sqlite:///{data_dir}/pricegrid.db)
  LOG_LEVEL              Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT             Log format: pretty, json (default: pretty)

  WORKER_ID              Base worker identity (default: {hostname}-{pid})
  WORKER_COUNT           Concurrent queue pollers (default: 1)
  WORKER_POLL_INTERVAL   Queue poll period (default: 1s)
  JOB_KINDS              Comma-separated claim allow-list (default: all)
  JOB_MAX_ATTEMPTS       Job attempt budget (default: 3)
  RETRY_BACKOFF_BASE     Linear retry backoff unit (default: 1m)
  STALE_LOCK_THRESHOLD   Lease age before sweep requeues (default: 15m)
  SWEEP_INTERVAL         Sweeper period (default: 1m)

  HTTP_RATE_PER_HOST     Outbound requests per second per host (default: 5)
  HTTP_BURST             Outbound burst per host (default: 5)
  HTTP_TIMEOUT           Per-request timeout (default: 30s)
  HTTP_MAX_ELAPSED       Total retry budget per fetch (default: 2m)

  PRICE_BATCH_SIZE       Observation flush bound (default: 200)
  SEED_FILE              YAML seed file applied at startup`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, seedFile, workers)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "YAML seed file declaring providers and jobs")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent queue pollers (overrides WORKER_COUNT)")

	return cmd
}

func runServe(envFile, seedFile string, workers int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if seedFile != "" {
		cfg = cfg.Apply(config.WithSeedFile(seedFile))
	}
	if workers > 0 {
		cfg = cfg.Apply(config.WithWorkerCount(workers))
	}

	logger := log.Configure(cfg)
	slogger := logger.Slog()
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting pricegrid", cfg.LogAttrs()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := pricegrid.New(ctx,
		pricegrid.WithConfig(cfg),
		pricegrid.WithLogger(slogger),
	)
	if err != nil {
		return fmt.Errorf("start client: %w", err)
	}
	defer client.Close()

	if cfg.SeedFile() != "" {
		seed, err := config.LoadSeed(cfg.SeedFile())
		if err != nil {
			return err
		}
		if err := client.ApplySeed(ctx, seed); err != nil {
			return err
		}
	}

	<-ctx.Done()
	slogger.Info("shutting down")
	return nil
}
