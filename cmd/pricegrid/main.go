// Package main is the entry point for the pricegrid CLI.
package main

import (
	"fmt"
	"os"

	"github.com/pricegrid/pricegrid/internal/config"
	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricegrid",
		Short: "Pricegrid catalog and price ingestion service",
		Long:  `Pricegrid ingests storefront catalog and price feeds into a canonical model: durable jobs, idempotent entity resolution, and an append-only price history with a converging current-price view.`,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(enqueueCmd())
	cmd.AddCommand(jobsCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
