package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pricegrid/pricegrid"
	"github.com/pricegrid/pricegrid/domain/job"
	"github.com/spf13/cobra"
)

func jobsCmd() *cobra.Command {
	var (
		envFile string
		status  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List ingestion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobs(envFile, status, limit)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: queued, running, done, failed")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to list")

	return cmd
}

func runJobs(envFile, status string, limit int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := pricegrid.New(ctx,
		pricegrid.WithConfig(cfg),
		pricegrid.WithoutWorkers(),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	jobs, err := client.Jobs.List(ctx, job.Status(status), limit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPRIO\tATTEMPTS\tSCHEDULED\tLOCKED BY\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d/%d\t%s\t%s\t%s\n",
			j.ID(), j.Kind(), j.Status(), j.Priority(),
			j.Attempts(), j.MaxAttempts(),
			j.ScheduledAt().Format(time.RFC3339),
			j.LockedBy(),
			truncate(j.LastError(), 60),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
