package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pricegrid/pricegrid"
	"github.com/pricegrid/pricegrid/domain/job"
	"github.com/spf13/cobra"
)

func enqueueCmd() *cobra.Command {
	var (
		envFile     string
		priority    int
		maxAttempts int
		payloadJSON string
	)

	cmd := &cobra.Command{
		Use:   "enqueue KIND",
		Short: "Enqueue an ingestion job",
		Long: `Enqueue a job of the given kind, eligible to run immediately.

The payload is an arbitrary JSON object passed to the kind's handler, e.g.:

  pricegrid enqueue feed.json --payload '{"url":"https://feeds.example.com/catalog.json"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(envFile, args[0], priority, maxAttempts, payloadJSON)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().IntVar(&priority, "priority", 100, "Job priority; lower runs first")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget (default: JOB_MAX_ATTEMPTS)")
	cmd.Flags().StringVar(&payloadJSON, "payload", "{}", "JSON payload for the handler")

	return cmd
}

func runEnqueue(envFile, kind string, priority, maxAttempts int, payloadJSON string) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

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

	j := job.New(job.Kind(kind), priority, payload)
	if maxAttempts > 0 {
		j = j.WithMaxAttempts(maxAttempts)
	} else {
		j = j.WithMaxAttempts(cfg.JobMaxAttempts())
	}

	j, err = client.Jobs.Enqueue(ctx, j)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	fmt.Printf("enqueued job %d (%s, priority %d)\n", j.ID(), j.Kind(), j.Priority())
	return nil
}
