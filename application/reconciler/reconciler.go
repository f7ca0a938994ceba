// Package reconciler batches price observations and keeps the derived
// current-price rows converged with the observation history.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pricegrid/pricegrid/domain/pricing"
)

// DefaultBatchSize bounds how many observations one flush writes.
const DefaultBatchSize = 200

// Summary reports what one reconciler run wrote. Failed batches are
// dropped, not retried here — the job-level retry re-ingests the feed.
type Summary struct {
	Batches       int
	FailedBatches int
	RowsWritten   int
}

// Failed reports whether every batch of a non-empty run failed.
func (s Summary) Failed() bool {
	return s.Batches > 0 && s.FailedBatches == s.Batches
}

// Reconciler accumulates observations for one reporting agent and writes
// them in bounded batches: an append-only history insert followed by one
// conditional current-price upsert per batch. Not safe for concurrent
// use; each job execution owns one.
type Reconciler struct {
	store         pricing.Store
	agent         string
	agentPriority int
	batchSize     int
	logger        *slog.Logger

	pending []pricing.Observation
	summary Summary
}

// New creates a Reconciler reporting as the given agent. batchSize <= 0
// selects DefaultBatchSize.
func New(store pricing.Store, agent string, agentPriority int, batchSize int, logger *slog.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reconciler{
		store:         store,
		agent:         agent,
		agentPriority: agentPriority,
		batchSize:     batchSize,
		logger:        logger.With("component", "reconciler", "agent", agent),
	}
}

// Add queues one observation, flushing a full batch when the bound is
// reached.
func (r *Reconciler) Add(ctx context.Context, obs pricing.Observation) error {
	r.pending = append(r.pending, obs)
	if len(r.pending) >= r.batchSize {
		return r.flushPending(ctx)
	}
	return nil
}

// Flush writes any remaining partial batch and returns the run summary.
func (r *Reconciler) Flush(ctx context.Context) (Summary, error) {
	if err := r.flushPending(ctx); err != nil {
		return r.summary, err
	}
	if r.summary.Failed() {
		return r.summary, fmt.Errorf("all %d observation batches failed", r.summary.Batches)
	}
	return r.summary, nil
}

func (r *Reconciler) flushPending(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = nil
	r.summary.Batches++

	if err := r.writeBatch(ctx, batch); err != nil {
		// A failed batch is reported and skipped so one bad batch cannot
		// starve the rest of a large feed.
		r.summary.FailedBatches++
		r.logger.Error("observation batch failed", "size", len(batch), "error", err)
		return nil
	}
	r.summary.RowsWritten += len(batch)
	r.logger.Debug("observation batch written", "size", len(batch))
	return nil
}

func (r *Reconciler) writeBatch(ctx context.Context, batch []pricing.Observation) error {
	if _, err := r.store.InsertObservations(ctx, batch); err != nil {
		return err
	}

	candidates := make([]pricing.CurrentPrice, 0, len(batch))
	for _, obs := range batch {
		candidates = append(candidates, pricing.CurrentPrice{
			OfferJurisdictionID: obs.OfferJurisdictionID,
			AmountMinor:         obs.AmountMinor,
			RecordedAt:          obs.RecordedAt,
			Agent:               r.agent,
			AgentPriority:       r.agentPriority,
		})
	}
	return r.store.UpsertCurrentPrices(ctx, candidates)
}
