package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricegrid/pricegrid/application/reconciler"
	"github.com/pricegrid/pricegrid/application/resolver"
	"github.com/pricegrid/pricegrid/domain/catalog"
	"github.com/pricegrid/pricegrid/domain/feed"
	"github.com/pricegrid/pricegrid/domain/pricing"
)

// FeedHandler executes one feed ingestion job: fetch through the adapter,
// resolve every item and quote to canonical ids, and hand the resulting
// observations to the reconciler. Resolver and reconciler are created per
// execution so their caches and batch state never leak across jobs.
type FeedHandler struct {
	adapter   feed.Adapter
	catalog   catalog.Store
	prices    pricing.Store
	batchSize int
	logger    *slog.Logger
}

// NewFeedHandler creates a FeedHandler for one adapter. batchSize <= 0
// selects the reconciler default.
func NewFeedHandler(adapter feed.Adapter, catalogStore catalog.Store, priceStore pricing.Store, batchSize int, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		adapter:   adapter,
		catalog:   catalogStore,
		prices:    priceStore,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Execute implements Handler. The adapter's transient/permanent
// classification is preserved in the returned error chain so the pool's
// retry policy can act on it.
func (h *FeedHandler) Execute(ctx context.Context, payload map[string]any) error {
	result, err := h.adapter.Fetch(ctx, payload)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}
	if result.Provider.Slug == "" {
		// Conditional fetch saw nothing new.
		h.logger.Info("feed unchanged, nothing to ingest")
		return nil
	}

	res := resolver.New(h.catalog, h.logger)
	provider, err := res.ResolveProvider(ctx, result.Provider)
	if err != nil {
		return err
	}

	logger := h.logger.With(slog.String("provider", provider.Slug))
	rec := reconciler.New(h.prices, provider.Slug, provider.AgentPriority, h.batchSize, h.logger)

	skipped := 0
	for _, item := range result.Items {
		if item.ExternalID == "" || item.ProductSlug == "" {
			// A malformed item is the provider's bug, not ours; skip it
			// rather than failing the whole feed.
			skipped++
			logger.Warn("skipping malformed feed item",
				slog.String("external_id", item.ExternalID),
				slog.String("product_slug", item.ProductSlug),
			)
			continue
		}

		resolved, err := res.ResolveItem(ctx, provider, item)
		if err != nil {
			return err
		}

		for _, q := range item.Quotes {
			offerJurisdictionID, err := res.ResolveQuote(ctx, resolved.OfferID, q)
			if err != nil {
				return err
			}

			recordedAt := q.RecordedAt
			if recordedAt.IsZero() {
				recordedAt = time.Now().UTC()
			}
			obs := pricing.Observation{
				OfferJurisdictionID: offerJurisdictionID,
				ProviderItemID:      &resolved.ProviderItemID,
				RecordedAt:          recordedAt,
				AmountMinor:         q.AmountMinor,
				TaxInclusive:        q.TaxInclusive,
				Meta:                q.Meta,
			}
			if err := rec.Add(ctx, obs); err != nil {
				return err
			}
		}
	}

	summary, err := rec.Flush(ctx)
	logger.Info("feed ingested",
		slog.Int("items", len(result.Items)),
		slog.Int("skipped", skipped),
		slog.Int("batches", summary.Batches),
		slog.Int("failed_batches", summary.FailedBatches),
		slog.Int("rows_written", summary.RowsWritten),
		slog.Int("cache_size", res.CacheSize()),
	)
	return err
}
