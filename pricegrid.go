// Package pricegrid provides a library for ingesting storefront catalog
// and price data into a canonical model: a durable job queue with a
// bounded worker pool, idempotent entity resolution, append-only price
// history with a converging current-price view, and a rate-limited
// conditional HTTP client for feed adapters.
//
// Basic usage:
//
//	client, err := pricegrid.New(ctx,
//	    pricegrid.WithSQLite(".pricegrid/data.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Enqueue a feed ingestion job
//	j, err := client.Enqueue(ctx, feedjson.Kind, 100, map[string]any{
//	    "url": "https://feeds.example.com/catalog.json",
//	})
//
// The worker pool starts automatically on creation unless
// WithoutWorkers() is given.
package pricegrid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pricegrid/pricegrid/application/ingest"
	"github.com/pricegrid/pricegrid/domain/catalog"
	"github.com/pricegrid/pricegrid/domain/job"
	"github.com/pricegrid/pricegrid/domain/pricing"
	"github.com/pricegrid/pricegrid/infrastructure/feedjson"
	"github.com/pricegrid/pricegrid/infrastructure/httpclient"
	"github.com/pricegrid/pricegrid/infrastructure/persistence"
	"github.com/pricegrid/pricegrid/internal/config"
	"github.com/pricegrid/pricegrid/internal/database"
	"github.com/pricegrid/pricegrid/internal/log"
)

// Client is the main entry point for the pricegrid library.
type Client struct {
	// Public store fields (direct access)
	Catalog catalog.Store
	Prices  pricing.Store
	Jobs    job.Store

	// HTTP is the shared outbound client; adapters built outside this
	// package should use it so per-host rate limits hold process-wide.
	HTTP *httpclient.Client

	// Registry dispatches job kinds to handlers.
	Registry *ingest.Registry

	db      database.Database
	caps    persistence.Capabilities
	pool    *ingest.Pool
	sweeper *ingest.Sweeper
	config  config.AppConfig
	logger  *slog.Logger
	started bool
}

// New creates a Client, runs migrations, registers handlers, and starts
// the worker pool and stale-lock sweeper.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	app := cfg.app

	logger := cfg.logger
	if logger == nil {
		logger = log.NewLogger(app).Slog()
	}

	if strings.HasPrefix(app.DBURL(), "sqlite:///") && !strings.Contains(app.DBURL(), ":memory:") {
		if err := app.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := database.New(ctx, app.DBURL())
	if err != nil {
		return nil, err
	}
	if strings.Contains(app.DBURL(), ":memory:") {
		// Every pooled connection to :memory: is its own database; pin
		// the pool so the schema survives.
		if err := db.ConfigurePool(1, 1, 0); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure pool: %w", err)
		}
	}
	if err := persistence.AutoMigrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	caps := persistence.ProbeCapabilities(db)

	catalogStore := persistence.NewCatalogStore(db, caps)
	priceStore := persistence.NewPriceStore(db, caps)
	jobStore := persistence.NewJobStore(db)

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = httpclient.New(httpclient.Config{
			RatePerHost: app.HTTPRatePerHost(),
			Burst:       app.HTTPBurst(),
			Timeout:     app.HTTPTimeout(),
			MaxElapsed:  app.HTTPMaxElapsed(),
		}, logger)
	}

	registry := ingest.NewRegistry()
	registry.Register(feedjson.Kind, ingest.NewFeedHandler(
		feedjson.New(httpClient, logger),
		catalogStore, priceStore, app.PriceBatchSize(), logger,
	))
	for kind, adapter := range cfg.adapters {
		registry.Register(kind, ingest.NewFeedHandler(
			adapter, catalogStore, priceStore, app.PriceBatchSize(), logger,
		))
	}
	for kind, handler := range cfg.handlers {
		registry.Register(kind, handler)
	}

	kinds := make([]job.Kind, 0, len(app.JobKinds()))
	for _, k := range app.JobKinds() {
		kinds = append(kinds, job.Kind(k))
	}
	pool := ingest.NewPool(jobStore, registry, ingest.PoolConfig{
		WorkerID:     app.WorkerID(),
		Count:        app.WorkerCount(),
		PollInterval: app.PollInterval(),
		Kinds:        kinds,
		BackoffBase:  app.RetryBackoffBase(),
	}, logger)
	sweeper := ingest.NewSweeper(jobStore, app.SweepInterval(), app.StaleLockThreshold(), logger)

	client := &Client{
		Catalog:  catalogStore,
		Prices:   priceStore,
		Jobs:     jobStore,
		HTTP:     httpClient,
		Registry: registry,
		db:       db,
		caps:     caps,
		pool:     pool,
		sweeper:  sweeper,
		config:   app,
		logger:   logger,
	}

	if !cfg.noWorkers {
		pool.Start(ctx)
		sweeper.Start(ctx)
		client.started = true
	}

	return client, nil
}

// Close stops the workers and closes the database.
func (c *Client) Close() error {
	if c.started {
		c.sweeper.Stop()
		c.pool.Stop()
		c.started = false
	}
	return c.db.Close()
}

// Config returns the effective application configuration.
func (c *Client) Config() config.AppConfig { return c.config }

// Capabilities returns the persistence capabilities probed at startup.
func (c *Client) Capabilities() persistence.Capabilities { return c.caps }

// Enqueue adds a job with the configured default attempt budget. Lower
// priority values run first.
func (c *Client) Enqueue(ctx context.Context, kind job.Kind, priority int, payload map[string]any) (job.Job, error) {
	j := job.New(kind, priority, payload).WithMaxAttempts(c.config.JobMaxAttempts())
	return c.Jobs.Enqueue(ctx, j)
}

// EnqueueAt adds a job that becomes eligible at the given time.
func (c *Client) EnqueueAt(ctx context.Context, kind job.Kind, priority int, payload map[string]any, at time.Time) (job.Job, error) {
	j := job.New(kind, priority, payload).
		WithMaxAttempts(c.config.JobMaxAttempts()).
		WithScheduledAt(at.UTC())
	return c.Jobs.Enqueue(ctx, j)
}

// ApplySeed ensures the seed's providers and enqueues its jobs. Providers
// are idempotent; jobs are enqueued every call, so seeds are meant for
// one-shot startup application.
func (c *Client) ApplySeed(ctx context.Context, seed config.Seed) error {
	for _, p := range seed.Providers {
		if _, err := c.Catalog.EnsureProvider(ctx, catalog.Provider{
			Name:          p.Name,
			Kind:          p.Kind,
			Slug:          p.Slug,
			AgentPriority: p.AgentPriority,
		}); err != nil {
			return fmt.Errorf("seed provider %s: %w", p.Slug, err)
		}
	}

	for _, sj := range seed.Jobs {
		j := job.New(job.Kind(sj.Kind), sj.Priority, sj.Payload)
		if sj.MaxAttempts > 0 {
			j = j.WithMaxAttempts(sj.MaxAttempts)
		} else {
			j = j.WithMaxAttempts(c.config.JobMaxAttempts())
		}
		if _, err := c.Jobs.Enqueue(ctx, j); err != nil {
			return fmt.Errorf("seed job %s: %w", sj.Kind, err)
		}
	}

	c.logger.Info("seed applied",
		slog.Int("providers", len(seed.Providers)),
		slog.Int("jobs", len(seed.Jobs)),
	)
	return nil
}
