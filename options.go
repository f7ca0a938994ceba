package pricegrid

import (
	"log/slog"
	"time"

	"github.com/pricegrid/pricegrid/application/ingest"
	"github.com/pricegrid/pricegrid/domain/feed"
	"github.com/pricegrid/pricegrid/domain/job"
	"github.com/pricegrid/pricegrid/infrastructure/httpclient"
	"github.com/pricegrid/pricegrid/internal/config"
)

// clientConfig holds configuration for Client construction. Use
// newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	app        config.AppConfig
	logger     *slog.Logger
	httpClient *httpclient.Client
	adapters   map[job.Kind]feed.Adapter
	handlers   map[job.Kind]ingest.Handler
	noWorkers  bool
}

// newClientConfig creates a clientConfig with defaults. All defaults come
// from internal/config so the library and the CLI agree.
func newClientConfig() *clientConfig {
	return &clientConfig{
		app:      config.NewAppConfig(),
		adapters: make(map[job.Kind]feed.Adapter),
		handlers: make(map[job.Kind]ingest.Handler),
	}
}

// Option configures the Client during construction.
type Option func(*clientConfig)

// WithConfig replaces the whole application configuration, typically one
// built by config.LoadConfig from environment variables.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) { c.app = cfg }
}

// WithSQLite uses a SQLite database at the given path.
func WithSQLite(path string) Option {
	return func(c *clientConfig) { c.app = c.app.Apply(config.WithDBURL("sqlite:///" + path)) }
}

// WithPostgres uses a PostgreSQL database at the given URL.
func WithPostgres(url string) Option {
	return func(c *clientConfig) { c.app = c.app.Apply(config.WithDBURL(url)) }
}

// WithLogger sets the logger. Defaults to one built from the log config.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithHTTPClient replaces the outbound HTTP client, mostly for tests.
func WithHTTPClient(client *httpclient.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// WithWorkerCount sets the number of concurrent queue pollers.
func WithWorkerCount(n int) Option {
	return func(c *clientConfig) { c.app = c.app.Apply(config.WithWorkerCount(n)) }
}

// WithPollInterval sets the queue poll period.
func WithPollInterval(d time.Duration) Option {
	return func(c *clientConfig) { c.app = c.app.Apply(config.WithPollInterval(d)) }
}

// WithAdapter registers a feed adapter for a job kind. Jobs of that kind
// run the full ingest pipeline against it.
func WithAdapter(kind job.Kind, adapter feed.Adapter) Option {
	return func(c *clientConfig) { c.adapters[kind] = adapter }
}

// WithHandler registers a raw job handler for a kind, bypassing the feed
// pipeline.
func WithHandler(kind job.Kind, handler ingest.Handler) Option {
	return func(c *clientConfig) { c.handlers[kind] = handler }
}

// WithoutWorkers creates the Client without starting the worker pool or
// the sweeper. Used by one-shot CLI commands that only enqueue or
// inspect.
func WithoutWorkers() Option {
	return func(c *clientConfig) { c.noWorkers = true }
}
