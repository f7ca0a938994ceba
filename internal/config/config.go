// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Defaults applied by NewAppConfig.
const (
	DefaultWorkerCount        = 1
	DefaultPollInterval       = time.Second
	DefaultJobMaxAttempts     = 3
	DefaultRetryBackoffBase   = time.Minute
	DefaultStaleLockThreshold = 15 * time.Minute
	DefaultSweepInterval      = time.Minute
	DefaultHTTPRatePerHost    = 5.0
	DefaultHTTPBurst          = 5
	DefaultHTTPTimeout        = 30 * time.Second
	DefaultHTTPMaxElapsed     = 2 * time.Minute
	DefaultPriceBatchSize     = 200
)

// AppConfig is the immutable application configuration, built once at
// startup and passed down by constructor injection.
type AppConfig struct {
	dataDir   string
	dbURL     string
	logLevel  string
	logFormat LogFormat

	workerID           string
	workerCount        int
	pollInterval       time.Duration
	jobKinds           []string
	jobMaxAttempts     int
	retryBackoffBase   time.Duration
	staleLockThreshold time.Duration
	sweepInterval      time.Duration

	httpRatePerHost float64
	httpBurst       int
	httpTimeout     time.Duration
	httpMaxElapsed  time.Duration

	priceBatchSize int
	seedFile       string
}

// NewAppConfig creates an AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := defaultDataDir()
	return AppConfig{
		dataDir:            dataDir,
		dbURL:              "sqlite:///" + filepath.Join(dataDir, "pricegrid.db"),
		logLevel:           "INFO",
		logFormat:          LogFormatPretty,
		workerID:           defaultWorkerID(),
		workerCount:        DefaultWorkerCount,
		pollInterval:       DefaultPollInterval,
		jobMaxAttempts:     DefaultJobMaxAttempts,
		retryBackoffBase:   DefaultRetryBackoffBase,
		staleLockThreshold: DefaultStaleLockThreshold,
		sweepInterval:      DefaultSweepInterval,
		httpRatePerHost:    DefaultHTTPRatePerHost,
		httpBurst:          DefaultHTTPBurst,
		httpTimeout:        DefaultHTTPTimeout,
		httpMaxElapsed:     DefaultHTTPMaxElapsed,
		priceBatchSize:     DefaultPriceBatchSize,
	}
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log verbosity level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// WorkerID returns the base worker identity used in queue leases.
func (c AppConfig) WorkerID() string { return c.workerID }

// WorkerCount returns the number of concurrent queue pollers.
func (c AppConfig) WorkerCount() int { return c.workerCount }

// PollInterval returns the queue poll period.
func (c AppConfig) PollInterval() time.Duration { return c.pollInterval }

// JobKinds returns the claim allow-list; empty means all registered kinds.
func (c AppConfig) JobKinds() []string { return append([]string(nil), c.jobKinds...) }

// JobMaxAttempts returns the default job attempt budget.
func (c AppConfig) JobMaxAttempts() int { return c.jobMaxAttempts }

// RetryBackoffBase returns the linear retry backoff unit.
func (c AppConfig) RetryBackoffBase() time.Duration { return c.retryBackoffBase }

// StaleLockThreshold returns how old a lease must be before the sweeper
// reclaims it.
func (c AppConfig) StaleLockThreshold() time.Duration { return c.staleLockThreshold }

// SweepInterval returns the sweeper run period.
func (c AppConfig) SweepInterval() time.Duration { return c.sweepInterval }

// HTTPRatePerHost returns the sustained outbound requests per second per
// host.
func (c AppConfig) HTTPRatePerHost() float64 { return c.httpRatePerHost }

// HTTPBurst returns the outbound token bucket burst per host.
func (c AppConfig) HTTPBurst() int { return c.httpBurst }

// HTTPTimeout returns the per-request timeout.
func (c AppConfig) HTTPTimeout() time.Duration { return c.httpTimeout }

// HTTPMaxElapsed returns the total retry budget per fetch.
func (c AppConfig) HTTPMaxElapsed() time.Duration { return c.httpMaxElapsed }

// PriceBatchSize returns the observation flush bound.
func (c AppConfig) PriceBatchSize() int { return c.priceBatchSize }

// SeedFile returns the optional YAML seed file path.
func (c AppConfig) SeedFile() string { return c.seedFile }

// EnsureDataDir creates the data directory if needed.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption mutates an AppConfig during construction.
type AppConfigOption func(*AppConfig)

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.dataDir = dir }
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithWorkerID sets the base worker identity.
func WithWorkerID(id string) AppConfigOption {
	return func(c *AppConfig) { c.workerID = id }
}

// WithWorkerCount sets the poller count.
func WithWorkerCount(n int) AppConfigOption {
	return func(c *AppConfig) { c.workerCount = n }
}

// WithPollInterval sets the queue poll period.
func WithPollInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.pollInterval = d }
}

// WithJobKinds sets the claim allow-list.
func WithJobKinds(kinds []string) AppConfigOption {
	return func(c *AppConfig) { c.jobKinds = append([]string(nil), kinds...) }
}

// WithJobMaxAttempts sets the default attempt budget.
func WithJobMaxAttempts(n int) AppConfigOption {
	return func(c *AppConfig) { c.jobMaxAttempts = n }
}

// WithRetryBackoffBase sets the linear retry backoff unit.
func WithRetryBackoffBase(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.retryBackoffBase = d }
}

// WithStaleLockThreshold sets the stale lease threshold.
func WithStaleLockThreshold(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.staleLockThreshold = d }
}

// WithSweepInterval sets the sweeper run period.
func WithSweepInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.sweepInterval = d }
}

// WithHTTPRatePerHost sets the outbound rate limit.
func WithHTTPRatePerHost(rate float64) AppConfigOption {
	return func(c *AppConfig) { c.httpRatePerHost = rate }
}

// WithHTTPBurst sets the outbound burst.
func WithHTTPBurst(n int) AppConfigOption {
	return func(c *AppConfig) { c.httpBurst = n }
}

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.httpTimeout = d }
}

// WithHTTPMaxElapsed sets the fetch retry budget.
func WithHTTPMaxElapsed(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.httpMaxElapsed = d }
}

// WithPriceBatchSize sets the observation flush bound.
func WithPriceBatchSize(n int) AppConfigOption {
	return func(c *AppConfig) { c.priceBatchSize = n }
}

// WithSeedFile sets the YAML seed file path.
func WithSeedFile(path string) AppConfigOption {
	return func(c *AppConfig) { c.seedFile = path }
}

// NewAppConfigWithOptions creates an AppConfig with defaults and applies
// the given options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	cfg := NewAppConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Apply returns a copy with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns the config as slog attributes with secrets masked,
// for the startup banner.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("worker_id", c.workerID),
		slog.Int("worker_count", c.workerCount),
		slog.Duration("poll_interval", c.pollInterval),
		slog.String("job_kinds", strings.Join(c.jobKinds, ",")),
		slog.Int("price_batch_size", c.priceBatchSize),
	}
}

// maskedDBURL hides credentials in the database URL.
func (c AppConfig) maskedDBURL() string {
	url := c.dbURL
	at := strings.LastIndex(url, "@")
	if at == -1 {
		return url
	}
	scheme := strings.Index(url, "://")
	if scheme == -1 {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pricegrid"
	}
	return filepath.Join(home, ".pricegrid")
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
