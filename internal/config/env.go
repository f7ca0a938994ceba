package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration. Field names map to
// plain environment variables; durations use Go syntax ("30s", "15m").
type EnvConfig struct {
	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.pricegrid
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/pricegrid.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// WorkerID is the base worker identity written into queue leases.
	// Env: WORKER_ID
	// Default: {hostname}-{pid}
	WorkerID string `envconfig:"WORKER_ID"`

	// WorkerCount is the number of concurrent queue pollers.
	// Env: WORKER_COUNT (default: 1)
	WorkerCount int `envconfig:"WORKER_COUNT" default:"1"`

	// WorkerPollInterval is the queue poll period.
	// Env: WORKER_POLL_INTERVAL (default: 1s)
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"1s"`

	// JobKinds is a comma-separated claim allow-list. Empty claims all
	// registered kinds.
	// Env: JOB_KINDS
	JobKinds string `envconfig:"JOB_KINDS"`

	// JobMaxAttempts is the default job attempt budget.
	// Env: JOB_MAX_ATTEMPTS (default: 3)
	JobMaxAttempts int `envconfig:"JOB_MAX_ATTEMPTS" default:"3"`

	// RetryBackoffBase is the linear retry backoff unit.
	// Env: RETRY_BACKOFF_BASE (default: 1m)
	RetryBackoffBase time.Duration `envconfig:"RETRY_BACKOFF_BASE" default:"1m"`

	// StaleLockThreshold is how old a running job's lease must be before
	// the sweeper requeues it.
	// Env: STALE_LOCK_THRESHOLD (default: 15m)
	StaleLockThreshold time.Duration `envconfig:"STALE_LOCK_THRESHOLD" default:"15m"`

	// SweepInterval is the stale lock sweeper period.
	// Env: SWEEP_INTERVAL (default: 1m)
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`

	// HTTPRatePerHost is the sustained outbound requests per second per
	// host.
	// Env: HTTP_RATE_PER_HOST (default: 5)
	HTTPRatePerHost float64 `envconfig:"HTTP_RATE_PER_HOST" default:"5"`

	// HTTPBurst is the outbound token bucket burst per host.
	// Env: HTTP_BURST (default: 5)
	HTTPBurst int `envconfig:"HTTP_BURST" default:"5"`

	// HTTPTimeout is the per-request timeout.
	// Env: HTTP_TIMEOUT (default: 30s)
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	// HTTPMaxElapsed is the total retry budget per fetch.
	// Env: HTTP_MAX_ELAPSED (default: 2m)
	HTTPMaxElapsed time.Duration `envconfig:"HTTP_MAX_ELAPSED" default:"2m"`

	// PriceBatchSize is the observation flush bound.
	// Env: PRICE_BATCH_SIZE (default: 200)
	PriceBatchSize int `envconfig:"PRICE_BATCH_SIZE" default:"200"`

	// SeedFile is the optional YAML seed file declaring providers and
	// recurring jobs, applied by serve at startup.
	// Env: SEED_FILE
	SeedFile string `envconfig:"SEED_FILE"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix. For
// example, prefix "PRICEGRID" would require PRICEGRID_DB_URL instead of
// DB_URL.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.DataDir != "" {
		cfg = cfg.Apply(WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = cfg.Apply(WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = cfg.Apply(WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = cfg.Apply(WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.WorkerID != "" {
		cfg = cfg.Apply(WithWorkerID(e.WorkerID))
	}
	if e.WorkerCount > 0 {
		cfg = cfg.Apply(WithWorkerCount(e.WorkerCount))
	}
	if e.WorkerPollInterval > 0 {
		cfg = cfg.Apply(WithPollInterval(e.WorkerPollInterval))
	}
	if e.JobKinds != "" {
		cfg = cfg.Apply(WithJobKinds(splitCSV(e.JobKinds)))
	}
	if e.JobMaxAttempts > 0 {
		cfg = cfg.Apply(WithJobMaxAttempts(e.JobMaxAttempts))
	}
	if e.RetryBackoffBase > 0 {
		cfg = cfg.Apply(WithRetryBackoffBase(e.RetryBackoffBase))
	}
	if e.StaleLockThreshold > 0 {
		cfg = cfg.Apply(WithStaleLockThreshold(e.StaleLockThreshold))
	}
	if e.SweepInterval > 0 {
		cfg = cfg.Apply(WithSweepInterval(e.SweepInterval))
	}
	if e.HTTPRatePerHost > 0 {
		cfg = cfg.Apply(WithHTTPRatePerHost(e.HTTPRatePerHost))
	}
	if e.HTTPBurst > 0 {
		cfg = cfg.Apply(WithHTTPBurst(e.HTTPBurst))
	}
	if e.HTTPTimeout > 0 {
		cfg = cfg.Apply(WithHTTPTimeout(e.HTTPTimeout))
	}
	if e.HTTPMaxElapsed > 0 {
		cfg = cfg.Apply(WithHTTPMaxElapsed(e.HTTPMaxElapsed))
	}
	if e.PriceBatchSize > 0 {
		cfg = cfg.Apply(WithPriceBatchSize(e.PriceBatchSize))
	}
	if e.SeedFile != "" {
		cfg = cfg.Apply(WithSeedFile(e.SeedFile))
	}

	return cfg
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

// splitCSV splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
