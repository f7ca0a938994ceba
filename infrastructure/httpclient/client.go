// Package httpclient provides the outbound HTTP client used by feed
// adapters: per-host rate limiting, exponential backoff retry on
// transient failures, and conditional requests driven by cached ETags.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotModified is returned when a conditional request answers 304. The
// caller treats it as "nothing to ingest", not as a failure.
var ErrNotModified = errors.New("resource not modified")

// StatusError is a non-2xx, non-304 response. RetryAfter carries the
// server's Retry-After hint when one was sent.
type StatusError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}

// Config configures the client.
type Config struct {
	RatePerHost   float64       // sustained requests per second per host. Default: 5.
	Burst         int           // token bucket burst per host. Default: 5.
	Timeout       time.Duration // per-request timeout. Default: 30s.
	InitialDelay  time.Duration // first retry delay. Default: 500ms.
	BackoffFactor float64       // retry delay multiplier. Default: 2.
	MaxRetries    int           // retries after the first attempt. Default: 3.
	MaxElapsed    time.Duration // total budget across attempts. Default: 2m.
	MaxBytes      int64         // response body cap. Default: 10MB.
	UserAgent     string
}

func (c *Config) defaults() {
	if c.RatePerHost <= 0 {
		c.RatePerHost = 5
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 2 * time.Minute
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "pricegrid/1.0"
	}
}

// Response is a successful fetch.
type Response struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	ETag       string
	LastMod    string
}

// Client is a rate-limited retrying HTTP client. It is safe for
// concurrent use; all workers in a process share one instance so the
// per-host limits hold process-wide.
type Client struct {
	http   *http.Client
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	validators *validatorCache
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger,
		limiters:   make(map[string]*rate.Limiter),
		validators: newValidatorCache(),
	}
}

// Get fetches a URL, waiting on the host's token bucket before every
// attempt (retries included) and retrying 429, 5xx, and transport errors
// with exponential backoff until the elapsed budget runs out. When a
// previous fetch of the same URL yielded an ETag or Last-Modified, the
// request goes out conditional and a 304 returns ErrNotModified.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	etag, lastMod := c.validators.get(url)

	deadline := time.Now().Add(c.config.MaxElapsed)
	delay := c.config.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.attempt(ctx, url, etag, lastMod)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}
		wait := retryDelay(err, delay)
		if time.Now().Add(wait).After(deadline) {
			c.logger.Warn("retry budget exhausted", "url", url, "attempt", attempt+1)
			break
		}
		c.logger.Debug("retrying request", "url", url, "attempt", attempt+1, "delay", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
			delay = time.Duration(float64(delay) * c.config.BackoffFactor)
		}
	}

	return nil, fmt.Errorf("get %s: retries exhausted: %w", url, lastErr)
}

func (c *Client) attempt(ctx context.Context, url, etag, lastMod string) (*Response, error) {
	if err := c.limiter(url).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, fmt.Errorf("get %s: %w", url, ErrNotModified)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		out := &Response{
			Body:       body,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			ETag:       resp.Header.Get("ETag"),
			LastMod:    resp.Header.Get("Last-Modified"),
		}
		c.validators.put(url, out.ETag, out.LastMod)
		return out, nil
	default:
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
}

// parseRetryAfter handles the delta-seconds form; the HTTP-date form is
// rare enough from feed origins that it falls back to plain backoff.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// limiter returns the token bucket for a URL's host, creating it on first
// use.
func (c *Client) limiter(rawURL string) *rate.Limiter {
	host := hostOf(rawURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.config.RatePerHost), c.config.Burst)
		c.limiters[host] = limiter
	}
	return limiter
}

// retryable reports whether an attempt error is worth another try:
// transport errors, 429, and 5xx. Other statuses and the 304 sentinel
// return to the caller at once.
func retryable(err error) bool {
	if errors.Is(err, ErrNotModified) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// retryDelay honors a Retry-After on 429/503 when it is longer than the
// computed backoff.
func retryDelay(err error, backoff time.Duration) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > backoff {
		return statusErr.RetryAfter
	}
	return backoff
}
