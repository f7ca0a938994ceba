package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pricegrid/pricegrid/domain/feed"
	"github.com/pricegrid/pricegrid/domain/job"
	"golang.org/x/sync/errgroup"
)

// PoolConfig configures the worker pool.
type PoolConfig struct {
	WorkerID     string        // base worker identity; poller index is appended
	Count        int           // concurrent pollers. Default: 1.
	PollInterval time.Duration // queue poll period. Default: 1s.
	Kinds        []job.Kind    // claim allow-list; empty claims every registered kind
	BackoffBase  time.Duration // linear retry backoff unit. Default: 1m.
}

func (c *PoolConfig) defaults() {
	if c.Count <= 0 {
		c.Count = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Minute
	}
}

// Pool drains the durable queue with a bounded set of pollers. All
// cross-worker coordination goes through the store's claim protocol; the
// pool holds no shared job state of its own, so multiple processes can
// run pools against the same database.
type Pool struct {
	store    job.Store
	registry *Registry
	config   PoolConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPool creates a Pool.
func NewPool(store job.Store, registry *Registry, cfg PoolConfig, logger *slog.Logger) *Pool {
	cfg.defaults()
	return &Pool{
		store:    store,
		registry: registry,
		config:   cfg,
		logger:   logger.With("component", "pool"),
	}
}

// Start launches the pollers in the background. Stop shuts them down.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Go(func() {
		if err := p.run(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("worker pool exited", "error", err)
		}
	})

	p.logger.Info("worker pool started",
		slog.String("worker_id", p.config.WorkerID),
		slog.Int("count", p.config.Count),
	)
}

// Stop cancels the pollers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for i := range p.config.Count {
		workerID := fmt.Sprintf("%s-%d", p.config.WorkerID, i)
		group.Go(func() error {
			p.poll(ctx, workerID)
			return nil
		})
	}
	return group.Wait()
}

func (p *Pool) poll(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain eagerly: keep claiming until the queue is empty so a
			// burst of jobs is not throttled to one per poll tick.
			for {
				processed, err := p.ProcessOne(ctx, workerID)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.logger.Error("job processing failed", "worker_id", workerID, "error", err)
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}

// ProcessOne claims and executes at most one job, reporting whether one
// was claimed. Exposed for tests and for the drain loop.
func (p *Pool) ProcessOne(ctx context.Context, workerID string) (bool, error) {
	kinds := p.config.Kinds
	if len(kinds) == 0 {
		kinds = p.registry.Kinds()
	}

	j, found, err := p.store.Claim(ctx, workerID, kinds)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	p.processJob(ctx, workerID, j)
	return true, nil
}

func (p *Pool) processJob(ctx context.Context, workerID string, j job.Job) {
	start := time.Now()
	logger := p.logger.With(
		slog.Int64("job_id", j.ID()),
		slog.String("kind", j.Kind().String()),
		slog.String("worker_id", workerID),
	)

	handler, ok := p.registry.Handler(j.Kind())
	if !ok {
		// Retrying cannot conjure a handler; fail terminally so the job
		// does not burn its attempt budget rediscovering that.
		logger.Error("no handler for job kind")
		if err := p.store.FailPermanently(ctx, j.ID(), "no handler for kind "+j.Kind().String()); err != nil {
			logger.Error("failed to record permanent failure", "error", err)
		}
		return
	}

	logger.Info("job started", slog.Int("attempt", j.Attempts()))

	if err := p.executeWithRecovery(ctx, handler, j); err != nil {
		logger.Error("job failed", slog.Int("attempt", j.Attempts()), "error", err)
		p.recordFailure(ctx, logger, j, err)
		return
	}

	if err := p.store.Complete(ctx, j.ID()); err != nil {
		logger.Error("failed to record completion", "error", err)
		return
	}
	logger.Info("job completed", slog.Duration("duration", time.Since(start)))
}

// executeWithRecovery converts a handler panic into a normal failure so a
// crashing handler consumes attempts like any other error instead of
// taking the worker down.
func (p *Pool) executeWithRecovery(ctx context.Context, handler Handler, j job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Execute(ctx, j.Payload())
}

func (p *Pool) recordFailure(ctx context.Context, logger *slog.Logger, j job.Job, execErr error) {
	var recordErr error
	if feed.IsPermanent(execErr) {
		recordErr = p.store.FailPermanently(ctx, j.ID(), execErr.Error())
	} else {
		recordErr = p.store.Fail(ctx, j.ID(), execErr.Error(), p.config.BackoffBase)
	}
	if recordErr != nil {
		logger.Error("failed to record job failure", "error", recordErr)
	}
}
