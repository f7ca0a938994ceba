package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pricegrid/pricegrid/domain/job"
)

// Sweeper periodically requeues running jobs whose lease went stale,
// recovering work abandoned by crashed or partitioned workers. The
// threshold must comfortably exceed the longest legitimate job runtime or
// healthy jobs get reclaimed out from under their workers.
type Sweeper struct {
	store     job.Store
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a Sweeper that runs every interval and reclaims
// leases older than threshold.
func NewSweeper(store job.Store, interval, threshold time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  interval,
		threshold: threshold,
		logger:    logger.With("component", "sweeper"),
	}
}

// Start begins sweeping in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Go(func() {
		s.run(ctx)
	})

	s.logger.Info("stale lock sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("threshold", s.threshold),
	)
}

// Stop cancels the background goroutine and waits for it to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("stale lock sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	reclaimed, err := s.store.ReclaimStale(ctx, s.threshold)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("stale lock sweep failed", "error", err)
		return
	}
	if reclaimed > 0 {
		s.logger.Warn("reclaimed stale jobs", slog.Int64("count", reclaimed))
	}
}
