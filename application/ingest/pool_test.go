package ingest_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/pricegrid/pricegrid/application/ingest"
	"github.com/pricegrid/pricegrid/domain/feed"
	"github.com/pricegrid/pricegrid/domain/job"
	"github.com/pricegrid/pricegrid/infrastructure/persistence"
	"github.com/pricegrid/pricegrid/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, register func(*ingest.Registry)) (*ingest.Pool, persistence.JobStore) {
	t.Helper()
	store := persistence.NewJobStore(testdb.New(t))
	registry := ingest.NewRegistry()
	if register != nil {
		register(registry)
	}
	pool := ingest.NewPool(store, registry, ingest.PoolConfig{
		WorkerID:    "test",
		BackoffBase: time.Nanosecond,
	}, slog.New(slog.DiscardHandler))
	return pool, store
}

func TestProcessOneSuccess(t *testing.T) {
	var got map[string]any
	pool, store := newPool(t, func(r *ingest.Registry) {
		r.Register("feed.json", ingest.HandlerFunc(func(_ context.Context, payload map[string]any) error {
			got = payload
			return nil
		}))
	})
	ctx := context.Background()

	enqueued, err := store.Enqueue(ctx, job.New("feed.json", 100, map[string]any{"url": "https://example.com"}))
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx, "test-0")
	require.NoError(t, err)
	require.True(t, processed)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, got)

	j, err := store.Get(ctx, enqueued.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusDone, j.Status())
}

func TestProcessOneEmptyQueue(t *testing.T) {
	pool, _ := newPool(t, nil)

	processed, err := pool.ProcessOne(context.Background(), "test-0")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessOneTransientFailureRequeues(t *testing.T) {
	pool, store := newPool(t, func(r *ingest.Registry) {
		r.Register("feed.json", ingest.HandlerFunc(func(context.Context, map[string]any) error {
			return feed.Transient(fmt.Errorf("upstream 503"))
		}))
	})
	ctx := context.Background()

	enqueued, err := store.Enqueue(ctx, job.New("feed.json", 100, nil))
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx, "test-0")
	require.NoError(t, err)
	require.True(t, processed)

	j, err := store.Get(ctx, enqueued.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, j.Status())
	assert.Contains(t, j.LastError(), "upstream 503")
	assert.Equal(t, 1, j.Attempts())
}

func TestProcessOneExhaustsAttempts(t *testing.T) {
	pool, store := newPool(t, func(r *ingest.Registry) {
		r.Register("feed.json", ingest.HandlerFunc(func(context.Context, map[string]any) error {
			return feed.Transient(fmt.Errorf("still down"))
		}))
	})
	ctx := context.Background()

	enqueued, err := store.Enqueue(ctx, job.New("feed.json", 100, nil).WithMaxAttempts(2))
	require.NoError(t, err)

	// The nanosecond backoff base makes the requeue immediately
	// claimable again.
	for range 2 {
		time.Sleep(time.Millisecond)
		processed, err := pool.ProcessOne(ctx, "test-0")
		require.NoError(t, err)
		require.True(t, processed)
	}

	j, err := store.Get(ctx, enqueued.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status())
	assert.Equal(t, 2, j.Attempts())

	processed, err := pool.ProcessOne(ctx, "test-0")
	require.NoError(t, err)
	assert.False(t, processed, "terminal jobs are never claimed")
}

func TestProcessOnePermanentFailure(t *testing.T) {
	pool, store := newPool(t, func(r *ingest.Registry) {
		r.Register("feed.json", ingest.HandlerFunc(func(context.Context, map[string]any) error {
			return feed.Permanent(fmt.Errorf("payload missing url"))
		}))
	})
	ctx := context.Background()

	enqueued, err := store.Enqueue(ctx, job.New("feed.json", 100, nil))
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx, "test-0")
	require.NoError(t, err)
	require.True(t, processed)

	j, err := store.Get(ctx, enqueued.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status(), "permanent errors skip the retry budget")
	assert.Equal(t, 1, j.Attempts())
}

func TestProcessOneContainsPanic(t *testing.T) {
	pool, store := newPool(t, func(r *ingest.Registry) {
		r.Register("feed.json", ingest.HandlerFunc(func(context.Context, map[string]any) error {
			panic("adapter bug")
		}))
	})
	ctx := context.Background()

	enqueued, err := store.Enqueue(ctx, job.New("feed.json", 100, nil))
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx, "test-0")
	require.NoError(t, err)
	require.True(t, processed)

	j, err := store.Get(ctx, enqueued.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, j.Status(), "a panic counts as a transient failure")
	assert.Contains(t, j.LastError(), "adapter bug")
}

func TestProcessOneUnknownKind(t *testing.T) {
	pool, store := newPool(t, nil)
	ctx := context.Background()

	enqueued, err := store.Enqueue(ctx, job.New("feed.exotic", 100, nil))
	require.NoError(t, err)

	processed, err := pool.ProcessOne(ctx, "test-0")
	require.NoError(t, err)
	require.True(t, processed)

	j, err := store.Get(ctx, enqueued.ID())
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, j.Status())
	assert.Contains(t, j.LastError(), "no handler")
}

func TestPoolStartStop(t *testing.T) {
	done := make(chan struct{})
	store := persistence.NewJobStore(testdb.New(t))
	registry := ingest.NewRegistry()
	registry.Register("feed.json", ingest.HandlerFunc(func(context.Context, map[string]any) error {
		close(done)
		return nil
	}))
	pool := ingest.NewPool(store, registry, ingest.PoolConfig{
		WorkerID:     "test",
		Count:        2,
		PollInterval: 10 * time.Millisecond,
	}, slog.New(slog.DiscardHandler))

	_, err := store.Enqueue(context.Background(), job.New("feed.json", 100, nil))
	require.NoError(t, err)

	pool.Start(context.Background())
	defer pool.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the job")
	}
}

func TestSweeperReclaims(t *testing.T) {
	db := testdb.New(t)
	store := persistence.NewJobStore(db)
	ctx := context.Background()

	enqueued, err := store.Enqueue(ctx, job.New("feed.json", 100, nil))
	require.NoError(t, err)
	_, ok, err := store.Claim(ctx, "worker-dead", nil)
	require.NoError(t, err)
	require.True(t, ok)

	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Session(ctx).Model(&persistence.IngestionJobModel{}).
		Where("id = ?", enqueued.ID()).
		Update("locked_at", stale).Error)

	sweeper := ingest.NewSweeper(store, 10*time.Millisecond, 15*time.Minute, slog.New(slog.DiscardHandler))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		j, err := store.Get(ctx, enqueued.ID())
		return err == nil && j.Status() == job.StatusQueued
	}, 5*time.Second, 20*time.Millisecond)
}
