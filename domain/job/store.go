package job

import (
	"context"
	"time"
)

// Store is the durable queue. All cross-worker coordination happens
// through it: claim leases, completion, retry scheduling, and the
// stale-lock sweep. No in-process lock coordinates across workers.
type Store interface {
	// Enqueue adds a job and returns it with its assigned id.
	Enqueue(ctx context.Context, j Job) (Job, error)

	// Claim leases at most one eligible job for workerID: status queued,
	// scheduled_at due, optionally restricted to kinds, ordered by
	// (priority, scheduled_at, id). The claim transaction uses a lock that
	// skips rows leased by concurrent transactions, so pollers never block
	// each other and at most one worker holds a given job. A successful
	// claim marks the job running, stamps the lease, and counts the
	// attempt. The second return is false when no work is available.
	Claim(ctx context.Context, workerID string, kinds []Kind) (Job, bool, error)

	// Complete records a successful run: status done, finished_at stamped,
	// last error cleared.
	Complete(ctx context.Context, id int64) error

	// Fail records a failed run. Below the attempt budget the job is
	// requeued with scheduled_at deferred by Backoff(backoffBase,
	// attempts); at the budget it becomes terminally failed with cause
	// retained for diagnosis.
	Fail(ctx context.Context, id int64, cause string, backoffBase time.Duration) error

	// FailPermanently records a non-retryable failure regardless of the
	// remaining attempt budget.
	FailPermanently(ctx context.Context, id int64, cause string) error

	// ReclaimStale requeues running jobs whose lease is older than
	// olderThan, recovering work from workers that died mid-job. Returns
	// the number of jobs requeued.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// Get retrieves a job by id.
	Get(ctx context.Context, id int64) (Job, error)

	// List returns jobs filtered by status (all when empty), newest first.
	List(ctx context.Context, status Status, limit int) ([]Job, error)

	// CountByStatus returns the number of jobs in the given status.
	CountByStatus(ctx context.Context, status Status) (int64, error)
}
