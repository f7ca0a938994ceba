// Package job provides the durable ingestion job queue domain: the job
// state machine, the claim/complete protocol contract, and retry backoff.
package job

import (
	"maps"
	"time"
)

// Status is a job's position in the queued → running → {done | failed}
// state machine. A failed attempt below the attempt budget moves the job
// back to queued with a deferred scheduled_at.
type Status string

// Status values.
const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Kind tags a job with the provider/region/work-unit handler it dispatches
// to. The core treats the payload as opaque; only Kind drives dispatch.
type Kind string

// String returns the string representation of the kind.
func (k Kind) String() string { return string(k) }

// DefaultMaxAttempts is the attempt budget for jobs enqueued without an
// explicit one.
const DefaultMaxAttempts = 3

// Job is one durable unit of ingestion work. Jobs are created by
// schedulers or operators, mutated only through the claim/complete
// protocol, and retained after completion for audit.
type Job struct {
	id          int64
	kind        Kind
	payload     map[string]any
	status      Status
	priority    int
	scheduledAt time.Time
	lockedAt    *time.Time
	lockedBy    string
	attempts    int
	maxAttempts int
	lastError   string
	startedAt   *time.Time
	finishedAt  *time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// New creates a queued job eligible to run immediately. Lower priority
// values run first.
func New(kind Kind, priority int, payload map[string]any) Job {
	return Job{
		kind:        kind,
		payload:     copyPayload(payload),
		status:      StatusQueued,
		priority:    priority,
		scheduledAt: time.Now().UTC(),
		maxAttempts: DefaultMaxAttempts,
	}
}

// Reconstruct rebuilds a Job from persisted state (used by the store).
func Reconstruct(
	id int64,
	kind Kind,
	payload map[string]any,
	status Status,
	priority int,
	scheduledAt time.Time,
	lockedAt *time.Time,
	lockedBy string,
	attempts, maxAttempts int,
	lastError string,
	startedAt, finishedAt *time.Time,
	createdAt, updatedAt time.Time,
) Job {
	return Job{
		id:          id,
		kind:        kind,
		payload:     copyPayload(payload),
		status:      status,
		priority:    priority,
		scheduledAt: scheduledAt,
		lockedAt:    lockedAt,
		lockedBy:    lockedBy,
		attempts:    attempts,
		maxAttempts: maxAttempts,
		lastError:   lastError,
		startedAt:   startedAt,
		finishedAt:  finishedAt,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the job id.
func (j Job) ID() int64 { return j.id }

// Kind returns the dispatch kind.
func (j Job) Kind() Kind { return j.kind }

// Payload returns a copy of the opaque job payload.
func (j Job) Payload() map[string]any { return copyPayload(j.payload) }

// Status returns the job status.
func (j Job) Status() Status { return j.status }

// Priority returns the job priority; lower values run first.
func (j Job) Priority() int { return j.priority }

// ScheduledAt returns when the job becomes eligible to run.
func (j Job) ScheduledAt() time.Time { return j.scheduledAt }

// LockedAt returns when the current lease was taken, if any.
func (j Job) LockedAt() *time.Time { return j.lockedAt }

// LockedBy returns the worker id holding the lease, if any.
func (j Job) LockedBy() string { return j.lockedBy }

// Attempts returns how many times the job has been claimed.
func (j Job) Attempts() int { return j.attempts }

// MaxAttempts returns the attempt budget.
func (j Job) MaxAttempts() int { return j.maxAttempts }

// LastError returns the most recent failure message.
func (j Job) LastError() string { return j.lastError }

// StartedAt returns when the job first started running, if ever.
func (j Job) StartedAt() *time.Time { return j.startedAt }

// FinishedAt returns when the job reached a terminal state, if it has.
func (j Job) FinishedAt() *time.Time { return j.finishedAt }

// CreatedAt returns when the job was enqueued.
func (j Job) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt returns when the job row last changed.
func (j Job) UpdatedAt() time.Time { return j.updatedAt }

// WithMaxAttempts returns a copy with the given attempt budget.
func (j Job) WithMaxAttempts(n int) Job {
	j.maxAttempts = n
	return j
}

// WithScheduledAt returns a copy scheduled to run at the given time.
func (j Job) WithScheduledAt(t time.Time) Job {
	j.scheduledAt = t
	return j
}

// Backoff returns the retry delay after the given number of attempts.
// The delay grows linearly in attempts so repeated failures spread out.
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts) * base
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(payload))
	maps.Copy(out, payload)
	return out
}
