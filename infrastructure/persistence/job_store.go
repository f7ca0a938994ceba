package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pricegrid/pricegrid/domain/job"
	"github.com/pricegrid/pricegrid/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobStore implements job.Store using GORM. The queue table is the only
// coordination point between workers; a claim is a row lock plus status
// transition inside one transaction.
type JobStore struct {
	db database.Database
}

// NewJobStore creates a JobStore.
func NewJobStore(db database.Database) JobStore {
	return JobStore{db: db}
}

// Enqueue adds a job and returns it with its assigned id.
func (s JobStore) Enqueue(ctx context.Context, j job.Job) (job.Job, error) {
	model, err := jobToModel(j)
	if err != nil {
		return job.Job{}, err
	}
	if err := s.db.Session(ctx).Create(&model).Error; err != nil {
		return job.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return jobToDomain(model)
}

// Claim leases at most one due job for workerID. On postgres the select
// takes FOR UPDATE SKIP LOCKED so concurrent pollers pass over each
// other's candidate rows instead of blocking; on other dialects the
// status-guarded update carries the at-most-one guarantee: losing a race
// for a candidate row reads as no work, never as a double lease.
func (s JobStore) Claim(ctx context.Context, workerID string, kinds []job.Kind) (job.Job, bool, error) {
	claimed, err := database.WithTransactionResult(ctx, s.db, func(tx *gorm.DB) (*IngestionJobModel, error) {
		now := time.Now().UTC()

		query := tx.
			Where("status = ? AND scheduled_at <= ?", string(job.StatusQueued), now).
			Order("priority ASC, scheduled_at ASC, id ASC")
		if len(kinds) > 0 {
			names := make([]string, 0, len(kinds))
			for _, k := range kinds {
				names = append(names, k.String())
			}
			query = query.Where("kind IN ?", names)
		}
		if s.db.IsPostgres() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var model IngestionJobModel
		if err := query.First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("select claimable job: %w", err)
		}

		model.Status = string(job.StatusRunning)
		model.LockedAt = &now
		model.LockedBy = workerID
		model.Attempts++
		if model.StartedAt == nil {
			model.StartedAt = &now
		}

		updates := map[string]any{
			"status":     model.Status,
			"locked_at":  model.LockedAt,
			"locked_by":  model.LockedBy,
			"attempts":   model.Attempts,
			"started_at": model.StartedAt,
			"updated_at": now,
		}
		// The status guard makes the claim conditional on the row still
		// being queued, so a concurrent claimer that won the race shows
		// up as zero affected rows instead of a double lease.
		result := tx.Model(&IngestionJobModel{}).
			Where("id = ? AND status = ?", model.ID, string(job.StatusQueued)).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("mark job %d running: %w", model.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, nil
		}
		return &model, nil
	})
	if err != nil {
		return job.Job{}, false, err
	}
	if claimed == nil {
		return job.Job{}, false, nil
	}
	j, err := jobToDomain(*claimed)
	if err != nil {
		return job.Job{}, false, err
	}
	return j, true, nil
}

// Complete records a successful run.
func (s JobStore) Complete(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	err := s.db.Session(ctx).Model(&IngestionJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      string(job.StatusDone),
			"finished_at": now,
			"locked_at":   nil,
			"locked_by":   "",
			"last_error":  nil,
			"updated_at":  now,
		}).Error
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// Fail records a failed run, requeueing with linear backoff while the
// attempt budget lasts and failing terminally once it is spent.
func (s JobStore) Fail(ctx context.Context, id int64, cause string, backoffBase time.Duration) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var model IngestionJobModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			return fmt.Errorf("lookup job %d: %w", id, err)
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"locked_at":  nil,
			"locked_by":  "",
			"last_error": cause,
			"updated_at": now,
		}
		if model.Attempts < model.MaxAttempts {
			updates["status"] = string(job.StatusQueued)
			updates["scheduled_at"] = now.Add(job.Backoff(backoffBase, model.Attempts))
		} else {
			updates["status"] = string(job.StatusFailed)
			updates["finished_at"] = now
		}

		if err := tx.Model(&IngestionJobModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("fail job %d: %w", id, err)
		}
		return nil
	})
}

// FailPermanently records a non-retryable failure regardless of the
// remaining attempt budget.
func (s JobStore) FailPermanently(ctx context.Context, id int64, cause string) error {
	now := time.Now().UTC()
	err := s.db.Session(ctx).Model(&IngestionJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      string(job.StatusFailed),
			"finished_at": now,
			"locked_at":   nil,
			"locked_by":   "",
			"last_error":  cause,
			"updated_at":  now,
		}).Error
	if err != nil {
		return fmt.Errorf("fail job %d permanently: %w", id, err)
	}
	return nil
}

// ReclaimStale requeues running jobs whose lease is older than olderThan.
// Attempts already counted at claim time stay counted, so a job that
// keeps killing its worker still exhausts its budget.
func (s JobStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result := s.db.Session(ctx).Model(&IngestionJobModel{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", string(job.StatusRunning), cutoff).
		Updates(map[string]any{
			"status":     string(job.StatusQueued),
			"locked_at":  nil,
			"locked_by":  "",
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Get retrieves a job by id.
func (s JobStore) Get(ctx context.Context, id int64) (job.Job, error) {
	var model IngestionJobModel
	err := s.db.Session(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return job.Job{}, fmt.Errorf("job %d: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return job.Job{}, fmt.Errorf("lookup job %d: %w", id, err)
	}
	return jobToDomain(model)
}

// List returns jobs filtered by status (all when empty), newest first.
func (s JobStore) List(ctx context.Context, status job.Status, limit int) ([]job.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Session(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var models []IngestionJobModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]job.Job, 0, len(models))
	for _, model := range models {
		j, err := jobToDomain(model)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs in the given status.
func (s JobStore) CountByStatus(ctx context.Context, status job.Status) (int64, error) {
	var count int64
	err := s.db.Session(ctx).Model(&IngestionJobModel{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count %s jobs: %w", status, err)
	}
	return count, nil
}

func jobToModel(j job.Job) (IngestionJobModel, error) {
	payload, err := json.Marshal(j.Payload())
	if err != nil {
		return IngestionJobModel{}, fmt.Errorf("marshal job payload: %w", err)
	}
	return IngestionJobModel{
		ID:          j.ID(),
		Kind:        j.Kind().String(),
		Payload:     payload,
		Status:      string(j.Status()),
		Priority:    j.Priority(),
		ScheduledAt: j.ScheduledAt().UTC(),
		LockedAt:    j.LockedAt(),
		LockedBy:    j.LockedBy(),
		Attempts:    j.Attempts(),
		MaxAttempts: j.MaxAttempts(),
		LastError:   optional(j.LastError()),
		StartedAt:   j.StartedAt(),
		FinishedAt:  j.FinishedAt(),
	}, nil
}

func jobToDomain(model IngestionJobModel) (job.Job, error) {
	var payload map[string]any
	if len(model.Payload) > 0 {
		if err := json.Unmarshal(model.Payload, &payload); err != nil {
			return job.Job{}, fmt.Errorf("unmarshal job %d payload: %w", model.ID, err)
		}
	}
	lastError := ""
	if model.LastError != nil {
		lastError = *model.LastError
	}
	return job.Reconstruct(
		model.ID,
		job.Kind(model.Kind),
		payload,
		job.Status(model.Status),
		model.Priority,
		model.ScheduledAt,
		model.LockedAt,
		model.LockedBy,
		model.Attempts,
		model.MaxAttempts,
		lastError,
		model.StartedAt,
		model.FinishedAt,
		model.CreatedAt,
		model.UpdatedAt,
	), nil
}
