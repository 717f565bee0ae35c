package export

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/reelforge/server/internal/shared/errors"
)

// Repository persists export jobs.
type Repository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	// Transition moves a job to next and applies mutate to the row first.
	// Illegal transitions and terminal states are rejected.
	Transition(ctx context.Context, id uuid.UUID, next State, mutate func(*Job)) (*Job, error)
	// UpdateProgress advances the progress of an active job. Progress is
	// monotone: a smaller value than the stored one is ignored.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	// FailStale marks active jobs whose encode started longer than olderThan
	// ago as failed. The broker pop is destructive, so a job whose worker
	// died mid-encode would otherwise stay active forever with no terminal
	// state for callers to react to. Returns the number of jobs reaped.
	FailStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed export job repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, job *Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return apperrors.Persistence("create export job", err)
	}
	return nil
}

func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("export job")
	}
	if err != nil {
		return nil, apperrors.Persistence("load export job", err)
	}
	return &job, nil
}

func (r *gormRepository) Transition(ctx context.Context, id uuid.UUID, next State, mutate func(*Job)) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("export job")
			}
			return err
		}

		if !job.State.CanTransition(next) {
			return apperrors.BadRequest(
				"illegal export state transition from " + string(job.State) + " to " + string(next))
		}

		if mutate != nil {
			mutate(&job)
		}
		job.State = next
		now := time.Now()
		switch next {
		case StateActive:
			job.StartedAt = &now
		case StateCompleted, StateFailed:
			job.FinishedAt = &now
		}

		return tx.Save(&job).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Persistence("transition export job", err)
	}
	return &job, nil
}

func (r *gormRepository) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("state = ? AND started_at < ?", StateActive, cutoff).
		Updates(map[string]any{
			"state":          StateFailed,
			"failure_reason": "worker lost during encode",
			"finished_at":    time.Now(),
		})
	if res.Error != nil {
		return 0, apperrors.Persistence("reap stale export jobs", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *gormRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	// Monotone update: the WHERE clause drops regressions from out-of-order
	// progress events.
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND state = ? AND progress < ?", id, StateActive, progress).
		Update("progress", progress).Error
	if err != nil {
		return apperrors.Persistence("update export progress", err)
	}
	return nil
}
