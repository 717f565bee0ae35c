package export

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/reelforge/server/internal/utils/metrics"
)

// EnqueueRequest describes a new export job. OutputRef is an optional object
// key for the finished file; when empty the worker derives one from the
// project and job IDs.
type EnqueueRequest struct {
	ProjectID  string   `json:"project_id" binding:"required"`
	UserID     string   `json:"user_id" binding:"required"`
	SourceKeys []string `json:"source_keys" binding:"required,min=1"`
	OutputRef  string   `json:"output_ref"`
	Options    Options  `json:"options"`
}

// Service accepts export jobs and reads their status.
type Service struct {
	repo   Repository
	queue  Queue
	m      *metrics.Metrics
	logger *zap.Logger
}

// NewService creates a new export service.
func NewService(repo Repository, queue Queue, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{repo: repo, queue: queue, m: m, logger: logger}
}

// Enqueue persists a job and pushes its ID to the broker. When the broker is
// unreachable the submission fails outright rather than accepting a job no
// worker will ever see; the pre-created row is marked failed so it cannot
// linger as a phantom waiting job.
func (s *Service) Enqueue(ctx context.Context, req *EnqueueRequest) (*Job, error) {
	if req.Options.Format == "" {
		req.Options.Format = "mp4"
	}
	if req.Options.FrameRate <= 0 {
		req.Options.FrameRate = 30
	}

	job := &Job{
		ID:         uuid.New(),
		ProjectID:  req.ProjectID,
		UserID:     req.UserID,
		SourceKeys: req.SourceKeys,
		Options:    req.Options,
		OutputKey:  req.OutputRef,
		State:      StateWaiting,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.queue.Push(ctx, job.ID); err != nil {
		s.logger.Error("export broker unreachable at enqueue",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		if _, terr := s.repo.Transition(ctx, job.ID, StateFailed, func(j *Job) {
			j.FailureReason = "queue unavailable at submission"
		}); terr != nil {
			s.logger.Error("failed to mark orphaned export job",
				zap.String("job_id", job.ID.String()),
				zap.Error(terr))
		}
		return nil, err
	}

	s.m.ExportJobsTotal.WithLabelValues(string(StateWaiting)).Inc()
	s.logger.Info("export job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("project_id", job.ProjectID),
		zap.Int("clips", len(job.SourceKeys)))

	return job, nil
}

// GetStatus returns the current state of a job.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// parseJobID is shared by the HTTP layer.
func parseJobID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("invalid job id")
	}
	return id, nil
}
