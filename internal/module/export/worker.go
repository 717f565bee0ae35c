package export

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reelforge/server/internal/utils/metrics"
)

// Worker drains the export queue one job at a time. Concurrency is scaled by
// running more worker processes, not by goroutines inside one, so a single
// ffmpeg render owns the machine's encode capacity.
type Worker struct {
	repo    Repository
	queue   Queue
	encoder Encoder
	store   PublicURLer
	m       *metrics.Metrics
	logger  *zap.Logger

	// retryDelay is how long to back off after a broker error before
	// polling again.
	retryDelay time.Duration

	// staleAfter bounds how long a job may sit active before the reaper
	// declares its worker dead. The broker hands a job out exactly once, so
	// without the sweep a crash mid-encode leaves the row active forever.
	staleAfter   time.Duration
	reapInterval time.Duration
	lastReap     time.Time
}

// PublicURLer resolves storage keys to durable URLs.
type PublicURLer interface {
	PublicURL(key string) string
}

// NewWorker creates a new export worker.
func NewWorker(repo Repository, queue Queue, encoder Encoder, store PublicURLer, m *metrics.Metrics, logger *zap.Logger) *Worker {
	return &Worker{
		repo:         repo,
		queue:        queue,
		encoder:      encoder,
		store:        store,
		m:            m,
		logger:       logger,
		retryDelay:   3 * time.Second,
		staleAfter:   30 * time.Minute,
		reapInterval: time.Minute,
	}
}

// Run blocks until ctx is canceled, processing jobs as they arrive. A failed
// job never stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("export worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("export worker stopping")
			return ctx.Err()
		default:
		}

		w.reapStale(ctx)

		jobID, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("export queue poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
			continue
		}
		if jobID == uuid.Nil {
			continue
		}

		w.process(ctx, jobID)
	}
}

// reapStale periodically fails active jobs abandoned by a crashed worker.
// Every worker process runs the sweep; the guarded UPDATE makes concurrent
// sweeps harmless.
func (w *Worker) reapStale(ctx context.Context) {
	if w.staleAfter <= 0 || time.Since(w.lastReap) < w.reapInterval {
		return
	}
	w.lastReap = time.Now()

	reaped, err := w.repo.FailStale(ctx, w.staleAfter)
	if err != nil {
		w.logger.Error("stale export sweep failed", zap.Error(err))
		return
	}
	if reaped > 0 {
		w.m.ExportJobsTotal.WithLabelValues(string(StateFailed)).Add(float64(reaped))
		w.logger.Warn("failed stale export jobs", zap.Int64("count", reaped))
	}
}

// process runs one job through the encoder. All failures land the job in the
// failed state with a reason; the loop itself never returns an error.
func (w *Worker) process(ctx context.Context, jobID uuid.UUID) {
	logger := w.logger.With(zap.String("job_id", jobID.String()))

	job, err := w.repo.Transition(ctx, jobID, StateActive, nil)
	if err != nil {
		// Already terminal or missing; nothing to do. Duplicate queue
		// deliveries land here.
		logger.Warn("skipping job", zap.Error(err))
		return
	}

	logger.Info("export started",
		zap.String("project_id", job.ProjectID),
		zap.Int("clips", len(job.SourceKeys)))
	started := time.Now()

	outputKey, err := w.encoder.Encode(ctx, job, func(progress int) {
		if perr := w.repo.UpdateProgress(ctx, jobID, progress); perr != nil {
			logger.Warn("progress update failed", zap.Error(perr))
		}
	})
	duration := time.Since(started)

	if err != nil {
		reason := err.Error()
		if _, terr := w.repo.Transition(ctx, jobID, StateFailed, func(j *Job) {
			j.FailureReason = reason
		}); terr != nil {
			logger.Error("failed to mark export failed", zap.Error(terr))
		}
		w.m.ExportJobsTotal.WithLabelValues(string(StateFailed)).Inc()
		w.m.ExportJobDuration.WithLabelValues(string(StateFailed)).Observe(duration.Seconds())
		logger.Error("export failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}

	outputURL := w.store.PublicURL(outputKey)
	if _, err := w.repo.Transition(ctx, jobID, StateCompleted, func(j *Job) {
		j.Progress = 100
		j.OutputKey = outputKey
		j.OutputURL = outputURL
	}); err != nil {
		logger.Error("failed to mark export completed", zap.Error(err))
		return
	}

	w.m.ExportJobsTotal.WithLabelValues(string(StateCompleted)).Inc()
	w.m.ExportJobDuration.WithLabelValues(string(StateCompleted)).Observe(duration.Seconds())
	logger.Info("export completed",
		zap.String("output_key", outputKey),
		zap.Duration("duration", duration))
}
