package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reelforge/server/internal/utils/metrics"
)

// Recorder persists ledger entries asynchronously and best-effort. A write
// failure degrades to "unaudited spend", never to "generation failed": it is
// logged and swallowed, and the caller is never told.
type Recorder struct {
	repo    Repository
	logger  *zap.Logger
	metrics *metrics.Metrics
	buffer    chan *Entry
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder creates a new ledger recorder.
func NewRecorder(repo Repository, logger *zap.Logger, m *metrics.Metrics, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		repo:    repo,
		logger:  logger.Named("ledger"),
		metrics: m,
		buffer:  make(chan *Entry, bufferSize),
		done:    make(chan struct{}),
	}
	r.start()
	return r
}

// Record queues a ledger entry for persistence. Call only after the billable
// provider call has already succeeded.
func (r *Recorder) Record(entry *Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Quantity < 1 {
		entry.Quantity = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	select {
	case r.buffer <- entry:
	default:
		// Buffer full, log and drop
		r.recordFailure(entry, nil)
	}
}

// Close stops the recorder and flushes remaining entries.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case entry := <-r.buffer:
				r.persist(entry)
			case <-r.done:
				// Flush remaining entries
				for {
					select {
					case entry := <-r.buffer:
						r.persist(entry)
					default:
						return
					}
				}
			}
		}
	}()
}

func (r *Recorder) persist(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.repo.Append(ctx, entry); err != nil {
		r.recordFailure(entry, err)
	}
}

func (r *Recorder) recordFailure(entry *Entry, err error) {
	r.logger.Error("failed to persist ledger entry, spend is unaudited",
		zap.Error(err),
		zap.String("project_id", entry.ProjectID),
		zap.String("user_id", entry.UserID),
		zap.String("action_type", entry.ActionType),
		zap.String("model_id", entry.ModelID),
		zap.Float64("amount", entry.Amount),
	)
	if r.metrics != nil {
		r.metrics.LedgerWriteFailuresTotal.Inc()
	}
}
