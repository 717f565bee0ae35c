package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/reelforge/server/internal/shared/errors"
	"github.com/reelforge/server/internal/utils/metrics"
)

type memRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func newMemRepository() *memRepository {
	return &memRepository{jobs: make(map[uuid.UUID]*Job)}
}

func (r *memRepository) Create(ctx context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *memRepository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("export job")
	}
	copied := *job
	return &copied, nil
}

func (r *memRepository) Transition(ctx context.Context, id uuid.UUID, next State, mutate func(*Job)) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("export job")
	}
	if !job.State.CanTransition(next) {
		return nil, apperrors.BadRequest("illegal export state transition")
	}
	if mutate != nil {
		mutate(job)
	}
	job.State = next
	copied := *job
	return &copied, nil
}

func (r *memRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return apperrors.NotFound("export job")
	}
	if job.State == StateActive && progress > job.Progress {
		if progress > 100 {
			progress = 100
		}
		job.Progress = progress
	}
	return nil
}

func (r *memRepository) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var reaped int64
	for _, job := range r.jobs {
		if job.State == StateActive && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.State = StateFailed
			job.FailureReason = "worker lost during encode"
			now := time.Now()
			job.FinishedAt = &now
			reaped++
		}
	}
	return reaped, nil
}

func (r *memRepository) state(id uuid.UUID) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].State
}

type memQueue struct {
	mu      sync.Mutex
	ids     []uuid.UUID
	pushErr error
}

func (q *memQueue) Push(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return apperrors.QueueUnavailable(q.pushErr)
	}
	q.ids = append(q.ids, id)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return uuid.Nil, nil
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

type stubEncoder struct {
	fn func(ctx context.Context, job *Job, onProgress func(int)) (string, error)
}

func (e *stubEncoder) Encode(ctx context.Context, job *Job, onProgress func(int)) (string, error) {
	return e.fn(ctx, job, onProgress)
}

type staticURLs struct{}

func (staticURLs) PublicURL(key string) string { return "https://cdn.test/" + key }

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateWaiting, StateActive, true},
		{StateWaiting, StateFailed, true},
		{StateWaiting, StateCompleted, false},
		{StateActive, StateCompleted, true},
		{StateActive, StateFailed, true},
		{StateActive, StateWaiting, false},
		{StateCompleted, StateActive, false},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateActive, false},
		{StateFailed, StateCompleted, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestEnqueue(t *testing.T) {
	repo := newMemRepository()
	queue := &memQueue{}
	m := metrics.New("test_export_enqueue")
	svc := NewService(repo, queue, m, zap.NewNop())

	job, err := svc.Enqueue(context.Background(), &EnqueueRequest{
		ProjectID:  "proj-1",
		UserID:     "user-1",
		SourceKeys: []string{"assets/proj-1/a.mp4", "assets/proj-1/b.mp4"},
	})
	require.NoError(t, err)

	assert.Equal(t, StateWaiting, job.State)
	assert.Equal(t, "mp4", job.Options.Format)
	assert.Equal(t, 30, job.Options.FrameRate)
	assert.Len(t, queue.ids, 1)
	assert.Equal(t, job.ID, queue.ids[0])
}

func TestEnqueueWithOutputRef(t *testing.T) {
	repo := newMemRepository()
	queue := &memQueue{}
	m := metrics.New("test_export_enqueue_output_ref")
	svc := NewService(repo, queue, m, zap.NewNop())

	job, err := svc.Enqueue(context.Background(), &EnqueueRequest{
		ProjectID:  "proj-1",
		UserID:     "user-1",
		SourceKeys: []string{"assets/proj-1/a.mp4"},
		OutputRef:  "renders/proj-1/final-cut.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "renders/proj-1/final-cut.mp4", job.OutputKey)

	stored, err := repo.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "renders/proj-1/final-cut.mp4", stored.OutputKey)
}

func TestEncoderOutputKey(t *testing.T) {
	enc := NewFFmpegEncoder(nil, "ffmpeg", t.TempDir(), "exports", zap.NewNop())

	job := &Job{ID: uuid.New(), ProjectID: "proj-1"}
	assert.Equal(t, "exports/proj-1/"+job.ID.String()+".mp4", enc.outputKeyFor(job, "mp4"))

	job.OutputKey = "renders/proj-1/final-cut.mp4"
	assert.Equal(t, "renders/proj-1/final-cut.mp4", enc.outputKeyFor(job, "mp4"))
}

func TestEnqueueQueueUnavailable(t *testing.T) {
	repo := newMemRepository()
	queue := &memQueue{pushErr: errors.New("connection refused")}
	m := metrics.New("test_export_enqueue_down")
	svc := NewService(repo, queue, m, zap.NewNop())

	job, err := svc.Enqueue(context.Background(), &EnqueueRequest{
		ProjectID:  "proj-1",
		UserID:     "user-1",
		SourceKeys: []string{"assets/proj-1/a.mp4"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQueueUnavailable)
	assert.Nil(t, job)

	// The pre-created row must not linger as a phantom waiting job.
	for _, j := range repo.jobs {
		assert.Equal(t, StateFailed, j.State)
		assert.NotEmpty(t, j.FailureReason)
	}
}

func newWaitingJob(t *testing.T, repo *memRepository, sources ...string) *Job {
	t.Helper()
	if len(sources) == 0 {
		sources = []string{"assets/proj-1/a.mp4"}
	}
	job := &Job{
		ID:         uuid.New(),
		ProjectID:  "proj-1",
		UserID:     "user-1",
		SourceKeys: sources,
		Options:    Options{Format: "mp4", FrameRate: 30},
		State:      StateWaiting,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestWorkerReapsStaleActiveJobs(t *testing.T) {
	repo := newMemRepository()

	longAgo := time.Now().Add(-time.Hour)
	stale := &Job{ID: uuid.New(), ProjectID: "proj-1", UserID: "user-1",
		SourceKeys: []string{"a.mp4"}, State: StateActive, StartedAt: &longAgo}
	require.NoError(t, repo.Create(context.Background(), stale))

	justNow := time.Now()
	running := &Job{ID: uuid.New(), ProjectID: "proj-1", UserID: "user-1",
		SourceKeys: []string{"b.mp4"}, State: StateActive, StartedAt: &justNow}
	require.NoError(t, repo.Create(context.Background(), running))

	waiting := newWaitingJob(t, repo)

	m := metrics.New("test_export_reap")
	w := NewWorker(repo, &memQueue{}, &stubEncoder{}, staticURLs{}, m, zap.NewNop())
	w.reapStale(context.Background())

	reapedJob, err := repo.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, reapedJob.State)
	assert.Equal(t, "worker lost during encode", reapedJob.FailureReason)
	require.NotNil(t, reapedJob.FinishedAt)

	assert.Equal(t, StateActive, repo.state(running.ID))
	assert.Equal(t, StateWaiting, repo.state(waiting.ID))

	// Within the sweep interval a second call is a no-op even for jobs that
	// have since gone stale.
	repo.jobs[running.ID].StartedAt = &longAgo
	w.reapStale(context.Background())
	assert.Equal(t, StateActive, repo.state(running.ID))
}

func TestWorkerProcessCompletes(t *testing.T) {
	repo := newMemRepository()
	job := newWaitingJob(t, repo)

	encoder := &stubEncoder{fn: func(ctx context.Context, j *Job, onProgress func(int)) (string, error) {
		onProgress(10)
		onProgress(60)
		onProgress(100)
		return "exports/proj-1/" + j.ID.String() + ".mp4", nil
	}}

	m := metrics.New("test_export_worker_ok")
	w := NewWorker(repo, &memQueue{}, encoder, staticURLs{}, m, zap.NewNop())
	w.process(context.Background(), job.ID)

	got, err := repo.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Contains(t, got.OutputURL, "https://cdn.test/exports/proj-1/")
}

func TestWorkerProcessFailureIsIsolated(t *testing.T) {
	repo := newMemRepository()
	bad := newWaitingJob(t, repo)
	good := newWaitingJob(t, repo)

	encoder := &stubEncoder{fn: func(ctx context.Context, j *Job, onProgress func(int)) (string, error) {
		if j.ID == bad.ID {
			return "", errors.New("ffmpeg: exit status 1")
		}
		return "exports/proj-1/" + j.ID.String() + ".mp4", nil
	}}

	m := metrics.New("test_export_worker_fail")
	w := NewWorker(repo, &memQueue{}, encoder, staticURLs{}, m, zap.NewNop())

	w.process(context.Background(), bad.ID)
	w.process(context.Background(), good.ID)

	gotBad, err := repo.Get(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, gotBad.State)
	assert.Equal(t, "ffmpeg: exit status 1", gotBad.FailureReason)

	gotGood, err := repo.Get(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, gotGood.State)
}

func TestWorkerSkipsTerminalJob(t *testing.T) {
	repo := newMemRepository()
	job := newWaitingJob(t, repo)

	// Simulate a duplicate delivery: the job already ran to completion.
	_, err := repo.Transition(context.Background(), job.ID, StateActive, nil)
	require.NoError(t, err)
	_, err = repo.Transition(context.Background(), job.ID, StateCompleted, nil)
	require.NoError(t, err)

	encoder := &stubEncoder{fn: func(ctx context.Context, j *Job, onProgress func(int)) (string, error) {
		t.Fatal("encoder must not run for a terminal job")
		return "", nil
	}}

	m := metrics.New("test_export_worker_dup")
	w := NewWorker(repo, &memQueue{}, encoder, staticURLs{}, m, zap.NewNop())
	w.process(context.Background(), job.ID)

	assert.Equal(t, StateCompleted, repo.state(job.ID))
}

func TestWorkerRunDrainsQueue(t *testing.T) {
	repo := newMemRepository()
	queue := &memQueue{}
	first := newWaitingJob(t, repo)
	second := newWaitingJob(t, repo)
	require.NoError(t, queue.Push(context.Background(), first.ID))
	require.NoError(t, queue.Push(context.Background(), second.ID))

	done := make(chan struct{})
	encoder := &stubEncoder{fn: func(ctx context.Context, j *Job, onProgress func(int)) (string, error) {
		if j.ID == second.ID {
			defer close(done)
		}
		return "exports/proj-1/" + j.ID.String() + ".mp4", nil
	}}

	m := metrics.New("test_export_worker_run")
	w := NewWorker(repo, queue, encoder, staticURLs{}, m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain the queue")
	}
	cancel()

	assert.Eventually(t, func() bool {
		return repo.state(first.ID) == StateCompleted && repo.state(second.ID) == StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProgressMonotone(t *testing.T) {
	repo := newMemRepository()
	job := newWaitingJob(t, repo)
	_, err := repo.Transition(context.Background(), job.ID, StateActive, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 40))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 25))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, 70))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, got.Progress)
}
