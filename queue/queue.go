// Package queue implements the durable ingestion job queue.
//
// Jobs are persisted through a storage.JobRepository, claimed by a single
// dispatcher goroutine and executed on an ants worker pool. Delivery is
// at-least-once: a job left active by a crashed process is moved back to
// waiting when the queue starts, so handlers must be idempotent.
//
// Failed attempts are retried with exponential backoff until the attempt cap
// is reached. Errors classified by core.IsPermanent fail the job immediately.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/retry"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
)

const (
	connectAttempts  = 5
	connectBaseDelay = 200 * time.Millisecond
)

// Handler executes one attempt of a job. A nil error completes the job with the returned result.
type Handler func(ctx context.Context, job *core.IngestionJob) (*core.JobResult, error)

// Payload is the caller-supplied part of a new job.
type Payload struct {
	SourceURL  string
	SavedPath  string
	Collection string
	Questions  []string
}

// Queue is a durable job queue with a bounded worker pool.
type Queue struct {
	repo            storage.JobRepository
	ownsRepo        bool
	handler         Handler
	pool            *ants.Pool
	poolSize        int
	maxAttempts     int
	baseBackoff     time.Duration
	maxBackoff      time.Duration
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	waiters map[string]chan struct{}

	started    atomic.Bool
	closed     atomic.Bool
	wake       chan struct{}
	stop       context.CancelFunc // stops the dispatcher
	cancelJobs context.CancelFunc // cancels in-flight handlers
	dispatched chan struct{}
	inflight   sync.WaitGroup
}

// New creates a Queue over repo that runs handler for each claimed job.
// Call Start to begin dispatching.
func New(repo storage.JobRepository, handler Handler, opts ...Option) (*Queue, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	q := &Queue{
		repo:            repo,
		handler:         handler,
		poolSize:        DefaultPoolSize,
		maxAttempts:     DefaultMaxAttempts,
		baseBackoff:     DefaultBaseBackoff,
		maxBackoff:      DefaultMaxBackoff,
		pollInterval:    DefaultPollInterval,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.Default(),
		waiters:         make(map[string]chan struct{}),
		wake:            make(chan struct{}, 1),
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	q.logger = q.logger.With("component", "queue")

	pool, err := ants.NewPool(q.poolSize)
	if err != nil {
		return nil, err
	}
	q.pool = pool

	return q, nil
}

// Open opens a badger job repository at path (in memory when path is empty),
// retrying with bounded backoff while the store is unavailable, and creates a
// Queue that owns it.
func Open(ctx context.Context, path string, handler Handler, opts ...Option) (*Queue, error) {
	var repo *badger.JobRepository
	err := retry.RetryWithBackoff(ctx, func() error {
		var err error
		repo, err = badger.OpenJobRepository(path, path == "")
		return err
	}, connectAttempts, connectBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrQueueUnavailable, err)
	}

	q, err := New(repo, handler, opts...)
	if err != nil {
		repo.Close()
		return nil, err
	}
	q.ownsRepo = true
	return q, nil
}

// Start recovers jobs abandoned by a previous process and launches the dispatcher.
func (q *Queue) Start(ctx context.Context) error {
	if q.closed.Load() {
		return core.ErrQueueUnavailable
	}
	if !q.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	recovered, err := q.repo.ResetActiveJobs(ctx)
	if err != nil {
		return q.unavailable(err)
	}
	if recovered > 0 {
		q.logger.Info("redelivering interrupted jobs", "count", recovered)
	}

	dispatchCtx, stop := context.WithCancel(context.Background())
	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	q.stop = stop
	q.cancelJobs = cancelJobs
	q.dispatched = make(chan struct{})

	go q.dispatch(dispatchCtx, jobsCtx)
	q.logger.Info("queue started", "workers", q.poolSize, "maxAttempts", q.maxAttempts)
	return nil
}

// Enqueue persists a new waiting job and returns its handle.
func (q *Queue) Enqueue(ctx context.Context, p Payload) (*Handle, error) {
	if q.closed.Load() {
		return nil, core.ErrQueueUnavailable
	}

	job := &core.IngestionJob{
		Id:          uuid.NewString(),
		SourceURL:   p.SourceURL,
		SavedPath:   p.SavedPath,
		Collection:  p.Collection,
		Questions:   p.Questions,
		State:       core.JobStateWaiting,
		MaxAttempts: q.maxAttempts,
	}
	if err := q.repo.CreateJob(ctx, job); err != nil {
		return nil, q.unavailable(err)
	}
	q.logger.Debug("enqueued job", "jobId", job.Id, "source", job.SourceURL)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return &Handle{q: q, id: job.Id}, nil
}

// GetJob returns a handle for an existing job.
// Returns an error wrapping core.ErrNotFound for unknown ids.
func (q *Queue) GetJob(ctx context.Context, id string) (*Handle, error) {
	if _, err := q.load(ctx, id); err != nil {
		return nil, err
	}
	return &Handle{q: q, id: id}, nil
}

// Close stops dispatching, waits up to the shutdown timeout for in-flight jobs,
// releases the worker pool and closes an owned repository. Jobs still running
// when the timeout expires are cancelled and redelivered on the next start.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}

	if q.started.Load() {
		q.stop()
		<-q.dispatched

		done := make(chan struct{})
		go func() {
			q.inflight.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(q.shutdownTimeout):
			q.logger.Warn("shutdown timeout reached, cancelling in-flight jobs")
			q.cancelJobs()
			<-done
		}
		q.cancelJobs()
	}

	q.pool.Release()

	q.mu.Lock()
	for id, ch := range q.waiters {
		close(ch)
		delete(q.waiters, id)
	}
	q.mu.Unlock()

	q.logger.Info("queue closed")
	if q.ownsRepo {
		return q.repo.Close()
	}
	return nil
}

func (q *Queue) dispatch(ctx, jobsCtx context.Context) {
	defer close(q.dispatched)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-q.wake:
		}

		for q.pool.Free() > 0 && ctx.Err() == nil {
			job, err := q.repo.ClaimNextJob(ctx, time.Now().UTC())
			if err != nil {
				q.logger.Error("failed to claim job", "err", err)
				break
			}
			if job == nil {
				break
			}

			q.inflight.Add(1)
			err = q.pool.Submit(func() {
				defer q.inflight.Done()
				q.run(jobsCtx, job)
			})
			if err != nil {
				q.inflight.Done()
				// Left active; recovered on the next start.
				q.logger.Error("failed to submit job to pool", "jobId", job.Id, "err", err)
				break
			}
		}
	}
}

func (q *Queue) run(ctx context.Context, job *core.IngestionJob) {
	logger := q.logger.With("jobId", job.Id, "attempt", job.Attempts)
	logger.Info("processing job", "source", job.SourceURL)

	result, err := q.invoke(ctx, job)
	if err != nil && ctx.Err() != nil {
		logger.Warn("job interrupted by shutdown, will be redelivered", "err", err)
		return
	}

	now := time.Now().UTC()
	switch {
	case err == nil:
		if result == nil {
			result = &core.JobResult{}
		}
		result.Success = true
		result.CompletedAt = now
		job.State = core.JobStateCompleted
		job.Result = result
		job.LastError = ""
		logger.Info("job completed", "chunks", result.Chunks)
	case core.IsPermanent(err) || job.Attempts >= job.MaxAttempts:
		job.State = core.JobStateFailed
		job.LastError = err.Error()
		logger.Error("job failed", "err", err, "permanent", core.IsPermanent(err))
	default:
		delay := retry.Backoff(q.baseBackoff, q.maxBackoff, job.Attempts)
		job.State = core.JobStateDelayed
		job.NextRunAt = now.Add(delay)
		job.LastError = err.Error()
		logger.Warn("job attempt failed, retrying", "err", err, "delay", delay)
	}

	if err := q.repo.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("failed to record job state", "state", job.State, "err", err)
		return
	}
	if job.State.Terminal() {
		q.notify(job.Id)
	}
}

// invoke runs the handler, converting a panic into an error.
func (q *Queue) invoke(ctx context.Context, job *core.IngestionJob) (result *core.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return q.handler(ctx, job)
}

func (q *Queue) load(ctx context.Context, id string) (*core.IngestionJob, error) {
	if q.closed.Load() {
		return nil, core.ErrQueueUnavailable
	}
	job, err := q.repo.GetJob(ctx, id)
	if err != nil {
		return nil, q.unavailable(err)
	}
	return job, nil
}

// subscribe returns a channel closed on the job's next terminal transition.
func (q *Queue) subscribe(id string) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.waiters[id]
	if !ok {
		ch = make(chan struct{})
		q.waiters[id] = ch
	}
	return ch
}

func (q *Queue) notify(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ch, ok := q.waiters[id]; ok {
		close(ch)
		delete(q.waiters, id)
	}
}

// unavailable maps a closed store to core.ErrQueueUnavailable.
func (q *Queue) unavailable(err error) error {
	if errors.Is(err, storage.ErrStorageClosed) {
		return fmt.Errorf("%w: %w", core.ErrQueueUnavailable, err)
	}
	return err
}
