package queue

import (
	"context"
	"errors"
	"time"

	"github.com/poiesic/docrag/core"
)

// Handle refers to one job on the queue.
type Handle struct {
	q  *Queue
	id string
}

// ID returns the job identifier.
func (h *Handle) ID() string {
	return h.id
}

// Job returns the current stored state of the job.
func (h *Handle) Job(ctx context.Context) (*core.IngestionJob, error) {
	return h.q.load(ctx, h.id)
}

// State returns the job's current lifecycle state.
func (h *Handle) State(ctx context.Context) (core.JobState, error) {
	job, err := h.q.load(ctx, h.id)
	if err != nil {
		return "", err
	}
	return job.State, nil
}

// AwaitCompletion blocks until the job reaches a terminal state or ctx ends.
// A completed job yields its result; a failed job yields a *JobFailedError.
// Terminal transitions are signalled in-process; job state is also re-read
// every poll interval so transitions made by another process are observed.
func (h *Handle) AwaitCompletion(ctx context.Context) (*core.JobResult, error) {
	ticker := time.NewTicker(h.q.pollInterval)
	defer ticker.Stop()

	for {
		signal := h.q.subscribe(h.id)

		job, err := h.q.load(ctx, h.id)
		if err != nil {
			return nil, err
		}
		switch job.State {
		case core.JobStateCompleted:
			return job.Result, nil
		case core.JobStateFailed:
			return nil, &JobFailedError{
				JobID:    job.Id,
				Attempts: job.Attempts,
				Err:      errors.New(job.LastError),
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-signal:
		case <-ticker.C:
		}
	}
}
