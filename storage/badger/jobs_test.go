package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobRepository(t *testing.T) *JobRepository {
	t.Helper()
	repo, err := OpenJobRepository("", true)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newWaitingJob(id string, runAt time.Time) *core.IngestionJob {
	return &core.IngestionJob{
		Id:          id,
		SourceURL:   "https://example.com/" + id + ".pdf",
		SavedPath:   "/tmp/" + id + ".pdf",
		Collection:  "docs_" + id,
		State:       core.JobStateWaiting,
		MaxAttempts: 3,
		EnqueuedAt:  runAt,
		NextRunAt:   runAt,
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	job := newWaitingJob("a", time.Time{})
	job.EnqueuedAt = time.Time{}
	require.NoError(t, repo.CreateJob(ctx, job))
	assert.False(t, job.EnqueuedAt.IsZero(), "EnqueuedAt is set on create")
	assert.Equal(t, job.EnqueuedAt, job.NextRunAt)

	got, err := repo.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, job.SourceURL, got.SourceURL)
	assert.Equal(t, core.JobStateWaiting, got.State)
}

func TestJobRepository_CreateDuplicate(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateJob(ctx, newWaitingJob("a", time.Now())))
	err := repo.CreateJob(ctx, newWaitingJob("a", time.Now()))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestJobRepository_GetUnknown(t *testing.T) {
	repo := newTestJobRepository(t)

	_, err := repo.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestJobRepository_UpdateUnknown(t *testing.T) {
	repo := newTestJobRepository(t)

	err := repo.UpdateJob(context.Background(), newWaitingJob("missing", time.Now()))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobRepository_ClaimOrder(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, repo.CreateJob(ctx, newWaitingJob("second", base.Add(2*time.Second))))
	require.NoError(t, repo.CreateJob(ctx, newWaitingJob("first", base.Add(time.Second))))

	job, err := repo.ClaimNextJob(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "first", job.Id)
	assert.Equal(t, core.JobStateActive, job.State)
	assert.Equal(t, 1, job.Attempts)

	job, err = repo.ClaimNextJob(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "second", job.Id)

	job, err = repo.ClaimNextJob(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, job, "nothing left to claim")
}

func TestJobRepository_ClaimSkipsFutureJobs(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	delayed := newWaitingJob("later", time.Now().Add(time.Hour))
	delayed.State = core.JobStateDelayed
	require.NoError(t, repo.CreateJob(ctx, delayed))

	job, err := repo.ClaimNextJob(ctx, time.Now())
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = repo.ClaimNextJob(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "later", job.Id)
}

func TestJobRepository_TerminalJobsAreNotClaimed(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateJob(ctx, newWaitingJob("a", time.Now().Add(-time.Second))))
	job, err := repo.ClaimNextJob(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, job)

	job.State = core.JobStateCompleted
	job.Result = &core.JobResult{Success: true, Chunks: 3}
	require.NoError(t, repo.UpdateJob(ctx, job))

	next, err := repo.ClaimNextJob(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, next)

	stored, err := repo.GetJob(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, stored.Result)
	assert.Equal(t, 3, stored.Result.Chunks)
}

func TestJobRepository_ResetActiveJobs(t *testing.T) {
	repo := newTestJobRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateJob(ctx, newWaitingJob("a", time.Now().Add(-time.Second))))
	require.NoError(t, repo.CreateJob(ctx, newWaitingJob("b", time.Now().Add(time.Hour))))
	claimed, err := repo.ClaimNextJob(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := repo.ResetActiveJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := repo.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, core.JobStateWaiting, job.State)
	assert.Equal(t, 1, job.Attempts, "attempt count survives recovery")

	again, err := repo.ClaimNextJob(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "a", again.Id)
	assert.Equal(t, 2, again.Attempts)
}
