package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Besides the primary job record it maintains two indices:
// a ready index ordered by run time for waiting and delayed jobs, and
// an active index used to recover jobs abandoned by a crashed process.
type JobRepository struct {
	backend *Backend
	owned   bool
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a JobRepository on a shared backend.
// Closing the repository does not close the backend.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &JobRepository{backend: backend}, nil
}

// OpenJobRepository opens a dedicated backend at path and creates a JobRepository that owns it.
func OpenJobRepository(path string, inMemory bool) (*JobRepository, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &JobRepository{backend: backend, owned: true}, nil
}

// Close closes the backend if the repository owns it.
func (r *JobRepository) Close() error {
	if r.owned {
		return r.backend.Close()
	}
	return nil
}

// CreateJob stores a new job and indexes it as ready.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.IngestionJob) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)
		existing, err := readJob(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		now := time.Now().UTC()
		if job.EnqueuedAt.IsZero() {
			job.EnqueuedAt = now
		}
		if job.NextRunAt.IsZero() {
			job.NextRunAt = job.EnqueuedAt
		}
		job.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}
		if err := setJobIndex(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetJob retrieves a job by Id.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.IngestionJob, error) {
	var result *core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// UpdateJob replaces a stored job and moves its index entries to match the new state.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.IngestionJob) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)
		old, err := readJob(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		job.UpdatedAt = time.Now().UTC()
		if err := deleteJobIndex(tx, old); err != nil {
			return err
		}
		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}
		if err := setJobIndex(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ClaimNextJob atomically claims the earliest ready job.
// A transaction conflict with a concurrent claim is reported as no job ready.
func (r *JobRepository) ClaimNextJob(ctx context.Context, now time.Time) (*core.IngestionJob, error) {
	var claimed *core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		readyKey, id, ok := firstReady(tx, now)
		if !ok {
			return nil
		}

		job, err := readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if err := tx.Delete(readyKey); err != nil {
			return err
		}
		if job == nil {
			// Dangling index entry; drop it and let the next poll continue.
			return tx.Commit()
		}

		job.State = core.JobStateActive
		job.Attempts++
		job.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		if err := setJobIndex(tx, job); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		claimed = job
		return nil
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ResetActiveJobs moves every active job back to waiting, ready immediately.
func (r *JobRepository) ResetActiveJobs(ctx context.Context) (int, error) {
	var ids []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(jobActivePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			ids = append(ids, string(key[len(opts.Prefix):]))
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, id := range ids {
		job, err := r.GetJob(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return reset, err
		}
		if job.State != core.JobStateActive {
			continue
		}
		job.State = core.JobStateWaiting
		job.NextRunAt = time.Now().UTC()
		if err := r.UpdateJob(ctx, job); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// firstReady returns the earliest ready index entry due at or before now.
func firstReady(tx *badger.Txn, now time.Time) ([]byte, string, bool) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(jobReadyPrefix + ":")
	iter := tx.NewIterator(opts)
	defer iter.Close()

	iter.Rewind()
	if !iter.Valid() {
		return nil, "", false
	}
	key := iter.Item().KeyCopy(nil)
	runAt, id, ok := parseJobReadyKey(key)
	if !ok || runAt.After(now) {
		return nil, "", false
	}
	return key, id, true
}

func setJobIndex(tx *badger.Txn, job *core.IngestionJob) error {
	switch job.State {
	case core.JobStateWaiting, core.JobStateDelayed:
		return tx.Set(makeJobReadyKey(job.NextRunAt, job.Id), nil)
	case core.JobStateActive:
		return tx.Set(makeJobActiveKey(job.Id), nil)
	}
	return nil
}

func deleteJobIndex(tx *badger.Txn, job *core.IngestionJob) error {
	switch job.State {
	case core.JobStateWaiting, core.JobStateDelayed:
		return tx.Delete(makeJobReadyKey(job.NextRunAt, job.Id))
	case core.JobStateActive:
		return tx.Delete(makeJobActiveKey(job.Id))
	}
	return nil
}

// readJob reads a job within a transaction. Returns nil if the job doesn't exist.
func readJob(tx *badger.Txn, key []byte) (*core.IngestionJob, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job *core.IngestionJob
	err = item.Value(func(val []byte) error {
		var err error
		job, err = storage.UnmarshalJob(val)
		return err
	})
	return job, err
}
