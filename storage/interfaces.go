package storage

import (
	"context"
	"time"

	"github.com/poiesic/docrag/core"
)

// JobRepository persists ingestion jobs for the durable queue.
// Implementations must be thread-safe and support concurrent access.
type JobRepository interface {
	// CreateJob stores a new job. The job must have an Id and a waiting state.
	// Returns ErrDuplicateKey if a job with the same Id already exists.
	CreateJob(ctx context.Context, job *core.IngestionJob) error

	// GetJob retrieves a job by Id.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.IngestionJob, error)

	// UpdateJob replaces a stored job and maintains the ready index.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.IngestionJob) error

	// ClaimNextJob atomically moves the earliest job whose NextRunAt <= now
	// from waiting or delayed to active and increments its attempt counter.
	// Returns nil and no error when no job is ready.
	ClaimNextJob(ctx context.Context, now time.Time) (*core.IngestionJob, error)

	// ResetActiveJobs moves every active job back to waiting.
	// Used at start-up to redeliver jobs abandoned by a crashed process.
	ResetActiveJobs(ctx context.Context) (int, error)

	// Close releases repository resources. It does not close the shared backend.
	Close() error
}

// VectorStore persists embedded chunks and answers similarity queries.
// Collections are created implicitly by the first Upsert.
type VectorStore interface {
	// Upsert inserts or overwrites chunks keyed by their chunk key.
	// Returns core.ErrDimensionMismatch if a vector's size differs from the collection's.
	Upsert(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error

	// Search returns up to limit chunks ordered by descending similarity to vector.
	// Returns core.ErrCollectionNotFound if the collection has never been written.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]core.ScoredChunk, error)

	// Count returns the number of chunks stored in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close closes the store and releases resources.
	Close() error
}

// ChunkScanner iterates over the stored chunks of a collection in key order.
// Iteration stops on the first error returned by fn.
type ChunkScanner interface {
	Scan(ctx context.Context, collection string, batchSize int, fn func([]core.EmbeddedChunk) error) error
}
