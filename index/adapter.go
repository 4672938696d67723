// Package index adapts a storage.VectorStore into the vector index used by
// ingestion and querying: it embeds query text, bounds every store call with a
// timeout and translates backend failures into core errors.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// DefaultTimeout bounds each store call.
const DefaultTimeout = 10 * time.Second

var (
	// ErrStoreRequired is returned when no vector store is provided.
	ErrStoreRequired = errors.New("vector store is required")
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder is required")
	// ErrInvalidTopK is returned for a non-positive result count.
	ErrInvalidTopK = errors.New("topK must be positive")
)

// Adapter is the vector index seen by the rest of the pipeline.
type Adapter struct {
	store    storage.VectorStore
	embedder ai.Embedder
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter) error

// WithTimeout sets the per-call store timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		a.timeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		a.logger = logger
		return nil
	}
}

// NewAdapter creates an Adapter over store, embedding queries with embedder.
func NewAdapter(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Adapter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	a := &Adapter{
		store:    store,
		embedder: embedder,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "index")
	return a, nil
}

// Upsert writes chunks into collection. Repeating an upsert with the same chunk
// keys overwrites rather than duplicates.
func (a *Adapter) Upsert(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.store.Upsert(callCtx, collection, chunks); err != nil {
		return a.translate(ctx, err, "upsert", collection)
	}
	a.logger.Debug("upserted chunks", "collection", collection, "count", len(chunks))
	return nil
}

// SimilaritySearch embeds queryText and returns at most topK chunks of collection,
// most similar first.
func (a *Adapter) SimilaritySearch(ctx context.Context, collection, queryText string, topK int) ([]core.ScoredChunk, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	vector, err := a.embedder.EmbedText(ctx, queryText)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results, err := a.store.Search(callCtx, collection, vector, topK)
	if err != nil {
		return nil, a.translate(ctx, err, "search", collection)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// translate maps a store error to core errors. A deadline hit by the adapter's
// own timeout, or a closed store, becomes core.ErrIndexUnavailable; cancellation
// of the caller's context is returned as is.
func (a *Adapter) translate(parent context.Context, err error, op, collection string) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	switch {
	case errors.Is(err, core.ErrIndexUnavailable):
		// already classified by the store
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %s timed out after %s", core.ErrIndexUnavailable, op, a.timeout)
	case errors.Is(err, storage.ErrStorageClosed):
		err = fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	a.logger.Warn("index call failed", "op", op, "collection", collection, "err", err)
	return err
}
