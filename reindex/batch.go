package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/retry"
)

// BatchProcessor embeds batches of chunks and writes them to a target.
type BatchProcessor struct {
	target         Target
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target Target, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &BatchProcessor{
		target:         target,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the text of chunks and upserts them into collection under
// their existing keys. The input slice is not modified.
func (bp *BatchProcessor) Process(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Text
	}

	var embeddings [][]float32
	err := retry.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("%w: embedding failed after %d attempts: %w", core.ErrModelService, bp.maxRetries, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
			core.ErrModelService, len(chunks), len(embeddings))
	}

	out := make([]core.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = core.EmbeddedChunk{Chunk: c.Chunk, Vector: core.NormalizeVector(embeddings[i])}
	}

	if err := bp.target.Upsert(ctx, collection, out); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}
