package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

// batchEmbedder embeds chunk texts in fixed-size batches on a worker pool.
type batchEmbedder struct {
	embedder  ai.Embedder
	pool      *ants.Pool
	batchSize int
	timeout   time.Duration
	logger    *slog.Logger
}

// embed returns one EmbeddedChunk per chunk, in input order.
// The first failing batch fails the whole call.
func (be *batchEmbedder) embed(ctx context.Context, chunks []core.DocumentChunk) ([]core.EmbeddedChunk, error) {
	out := make([]core.EmbeddedChunk, len(chunks))
	batches := (len(chunks) + be.batchSize - 1) / be.batchSize
	be.logger.Debug("embedding chunks", "chunks", len(chunks), "batches", batches)

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(chunks); start += be.batchSize {
		end := min(start+be.batchSize, len(chunks))
		batch := chunks[start:end]
		offset := start

		wg.Add(1)
		err := be.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			vectors, err := be.embedBatch(ctx, batch)
			if err != nil {
				fail(err)
				return
			}
			for i, chunk := range batch {
				out[offset+i] = core.EmbeddedChunk{Chunk: chunk, Vector: vectors[i]}
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// A batch skipped after cancellation leaves a zero-value chunk behind.
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (be *batchEmbedder) embedBatch(ctx context.Context, batch []core.DocumentChunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	callCtx, cancel := context.WithTimeout(ctx, be.timeout)
	defer cancel()

	vectors, err := be.embedder.EmbedTexts(callCtx, texts)
	if err != nil {
		if errors.Is(err, core.ErrModelService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrModelService, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
			core.ErrModelService, len(batch), len(vectors))
	}
	return vectors, nil
}
