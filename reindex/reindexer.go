// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// Source is a collection store that can be scanned and counted.
type Source interface {
	storage.ChunkScanner
	Count(ctx context.Context, collection string) (int, error)
}

// Target receives the re-embedded chunks.
type Target interface {
	Upsert(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error
}

// Config holds configuration for a re-indexing run.
type Config struct {
	// BatchSize is the number of chunks embedded per call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      64,
		ReportInterval: 256,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Reindexer copies a collection into a new one with fresh embeddings.
type Reindexer struct {
	source    Source
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReindexer creates a new reindexer.
// progress receives human-readable progress output (typically os.Stderr).
func NewReindexer(source Source, target Target, embedder ai.Embedder, config *Config, progress io.Writer) (*Reindexer, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if target == nil {
		return nil, ErrTargetRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		source:    source,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(target, embedder, config.MaxRetries, config.RetryDelay),
		logger:    slog.Default().With("component", "reindex"),
	}, nil
}

// Run re-embeds every chunk of collection into target and returns the number
// of chunks written. Returns core.ErrCollectionNotFound if collection is unknown.
func (r *Reindexer) Run(ctx context.Context, collection, target string) (int, error) {
	if collection == target {
		return 0, ErrSameCollection
	}

	total, err := r.source.Count(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in %s\n", collection)
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Re-indexing %d chunks from %s into %s (batch size: %d)\n",
		total, collection, target, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.source.Scan(ctx, collection, r.config.BatchSize, func(chunks []core.EmbeddedChunk) error {
		if err := r.processor.Process(ctx, target, chunks); err != nil {
			return fmt.Errorf("failed to process batch at chunk %d: %w", processed, err)
		}
		processed += len(chunks)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		r.logger.Error("re-index failed", "collection", collection, "target", target, "processed", processed, "err", err)
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Re-indexing complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/elapsed.Seconds())
	r.logger.Info("re-index complete", "collection", collection, "target", target, "chunks", processed)
	return processed, nil
}
