package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

const (
	DefaultBatchSize    = 32
	DefaultEmbedTimeout = 60 * time.Second
)

// Worker runs the ingestion stages for queued jobs.
// A Worker is safe for concurrent use; the embedding pool is shared by all jobs.
type Worker struct {
	fetcher         Fetcher
	parser          DocumentParser
	splitter        *Splitter
	embedder        ai.Embedder
	index           Indexer
	embeddingPool   *ants.Pool
	batchSize       int
	embedTimeout    time.Duration
	downloadTimeout time.Duration
	logger          *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker) error

// WithPoolSize sets the number of embedding batches processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(w *Worker) error {
		if size < 1 {
			size = 1
		}
		if w.embeddingPool != nil {
			w.embeddingPool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		w.embeddingPool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithChunking sets the chunk size and overlap, in runes.
// Default is 1000 runes with 200 runes of overlap.
func WithChunking(size, overlap int) Option {
	return func(w *Worker) error {
		splitter, err := NewSplitter(size, overlap)
		if err != nil {
			return err
		}
		w.splitter = splitter
		return nil
	}
}

// WithBatchSize sets how many chunk texts go into one embedding call.
func WithBatchSize(size int) Option {
	return func(w *Worker) error {
		if size <= 0 {
			return ErrInvalidBatchSize
		}
		w.batchSize = size
		return nil
	}
}

// WithEmbedTimeout bounds each embedding call.
func WithEmbedTimeout(d time.Duration) Option {
	return func(w *Worker) error {
		if d > 0 {
			w.embedTimeout = d
		}
		return nil
	}
}

// WithDownloadTimeout bounds the download of the default HTTP fetcher.
// It has no effect when WithFetcher is used.
func WithDownloadTimeout(d time.Duration) Option {
	return func(w *Worker) error {
		w.downloadTimeout = d
		return nil
	}
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(w *Worker) error {
		w.fetcher = f
		return nil
	}
}

// WithParser replaces the document parser.
func WithParser(p DocumentParser) Option {
	return func(w *Worker) error {
		w.parser = p
		return nil
	}
}

// NewWorker creates an ingestion worker that embeds with embedder and writes to index.
func NewWorker(embedder ai.Embedder, index Indexer, opts ...Option) (*Worker, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	splitter, _ := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	w := &Worker{
		parser:          NewParser(),
		splitter:        splitter,
		embedder:        embedder,
		index:           index,
		embeddingPool:   pool,
		batchSize:       DefaultBatchSize,
		embedTimeout:    DefaultEmbedTimeout,
		downloadTimeout: DefaultDownloadTimeout,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(w); optErr != nil {
			w.Release()
			return nil, optErr
		}
	}

	w.logger = w.logger.With("component", "ingestion")
	if w.fetcher == nil {
		w.fetcher = NewHTTPFetcher(w.downloadTimeout, w.logger)
	}
	return w, nil
}

// Process runs one job: download, parse, split, embed and index.
// The returned error is classified for the queue: core.ErrMalformedJob is
// permanent, everything else may be retried.
func (w *Worker) Process(ctx context.Context, job *core.IngestionJob) (*core.JobResult, error) {
	if err := core.ValidateJob(job); err != nil {
		return nil, err
	}
	logger := w.logger.With("jobId", job.Id, "collection", job.Collection)

	if err := w.fetcher.Fetch(ctx, job.SourceURL, job.SavedPath); err != nil {
		return nil, err
	}
	if err := checkSource(job.SavedPath); err != nil {
		return nil, err
	}

	pages, err := w.parser.Parse(ctx, job.SavedPath, job.SourceURL)
	if err != nil {
		return nil, err
	}

	chunks := w.splitter.Split(job.SourceURL, pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, job.SourceURL)
	}
	logger.Info("document split", "pages", len(pages), "chunks", len(chunks))

	be := &batchEmbedder{
		embedder:  w.embedder,
		pool:      w.embeddingPool,
		batchSize: w.batchSize,
		timeout:   w.embedTimeout,
		logger:    logger,
	}
	embedded, err := be.embed(ctx, chunks)
	if err != nil {
		logger.Error("error generating embeddings", "err", err)
		return nil, err
	}

	if err := w.index.Upsert(ctx, job.Collection, embedded); err != nil {
		return nil, err
	}
	logger.Info("document indexed", "chunks", len(embedded))

	return &core.JobResult{Success: true, Chunks: len(embedded)}, nil
}

// Release releases the embedding pool.
// The worker should not be used after calling Release.
func (w *Worker) Release() {
	if w.embeddingPool != nil {
		w.embeddingPool.Release()
	}
}

// checkSource verifies a downloaded document is present and non-empty.
func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrSourceMissing, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", core.ErrSourceMissing, path)
	}
	return nil
}
