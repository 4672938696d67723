package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/docrag/cache"
	"github.com/poiesic/docrag/core"
)

// Ingester runs the ingestion stages for a job. *ingestion.Worker satisfies it.
type Ingester interface {
	Process(ctx context.Context, job *core.IngestionJob) (*core.JobResult, error)
}

// JobHandler executes queued jobs: it ingests the document and, for jobs
// carrying questions, answers them and caches the answers.
type JobHandler struct {
	ingester Ingester
	answerer Answerer
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewJobHandler creates a JobHandler. Its Handle method is a queue.Handler.
func NewJobHandler(ingester Ingester, answerer Answerer, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) (*JobHandler, error) {
	if ingester == nil {
		return nil, ErrIngesterRequired
	}
	if answerer == nil {
		return nil, ErrAnswererRequired
	}
	if c == nil {
		return nil, ErrCacheRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		ingester: ingester,
		answerer: answerer,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger.With("component", "job-handler"),
	}, nil
}

// Handle runs one attempt of job. Answering failures fail the attempt, so a
// retry re-ingests (idempotently) and answers again.
func (h *JobHandler) Handle(ctx context.Context, job *core.IngestionJob) (*core.JobResult, error) {
	result, err := h.ingester.Process(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(job.Questions) == 0 {
		return result, nil
	}

	answers, err := h.answerer.AnswerAll(ctx, job.SourceURL, job.Questions)
	if err != nil {
		return nil, err
	}
	result.Answers = answers

	if err := cache.SetAnswers(ctx, h.cache, job.SourceURL, job.Questions, answers, h.cacheTTL); err != nil {
		h.logger.Warn("cache store failed", "jobId", job.Id, "err", err)
	}
	return result, nil
}
