// Package service implements submission, synchronous query and job status on
// top of the queue, the ingestion worker and the query orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/docrag/cache"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/queue"
)

const DefaultSyncWait = 5 * time.Minute

var (
	// ErrQueueRequired is returned when a job queue is not provided.
	ErrQueueRequired = errors.New("job queue required")

	// ErrAnswererRequired is returned when a query orchestrator is not provided.
	ErrAnswererRequired = errors.New("answerer required")

	// ErrIngesterRequired is returned when an ingestion worker is not provided.
	ErrIngesterRequired = errors.New("ingester required")

	// ErrCacheRequired is returned when a response cache is not provided.
	ErrCacheRequired = errors.New("cache required")

	// ErrIngestionTimeout is returned when a synchronous query gives up waiting for ingestion.
	ErrIngestionTimeout = errors.New("ingestion did not complete in time")
)

// JobQueue is the part of the queue used by the service. *queue.Queue satisfies it.
type JobQueue interface {
	Enqueue(ctx context.Context, p queue.Payload) (*queue.Handle, error)
	GetJob(ctx context.Context, id string) (*queue.Handle, error)
}

// Answerer answers question batches. *search.Orchestrator satisfies it.
type Answerer interface {
	AnswerAll(ctx context.Context, documentURL string, questions []string) ([]string, error)
	Collection(documentURL string) string
}

// Submission is the outcome of an asynchronous submit: either a job id
// or, on a cache hit, the answers.
type Submission struct {
	JobID   string
	Answers []string
	Cached  bool
}

// JobStatus is the externally visible view of a job.
type JobStatus struct {
	JobID  string
	State  core.JobState
	Result *core.JobResult
	Error  string
}

// Service coordinates submissions and queries.
type Service struct {
	queue       JobQueue
	answerer    Answerer
	cache       cache.Cache
	downloadDir string
	syncWait    time.Duration
	cacheTTL    time.Duration
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithSyncWait bounds how long Query waits for ingestion to complete.
func WithSyncWait(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return errors.New("sync wait must be positive")
		}
		s.syncWait = d
		return nil
	}
}

// WithCacheTTL sets the lifetime of cached answers.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) error {
		s.cacheTTL = d
		return nil
	}
}

// WithDownloadDir sets where documents are saved before parsing.
func WithDownloadDir(dir string) Option {
	return func(s *Service) error {
		if dir == "" {
			return errors.New("download dir cannot be empty")
		}
		s.downloadDir = dir
		return nil
	}
}

// New creates a Service.
func New(q JobQueue, answerer Answerer, c cache.Cache, opts ...Option) (*Service, error) {
	if q == nil {
		return nil, ErrQueueRequired
	}
	if answerer == nil {
		return nil, ErrAnswererRequired
	}
	if c == nil {
		return nil, ErrCacheRequired
	}

	s := &Service{
		queue:       q,
		answerer:    answerer,
		cache:       c,
		downloadDir: filepath.Join(".", "downloads"),
		syncWait:    DefaultSyncWait,
		cacheTTL:    cache.DefaultTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "service")
	return s, nil
}

// Submit enqueues a job that ingests the document and answers the questions.
// A cache hit returns the answers without enqueuing.
func (s *Service) Submit(ctx context.Context, req *core.QueryRequest) (*Submission, error) {
	if err := core.ValidateQueryRequest(req); err != nil {
		return nil, err
	}

	if answers, ok := s.cached(ctx, req); ok {
		return &Submission{Answers: answers, Cached: true}, nil
	}

	h, err := s.queue.Enqueue(ctx, s.payload(req.DocumentURL, req.Questions))
	if err != nil {
		return nil, err
	}
	s.logger.Info("submitted job", "jobId", h.ID(), "document", req.DocumentURL, "questions", len(req.Questions))
	return &Submission{JobID: h.ID()}, nil
}

// Query ingests the document, waits for ingestion to complete and answers the
// questions. The second return value reports a cache hit.
func (s *Service) Query(ctx context.Context, req *core.QueryRequest) (*core.QueryResult, bool, error) {
	if err := core.ValidateQueryRequest(req); err != nil {
		return nil, false, err
	}

	if answers, ok := s.cached(ctx, req); ok {
		return &core.QueryResult{Answers: answers}, true, nil
	}

	h, err := s.queue.Enqueue(ctx, s.payload(req.DocumentURL, nil))
	if err != nil {
		return nil, false, err
	}
	logger := s.logger.With("jobId", h.ID())
	logger.Info("waiting for ingestion", "document", req.DocumentURL)

	waitCtx, cancel := context.WithTimeout(ctx, s.syncWait)
	defer cancel()
	if _, err := h.AwaitCompletion(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, false, fmt.Errorf("%w: job %s after %s", ErrIngestionTimeout, h.ID(), s.syncWait)
		}
		return nil, false, err
	}

	answers, err := s.answerer.AnswerAll(ctx, req.DocumentURL, req.Questions)
	if err != nil {
		return nil, false, err
	}
	s.store(ctx, req.DocumentURL, req.Questions, answers)
	return &core.QueryResult{Answers: answers}, false, nil
}

// Status returns the current view of a job.
// Returns an error wrapping core.ErrNotFound for unknown ids.
func (s *Service) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	h, err := s.queue.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job, err := h.Job(ctx)
	if err != nil {
		return nil, err
	}

	status := &JobStatus{JobID: job.Id, State: job.State}
	switch job.State {
	case core.JobStateCompleted:
		status.Result = job.Result
	case core.JobStateFailed:
		status.Error = job.LastError
	}
	return status, nil
}

func (s *Service) payload(documentURL string, questions []string) queue.Payload {
	return queue.Payload{
		SourceURL:  documentURL,
		SavedPath:  savedPath(s.downloadDir, documentURL),
		Collection: s.answerer.Collection(documentURL),
		Questions:  questions,
	}
}

func (s *Service) cached(ctx context.Context, req *core.QueryRequest) ([]string, bool) {
	answers, ok, err := cache.GetAnswers(ctx, s.cache, req.DocumentURL, req.Questions)
	if err != nil {
		s.logger.Warn("cache lookup failed", "err", err)
		return nil, false
	}
	if ok {
		s.logger.Debug("cache hit", "document", req.DocumentURL)
	}
	return answers, ok
}

func (s *Service) store(ctx context.Context, documentURL string, questions, answers []string) {
	if err := cache.SetAnswers(ctx, s.cache, documentURL, questions, answers, s.cacheTTL); err != nil {
		s.logger.Warn("cache store failed", "err", err)
	}
}

// savedPath names the local copy of a document after its URL hash, keeping
// the URL's extension as a format hint.
func savedPath(dir, documentURL string) string {
	name := core.IDFromContent(documentURL).Hex()
	if u, err := url.Parse(documentURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if len(ext) > 1 && len(ext) <= 6 {
			name += ext
		}
	}
	return filepath.Join(dir, name)
}
