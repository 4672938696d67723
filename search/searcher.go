package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/docrag/core"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTopK             = 2
	DefaultConcurrency      = 4
	DefaultCollectionPrefix = "docs"
)

// Index is the similarity search the orchestrator depends on.
// index.Adapter satisfies it.
type Index interface {
	SimilaritySearch(ctx context.Context, collection, queryText string, topK int) ([]core.ScoredChunk, error)
}

// Orchestrator answers batches of questions against a document's collection.
type Orchestrator struct {
	index       Index
	synthesizer Synthesizer
	topK        int
	concurrency int
	prefix      string
	monitor     QueryMonitor
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(o *Orchestrator) error {
		if k <= 0 {
			return errors.New("topK must be positive")
		}
		o.topK = k
		return nil
	}
}

// WithConcurrency bounds how many questions are answered at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return errors.New("concurrency must be positive")
		}
		o.concurrency = n
		return nil
	}
}

// WithCollectionPrefix sets the prefix used to derive collection names.
func WithCollectionPrefix(prefix string) Option {
	return func(o *Orchestrator) error {
		if prefix == "" {
			return errors.New("collection prefix cannot be empty")
		}
		o.prefix = prefix
		return nil
	}
}

// WithMonitor sets the monitor AnswerAll reports to.
func WithMonitor(monitor QueryMonitor) Option {
	return func(o *Orchestrator) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		o.monitor = monitor
		return nil
	}
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(index Index, synthesizer Synthesizer, opts ...Option) (*Orchestrator, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if synthesizer == nil {
		return nil, ErrSynthesizerRequired
	}

	o := &Orchestrator{
		index:       index,
		synthesizer: synthesizer,
		topK:        DefaultTopK,
		concurrency: DefaultConcurrency,
		prefix:      DefaultCollectionPrefix,
		monitor:     &noopMonitor{},
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")

	return o, nil
}

// Collection returns the collection holding the chunks of documentURL.
func (o *Orchestrator) Collection(documentURL string) string {
	return core.CollectionFor(o.prefix, documentURL)
}

// AnswerAll answers questions against documentURL, reporting to the monitor
// set with WithMonitor. answers[i] always corresponds to questions[i].
func (o *Orchestrator) AnswerAll(ctx context.Context, documentURL string, questions []string) ([]string, error) {
	return o.AnswerAllWithMonitor(ctx, documentURL, questions, o.monitor)
}

// AnswerAllWithMonitor answers questions, reporting to monitor instead of the
// orchestrator's own.
// The first failing question cancels the rest of the batch; the error is a
// *QuestionError carrying its position.
func (o *Orchestrator) AnswerAllWithMonitor(ctx context.Context, documentURL string, questions []string, monitor QueryMonitor) ([]string, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	collection := o.Collection(documentURL)
	monitor.Start(collection, questions)
	o.logger.Info("answering questions", "collection", collection, "questions", len(questions))

	answers := make([]string, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, question := range questions {
		g.Go(func() error {
			answer, err := o.answer(gctx, collection, i, question, monitor)
			if err != nil {
				return &QuestionError{Index: i, Question: question, Err: err}
			}
			answers[i] = answer
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("batch failed", "collection", collection, "err", err)
		monitor.Finish(nil, err)
		return nil, err
	}

	monitor.Finish(answers, nil)
	return answers, nil
}

func (o *Orchestrator) answer(ctx context.Context, collection string, index int, question string, monitor QueryMonitor) (string, error) {
	hits, err := o.index.SimilaritySearch(ctx, collection, question, o.topK)
	if err != nil {
		return "", err
	}
	monitor.AfterSearch(index, question, hits)

	answer, err := o.synthesizer.Synthesize(ctx, question, hits)
	if err != nil {
		return "", err
	}
	monitor.AfterAnswer(index, question, answer)
	return answer, nil
}
