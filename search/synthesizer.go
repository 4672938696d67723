package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

const (
	DefaultMaxContextChars = 8000
	DefaultSynthTimeout    = 60 * time.Second
)

// Synthesizer produces one answer for a question from retrieved chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, hits []core.ScoredChunk) (string, error)
}

// LLMSynthesizer answers questions with a generative model.
type LLMSynthesizer struct {
	generator       ai.Generator
	maxContextChars int
	timeout         time.Duration
	logger          *slog.Logger
}

var _ Synthesizer = (*LLMSynthesizer)(nil)

// SynthesizerOption configures an LLMSynthesizer.
type SynthesizerOption func(*LLMSynthesizer) error

// WithMaxContextChars bounds the context part of the prompt, in runes.
func WithMaxContextChars(n int) SynthesizerOption {
	return func(s *LLMSynthesizer) error {
		if n <= 0 {
			return errors.New("max context chars must be positive")
		}
		s.maxContextChars = n
		return nil
	}
}

// WithSynthTimeout bounds each generation call.
func WithSynthTimeout(d time.Duration) SynthesizerOption {
	return func(s *LLMSynthesizer) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		s.timeout = d
		return nil
	}
}

// WithSynthLogger sets a custom logger.
func WithSynthLogger(logger *slog.Logger) SynthesizerOption {
	return func(s *LLMSynthesizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewLLMSynthesizer creates a synthesizer over generator.
func NewLLMSynthesizer(generator ai.Generator, opts ...SynthesizerOption) (*LLMSynthesizer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	s := &LLMSynthesizer{
		generator:       generator,
		maxContextChars: DefaultMaxContextChars,
		timeout:         DefaultSynthTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "synthesizer")
	return s, nil
}

// Synthesize makes one generation call and returns the model output unmodified.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, question string, hits []core.ScoredChunk) (string, error) {
	prompt := buildPrompt(question, hits, s.maxContextChars)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		s.logger.Error("error generating answer", "err", err)
		if errors.Is(err, core.ErrModelService) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", core.ErrModelService, err)
	}
	return answer, nil
}
