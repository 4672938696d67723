package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	limiter     *rate.Limiter
	timeout     time.Duration
	temperature float64
	logger      *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GeneratorHost),
		openai.WithToken(tokenOrNone(config.GeneratorAPIKey)),
		openai.WithModel(config.GeneratorModel),
	)
	if err != nil {
		return nil, err
	}

	return newGeneratorWithModel(client, config), nil
}

func newGeneratorWithModel(client llms.Model, config *ai.Config) *Generator {
	var limiter *rate.Limiter
	if config.GeneratorRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.GeneratorRPS), 1)
	}
	return &Generator{
		client:      client,
		limiter:     limiter,
		timeout:     config.RequestTimeout,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-generator"),
	}
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate sends the system instruction and prompt as a two-message chat and
// returns the first choice's content unmodified.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limit wait: %w", core.ErrModelService, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(system),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
			},
		},
	}

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", fmt.Errorf("%w: generate: %w", core.ErrModelService, err)
	}

	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: no choices returned from model", core.ErrModelService)
	}

	return response.Choices[0].Content, nil
}
