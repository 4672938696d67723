package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel is a hand-written llms.Model that records the messages it receives.
type fakeModel struct {
	calls    atomic.Int32
	messages []llms.MessageContent
	reply    string
	err      error
	delay    time.Duration
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls.Add(1)
	f.messages = messages
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerator_ReturnsContentUnmodified(t *testing.T) {
	model := &fakeModel{reply: "  The grace period is 30 days.\n"}
	gen := newGeneratorWithModel(model, ai.DefaultConfig())

	answer, err := gen.Generate(context.Background(), "system text", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "  The grace period is 30 days.\n", answer)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextPart("user prompt"), model.messages[1].Parts[0])
}

func TestGenerator_WrapsErrors(t *testing.T) {
	model := &fakeModel{err: errors.New("503 from upstream")}
	gen := newGeneratorWithModel(model, ai.DefaultConfig())

	_, err := gen.Generate(context.Background(), "s", "p")
	assert.ErrorIs(t, err, core.ErrModelService)
}

func TestGenerator_Timeout(t *testing.T) {
	model := &fakeModel{reply: "late", delay: time.Second}
	cfg := ai.NewConfig(ai.WithRequestTimeout(20 * time.Millisecond))
	gen := newGeneratorWithModel(model, cfg)

	_, err := gen.Generate(context.Background(), "s", "p")
	assert.ErrorIs(t, err, core.ErrModelService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerator_RateLimited(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	cfg := ai.NewConfig(ai.WithGeneratorRPS(20))
	gen := newGeneratorWithModel(model, cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := gen.Generate(context.Background(), "s", "p")
		require.NoError(t, err)
	}
	// Burst of one: the 2nd and 3rd calls each wait ~50ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), model.calls.Load())
}

func TestEmbedder_ServiceErrorIsModelServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	embedder, err := NewEmbedder(ai.NewConfig(ai.WithHost(server.URL)))
	require.NoError(t, err)

	_, err = embedder.EmbedTexts(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, core.ErrModelService)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := ai.DefaultConfig()
	cfg.GeneratorModel = ""

	_, err := NewProvider(cfg)
	assert.Error(t, err)
}
