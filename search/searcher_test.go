package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/index"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubIndex returns a single hit echoing the query and records requested topK values.
type stubIndex struct {
	mu    sync.Mutex
	topKs []int
	err   error
}

func (s *stubIndex) SimilaritySearch(ctx context.Context, collection, queryText string, topK int) ([]core.ScoredChunk, error) {
	s.mu.Lock()
	s.topKs = append(s.topKs, topK)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return []core.ScoredChunk{{Chunk: core.DocumentChunk{Text: "context for " + queryText}, Score: 1}}, nil
}

// echoSynthesizer returns the question text. Earlier questions take longer
// so completion order is the reverse of submission order.
type echoSynthesizer struct {
	total   int
	failOn  string
	failErr error
}

func (e *echoSynthesizer) Synthesize(ctx context.Context, question string, hits []core.ScoredChunk) (string, error) {
	if question == e.failOn {
		return "", e.failErr
	}
	var pos int
	fmt.Sscanf(question, "q%d", &pos)
	select {
	case <-time.After(time.Duration(e.total-pos) * 10 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return question, nil
}

// recordingMonitor records hook calls.
type recordingMonitor struct {
	mu       sync.Mutex
	started  bool
	searched int
	answered int
	finished bool
	finalErr error
}

func (m *recordingMonitor) Start(collection string, questions []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}

func (m *recordingMonitor) AfterSearch(index int, question string, hits []core.ScoredChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searched++
}

func (m *recordingMonitor) AfterAnswer(index int, question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered++
}

func (m *recordingMonitor) Finish(answers []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
	m.finalErr = err
}

func TestNewOrchestrator(t *testing.T) {
	idx := &stubIndex{}
	synth := &echoSynthesizer{}

	t.Run("valid configuration", func(t *testing.T) {
		o, err := NewOrchestrator(idx, synth)
		require.NoError(t, err)
		assert.Equal(t, DefaultTopK, o.topK)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		o, err := NewOrchestrator(idx, synth, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, o.logger)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := NewOrchestrator(nil, synth)
		assert.Equal(t, ErrIndexRequired, err)
	})

	t.Run("nil synthesizer", func(t *testing.T) {
		_, err := NewOrchestrator(idx, nil)
		assert.Equal(t, ErrSynthesizerRequired, err)
	})

	t.Run("invalid topK", func(t *testing.T) {
		_, err := NewOrchestrator(idx, synth, WithTopK(0))
		assert.Error(t, err)
	})
}

func TestAnswerAll_PreservesOrder(t *testing.T) {
	questions := []string{"q1", "q2", "q3", "q4", "q5"}
	idx := &stubIndex{}
	o, err := NewOrchestrator(idx, &echoSynthesizer{total: len(questions)}, WithConcurrency(5))
	require.NoError(t, err)

	answers, err := o.AnswerAll(context.Background(), "https://example.com/a.pdf", questions)
	require.NoError(t, err)
	assert.Equal(t, questions, answers)

	for _, k := range idx.topKs {
		assert.Equal(t, 2, k)
	}
}

func TestAnswerAll_WholeBatchFailure(t *testing.T) {
	questions := []string{"q1", "q2", "q3"}
	synth := &echoSynthesizer{
		total:   len(questions),
		failOn:  "q2",
		failErr: fmt.Errorf("%w: upstream 503", core.ErrModelService),
	}
	monitor := &recordingMonitor{}
	o, err := NewOrchestrator(&stubIndex{}, synth)
	require.NoError(t, err)

	answers, err := o.AnswerAllWithMonitor(context.Background(), "https://example.com/a.pdf", questions, monitor)
	assert.Nil(t, answers)

	var qe *QuestionError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 1, qe.Index)
	assert.Equal(t, "q2", qe.Question)
	assert.ErrorIs(t, err, core.ErrModelService)

	assert.True(t, monitor.finished)
	assert.ErrorIs(t, monitor.finalErr, core.ErrModelService)
}

func TestAnswerAll_SearchFailure(t *testing.T) {
	o, err := NewOrchestrator(&stubIndex{err: core.ErrCollectionNotFound}, &echoSynthesizer{})
	require.NoError(t, err)

	_, err = o.AnswerAll(context.Background(), "https://example.com/a.pdf", []string{"q1"})
	assert.ErrorIs(t, err, core.ErrCollectionNotFound)
}

func TestAnswerAll_NoQuestions(t *testing.T) {
	o, err := NewOrchestrator(&stubIndex{}, &echoSynthesizer{})
	require.NoError(t, err)

	_, err = o.AnswerAll(context.Background(), "https://example.com/a.pdf", nil)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestAnswerAll_Monitor(t *testing.T) {
	monitor := &recordingMonitor{}
	o, err := NewOrchestrator(&stubIndex{}, &echoSynthesizer{total: 2})
	require.NoError(t, err)

	_, err = o.AnswerAllWithMonitor(context.Background(), "https://example.com/a.pdf", []string{"q1", "q2"}, monitor)
	require.NoError(t, err)

	assert.True(t, monitor.started)
	assert.Equal(t, 2, monitor.searched)
	assert.Equal(t, 2, monitor.answered)
	assert.True(t, monitor.finished)
	assert.NoError(t, monitor.finalErr)
}

func TestAnswerAll_UsesConfiguredMonitor(t *testing.T) {
	monitor := &recordingMonitor{}
	o, err := NewOrchestrator(&stubIndex{}, &echoSynthesizer{total: 2}, WithMonitor(monitor))
	require.NoError(t, err)

	_, err = o.AnswerAll(context.Background(), "https://example.com/a.pdf", []string{"q1", "q2"})
	require.NoError(t, err)

	assert.True(t, monitor.started)
	assert.Equal(t, 2, monitor.searched)
	assert.True(t, monitor.finished)
}

func TestAnswerAll_EndToEnd(t *testing.T) {
	store, err := badger.OpenVectorStore("", true)
	require.NoError(t, err)
	defer store.Close()

	provider := mock.NewMockProvider()
	adapter, err := index.NewAdapter(store, provider.Embedder())
	require.NoError(t, err)

	synth, err := NewLLMSynthesizer(provider.Generator())
	require.NoError(t, err)
	o, err := NewOrchestrator(adapter, synth, WithLogger(slog.Default()))
	require.NoError(t, err)

	ctx := context.Background()
	docURL := "https://example.com/policy.pdf"
	texts := []string{
		"The grace period for premium payment is thirty days.",
		"Maternity expenses are covered after a waiting period of twenty four months.",
		"Cataract surgery has a waiting period of two years.",
	}
	vectors, err := provider.Embedder().EmbedTexts(ctx, texts)
	require.NoError(t, err)

	chunks := make([]core.EmbeddedChunk, len(texts))
	for i, text := range texts {
		chunks[i] = core.EmbeddedChunk{
			Chunk:  core.DocumentChunk{Key: core.ChunkKey(docURL, i), DocumentID: docURL, Index: i, Text: text, Page: 1},
			Vector: vectors[i],
		}
	}
	require.NoError(t, adapter.Upsert(ctx, o.Collection(docURL), chunks))

	questions := []string{
		"What is the grace period for premium payment?",
		"Are maternity expenses covered?",
	}
	answers, err := o.AnswerAll(ctx, docURL, questions)
	require.NoError(t, err)
	require.Len(t, answers, 2)

	// The mock generator echoes the prompt, exposing the retrieved context.
	assert.Contains(t, answers[0], "thirty days")
	assert.Contains(t, answers[0], questions[0])
	assert.Contains(t, answers[1], "Maternity expenses")
	assert.Contains(t, answers[1], questions[1])
}

func TestAnswerAll_UnknownDocument(t *testing.T) {
	store, err := badger.OpenVectorStore("", true)
	require.NoError(t, err)
	defer store.Close()

	provider := mock.NewMockProvider()
	adapter, err := index.NewAdapter(store, provider.Embedder())
	require.NoError(t, err)
	synth, err := NewLLMSynthesizer(provider.Generator())
	require.NoError(t, err)
	o, err := NewOrchestrator(adapter, synth)
	require.NoError(t, err)

	_, err = o.AnswerAll(context.Background(), "https://example.com/never-ingested.pdf", []string{"q"})
	assert.ErrorIs(t, err, core.ErrCollectionNotFound)
	assert.Zero(t, provider.Generator().(*mock.MockGenerator).CallCount())
}

func TestQuestionError(t *testing.T) {
	inner := errors.New("boom")
	err := &QuestionError{Index: 3, Question: "q", Err: inner}
	assert.Equal(t, "question 3: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.True(t, strings.HasPrefix(err.Error(), "question 3"))
}
