package search

import (
	"log/slog"

	"github.com/poiesic/docrag/core"
)

// QueryMonitor provides hooks to observe a batch of questions being answered.
// Questions are answered concurrently, so implementations must be safe for
// concurrent use.
type QueryMonitor interface {
	Start(collection string, questions []string)
	AfterSearch(index int, question string, hits []core.ScoredChunk)
	AfterAnswer(index int, question, answer string)
	Finish(answers []string, err error)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ []string)                        {}
func (n *noopMonitor) AfterSearch(_ int, _ string, _ []core.ScoredChunk) {}
func (n *noopMonitor) AfterAnswer(_ int, _, _ string)                    {}
func (n *noopMonitor) Finish(_ []string, _ error)                        {}

// LogMonitor logs retrieved chunks and answers at debug level.
type LogMonitor struct {
	logger *slog.Logger
}

var _ QueryMonitor = (*LogMonitor)(nil)

// NewLogMonitor creates a LogMonitor. A nil logger uses slog.Default().
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{logger: logger.With("component", "query-monitor")}
}

func (m *LogMonitor) Start(collection string, questions []string) {
	m.logger.Debug("query started", "collection", collection, "questions", len(questions))
}

func (m *LogMonitor) AfterSearch(index int, question string, hits []core.ScoredChunk) {
	m.logger.Debug("chunks retrieved", "question", index, "text", question, "hits", len(hits))
	for rank, hit := range hits {
		m.logger.Debug("retrieved chunk",
			"question", index,
			"rank", rank,
			"score", hit.Score,
			"page", hit.Chunk.Page,
			"chunk", hit.Chunk.Index)
	}
}

func (m *LogMonitor) AfterAnswer(index int, question, answer string) {
	m.logger.Debug("question answered", "question", index, "length", len(answer))
}

func (m *LogMonitor) Finish(answers []string, err error) {
	if err != nil {
		m.logger.Debug("query failed", "err", err)
		return
	}
	m.logger.Debug("query finished", "answers", len(answers))
}
