package search

import (
	"strconv"
	"strings"

	"github.com/poiesic/docrag/core"
)

const systemPrompt = `You answer questions about a document using only the context excerpts you are given.

Rules:
- Use only facts stated in the context. If the context does not contain the answer, say that the document does not specify it.
- Answer directly. Never refer to the context, the excerpts or the document itself (do not write "based on the context" or similar).
- For yes/no questions, state yes or no and then give the reason, citing the relevant conditions or figures.
- Keep answers concise: one to three sentences.`

// buildPrompt lays out numbered context blocks followed by the question verbatim.
// Context is cut at maxChars runes; the question is never truncated.
func buildPrompt(question string, chunks []core.ScoredChunk, maxChars int) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")

	remaining := maxChars
	for i, hit := range chunks {
		text := strings.TrimSpace(hit.Chunk.Text)
		if text == "" {
			continue
		}
		if remaining <= 0 {
			break
		}
		text = truncateRunes(text, remaining)
		remaining -= len([]rune(text))

		sb.WriteString("[")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("] ")
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
