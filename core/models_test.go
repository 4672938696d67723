package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "short content", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, IDFromContent(tt.content), IDFromContent(tt.content))
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	assert.NotEqual(t, IDFromContent("content1"), IDFromContent("content2"))
}

func TestID_Hex(t *testing.T) {
	assert.Equal(t, "0000000000000000", ID(0).Hex())
	assert.Equal(t, "00000000000000ff", ID(255).Hex())
	assert.Len(t, IDFromContent("anything").Hex(), 16)
}

func TestChunkKey(t *testing.T) {
	doc := "https://example.com/a.pdf"

	assert.Equal(t, ChunkKey(doc, 3), ChunkKey(doc, 3), "same position must give the same key")
	assert.NotEqual(t, ChunkKey(doc, 3), ChunkKey(doc, 4))
	assert.NotEqual(t, ChunkKey(doc, 0), ChunkKey("https://example.com/b.pdf", 0))
}

func TestCollectionFor(t *testing.T) {
	a := CollectionFor("docs", "https://example.com/a.pdf")
	b := CollectionFor("docs", "https://example.com/b.pdf")

	require.Equal(t, a, CollectionFor("docs", "https://example.com/a.pdf"))
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^docs_[0-9a-f]{16}$`, a)
}

func TestJobState_Terminal(t *testing.T) {
	assert.True(t, JobStateCompleted.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.False(t, JobStateWaiting.Terminal())
	assert.False(t, JobStateActive.Terminal())
	assert.False(t, JobStateDelayed.Terminal())
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrMalformedJob))
	assert.True(t, IsPermanent(ErrDimensionMismatch))
	assert.False(t, IsPermanent(ErrSourceMissing))
	assert.False(t, IsPermanent(ErrModelService))
	assert.False(t, IsPermanent(nil))
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, DotProduct(v, v), 1e-6)

	zero := NormalizeVector([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestDotProduct_MismatchedLengths(t *testing.T) {
	assert.Equal(t, float32(2), DotProduct([]float32{1, 1, 1}, []float32{1, 1}))
}
