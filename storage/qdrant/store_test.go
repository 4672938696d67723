package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestPointID_Deterministic(t *testing.T) {
	key := core.ChunkKey("https://example.com/a.pdf", 7)

	id := PointID(key)
	assert.Equal(t, id, PointID(key))
	assert.NotEqual(t, id, PointID(core.ChunkKey("https://example.com/a.pdf", 8)))

	_, err := uuid.Parse(id)
	require.NoError(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	chunk := core.DocumentChunk{
		Key:        core.ChunkKey("https://example.com/a.pdf", 3),
		DocumentID: "https://example.com/a.pdf",
		Index:      3,
		Text:       "Claims must be filed within 90 days.",
		Overlap:    200,
		Page:       2,
		Offset:     800,
	}

	assert.Equal(t, chunk, chunkFromPayload(payloadFor(chunk)))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", status.Error(codes.NotFound, "collection missing"), core.ErrCollectionNotFound},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), core.ErrIndexUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "too slow"), core.ErrIndexUnavailable},
		{"context deadline", context.DeadlineExceeded, core.ErrIndexUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err, "c"), tt.want)
		})
	}

	other := status.Error(codes.InvalidArgument, "bad")
	assert.False(t, errors.Is(mapError(other, "c"), core.ErrIndexUnavailable))
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestNew_IsLazy(t *testing.T) {
	store, err := New("127.0.0.1:1")
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestUpsert_RejectsEmptyVector(t *testing.T) {
	store, err := New("127.0.0.1:1")
	require.NoError(t, err)
	defer store.Close()

	doc := "https://example.com/a.pdf"
	err = store.Upsert(context.Background(), "c", []core.EmbeddedChunk{
		{Chunk: core.DocumentChunk{Key: core.ChunkKey(doc, 0), DocumentID: doc, Text: "one"}},
	})
	assert.ErrorIs(t, err, storage.ErrEmptyVector)
}
