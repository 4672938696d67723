package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/index"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopFetcher pretends to download without writing anything.
type noopFetcher struct {
	calls atomic.Int32
}

func (f *noopFetcher) Fetch(ctx context.Context, url, dest string) error {
	f.calls.Add(1)
	return nil
}

// cancellingFetcher writes body to dest and then cancels the job context,
// as a queue shutdown would between download and embedding.
type cancellingFetcher struct {
	body   string
	cancel context.CancelFunc
}

func (f *cancellingFetcher) Fetch(ctx context.Context, url, dest string) error {
	if err := os.WriteFile(dest, []byte(f.body), 0o644); err != nil {
		return err
	}
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

// recordingIndex captures upserts in memory.
type recordingIndex struct {
	upserts [][]core.EmbeddedChunk
}

func (r *recordingIndex) Upsert(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error {
	r.upserts = append(r.upserts, chunks)
	return nil
}

func longText(runes int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < runes; i++ {
		fmt.Fprintf(&sb, "word%d ", i)
	}
	return sb.String()[:runes]
}

func serveText(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testJob(t *testing.T, sourceURL string) *core.IngestionJob {
	return &core.IngestionJob{
		Id:         "job-1",
		SourceURL:  sourceURL,
		SavedPath:  filepath.Join(t.TempDir(), "doc.txt"),
		Collection: core.CollectionFor("docs", sourceURL),
	}
}

func setupIndex(t *testing.T) (*index.Adapter, *badger.VectorStore, *mock.MockEmbedder) {
	t.Helper()
	store, err := badger.OpenVectorStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder := mock.NewMockEmbedder()
	adapter, err := index.NewAdapter(store, embedder)
	require.NoError(t, err)
	return adapter, store, embedder
}

func newTestWorker(t *testing.T, embedder *mock.MockEmbedder, idx Indexer, opts ...Option) *Worker {
	t.Helper()
	w, err := NewWorker(embedder, idx, append([]Option{WithPoolSize(2), WithBatchSize(2)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(w.Release)
	return w
}

func TestNewWorker_RequiresCollaborators(t *testing.T) {
	_, err := NewWorker(nil, &recordingIndex{})
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewWorker(mock.NewMockEmbedder(), nil)
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewWorker(mock.NewMockEmbedder(), &recordingIndex{}, WithChunking(100, 100))
	assert.ErrorIs(t, err, ErrInvalidChunking)

	_, err = NewWorker(mock.NewMockEmbedder(), &recordingIndex{}, WithBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestWorker_Process_IndexesDocument(t *testing.T) {
	srv := serveText(t, longText(2500))
	adapter, store, embedder := setupIndex(t)
	w := newTestWorker(t, embedder, adapter)
	ctx := context.Background()

	job := testJob(t, srv.URL+"/doc.txt")
	result, err := w.Process(ctx, job)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Chunks)

	count, err := store.Count(ctx, job.Collection)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// 3 chunks at batch size 2 is two embedding calls.
	assert.Equal(t, 2, embedder.CallCount())
	assert.Equal(t, 3, embedder.TextCount())
}

func TestWorker_Process_Idempotent(t *testing.T) {
	srv := serveText(t, longText(2500))
	adapter, store, embedder := setupIndex(t)
	w := newTestWorker(t, embedder, adapter)
	ctx := context.Background()

	job := testJob(t, srv.URL+"/doc.txt")
	_, err := w.Process(ctx, job)
	require.NoError(t, err)
	_, err = w.Process(ctx, job)
	require.NoError(t, err)

	count, err := store.Count(ctx, job.Collection)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "reprocessing must overwrite, not duplicate")
}

func TestWorker_Process_SourceMissing(t *testing.T) {
	fetcher := &noopFetcher{}
	w := newTestWorker(t, mock.NewMockEmbedder(), &recordingIndex{}, WithFetcher(fetcher))

	job := testJob(t, "https://example.com/doc.txt")
	_, err := w.Process(context.Background(), job)
	assert.ErrorIs(t, err, core.ErrSourceMissing)
	assert.False(t, core.IsPermanent(err))
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestWorker_Process_EmptyFileIsSourceMissing(t *testing.T) {
	w := newTestWorker(t, mock.NewMockEmbedder(), &recordingIndex{}, WithFetcher(&noopFetcher{}))

	job := testJob(t, "https://example.com/doc.txt")
	require.NoError(t, os.WriteFile(job.SavedPath, nil, 0o644))

	_, err := w.Process(context.Background(), job)
	assert.ErrorIs(t, err, core.ErrSourceMissing)
}

func TestWorker_Process_MalformedJob(t *testing.T) {
	fetcher := &noopFetcher{}
	w := newTestWorker(t, mock.NewMockEmbedder(), &recordingIndex{}, WithFetcher(fetcher))

	job := testJob(t, "https://example.com/doc.txt")
	job.SavedPath = ""
	_, err := w.Process(context.Background(), job)
	assert.ErrorIs(t, err, core.ErrMalformedJob)
	assert.True(t, core.IsPermanent(err))
	assert.Zero(t, fetcher.calls.Load(), "nothing is downloaded for a malformed job")
}

func TestWorker_Process_DownloadFailure(t *testing.T) {
	srv := serveText(t, "unused")
	w := newTestWorker(t, mock.NewMockEmbedder(), &recordingIndex{})

	job := testJob(t, srv.URL+"/missing.txt")
	_, err := w.Process(context.Background(), job)
	assert.ErrorIs(t, err, ErrDownloadFailed)

	_, statErr := os.Stat(job.SavedPath)
	assert.True(t, os.IsNotExist(statErr), "failed download leaves no file behind")
}

func TestWorker_Process_EmbeddingFailure(t *testing.T) {
	srv := serveText(t, longText(2500))
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection reset")
	}
	idx := &recordingIndex{}
	w := newTestWorker(t, embedder, idx)

	_, err := w.Process(context.Background(), testJob(t, srv.URL+"/doc.txt"))
	assert.ErrorIs(t, err, core.ErrModelService)
	assert.Empty(t, idx.upserts, "nothing is indexed when embedding fails")
}

func TestWorker_Process_PreservesChunkVectorAssociation(t *testing.T) {
	srv := serveText(t, longText(5000))
	embedder := mock.NewMockEmbedder()
	idx := &recordingIndex{}
	w := newTestWorker(t, embedder, idx)

	result, err := w.Process(context.Background(), testJob(t, srv.URL+"/doc.txt"))
	require.NoError(t, err)
	require.Len(t, idx.upserts, 1)

	chunks := idx.upserts[0]
	assert.Len(t, chunks, result.Chunks)
	for i, ec := range chunks {
		assert.Equal(t, i, ec.Chunk.Index)
		assert.Equal(t, mock.BagOfWordsVector(ec.Chunk.Text, mock.DefaultDimension), ec.Vector)
	}
}

func TestWorker_Process_NoContent(t *testing.T) {
	srv := serveText(t, "   \n\t  ")
	w := newTestWorker(t, mock.NewMockEmbedder(), &recordingIndex{})

	_, err := w.Process(context.Background(), testJob(t, srv.URL+"/blank.txt"))
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestWorker_Process_CancelledBeforeEmbedding(t *testing.T) {
	body := longText(2500)
	embedder := mock.NewMockEmbedder()
	idx := &recordingIndex{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestWorker(t, embedder, idx, WithFetcher(&cancellingFetcher{body: body, cancel: cancel}))

	result, err := w.Process(ctx, testJob(t, "https://example.com/doc.txt"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Empty(t, idx.upserts, "a cancelled job indexes nothing")
}

func TestWorker_Process_CancellationLeavesCollectionUsable(t *testing.T) {
	body := longText(2500)
	adapter, store, embedder := setupIndex(t)
	job := testJob(t, "https://example.com/doc.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestWorker(t, embedder, adapter, WithFetcher(&cancellingFetcher{body: body, cancel: cancel}))
	_, err := w.Process(ctx, job)
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.Dimension(context.Background(), job.Collection)
	assert.ErrorIs(t, err, core.ErrCollectionNotFound, "no dimension is recorded for a cancelled job")

	retry := newTestWorker(t, embedder, adapter, WithFetcher(&cancellingFetcher{body: body}))
	result, err := retry.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Chunks)

	dim, err := store.Dimension(context.Background(), job.Collection)
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultDimension, dim)
}
