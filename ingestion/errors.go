package ingestion

import "errors"

var (
	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrIndexRequired is returned when an index is not provided.
	ErrIndexRequired = errors.New("index required")

	// ErrInvalidChunking is returned for a non-positive chunk size or an overlap outside [0, size).
	ErrInvalidChunking = errors.New("chunk overlap must be in [0, size) and size must be positive")

	// ErrInvalidBatchSize is returned when the embedding batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrUnsupportedFormat is returned when a document is neither PDF, HTML nor text.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrDownloadFailed is returned when the source document cannot be fetched.
	ErrDownloadFailed = errors.New("download failed")

	// ErrNoContent is returned when a parsed document yields no text.
	ErrNoContent = errors.New("document contains no text")
)
