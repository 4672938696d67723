package reindex

import "errors"

var (
	// ErrSourceRequired is returned when no source store is provided.
	ErrSourceRequired = errors.New("source store is required")
	// ErrTargetRequired is returned when no target index is provided.
	ErrTargetRequired = errors.New("target index is required")
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder is required")
	// ErrSameCollection is returned when source and target collections are equal.
	ErrSameCollection = errors.New("source and target collections must differ")
)
