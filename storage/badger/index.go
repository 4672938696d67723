package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

const upsertBatchSize = 256

// VectorStore implements storage.VectorStore and storage.ChunkScanner for BadgerDB.
//
// Each collection records the dimension of its first vector. Vectors are
// normalized on write so that search can rank by dot product.
type VectorStore struct {
	backend *Backend
	owned   bool
}

var (
	_ storage.VectorStore  = (*VectorStore)(nil)
	_ storage.ChunkScanner = (*VectorStore)(nil)
)

// NewVectorStore creates a VectorStore on a shared backend.
// Closing the store does not close the backend.
func NewVectorStore(backend *Backend) (*VectorStore, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &VectorStore{backend: backend}, nil
}

// OpenVectorStore opens a dedicated backend at path and creates a VectorStore that owns it.
func OpenVectorStore(path string, inMemory bool) (*VectorStore, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &VectorStore{backend: backend, owned: true}, nil
}

// Close closes the backend if the store owns it.
func (s *VectorStore) Close() error {
	if s.owned {
		return s.backend.Close()
	}
	return nil
}

// Upsert writes chunks keyed by chunk key, overwriting earlier versions.
// Large inputs are written in several transactions of at most upsertBatchSize chunks.
func (s *VectorStore) Upsert(ctx context.Context, collection string, chunks []core.EmbeddedChunk) error {
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		if err := s.upsertBatch(collection, chunks[start:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *VectorStore) upsertBatch(collection string, chunks []core.EmbeddedChunk) error {
	for i := range chunks {
		if len(chunks[i].Vector) == 0 {
			return fmt.Errorf("%w: chunk %d in collection %s", storage.ErrEmptyVector, chunks[i].Chunk.Key, collection)
		}
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		dim, exists, err := readDimension(tx, collection)
		if err != nil {
			return err
		}
		if !exists {
			dim = len(chunks[0].Vector)
			if err := tx.Set(makeCollectionKey(collection), marshalDimension(dim)); err != nil {
				return err
			}
		}

		for i := range chunks {
			if len(chunks[i].Vector) != dim {
				return fmt.Errorf("%w: collection %s has dimension %d, got %d",
					core.ErrDimensionMismatch, collection, dim, len(chunks[i].Vector))
			}
			stored := core.EmbeddedChunk{
				Chunk:  chunks[i].Chunk,
				Vector: core.NormalizeVector(chunks[i].Vector),
			}
			if err := tx.Set(makeChunkKey(collection, stored.Chunk.Key), storage.MarshalEmbeddedChunk(&stored)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Search ranks every chunk of the collection by cosine similarity to vector.
func (s *VectorStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]core.ScoredChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	query := core.NormalizeVector(vector)
	var results []core.ScoredChunk

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		dim, exists, err := readDimension(tx, collection)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", core.ErrCollectionNotFound, collection)
		}
		if dim != len(query) {
			return fmt.Errorf("%w: collection %s has dimension %d, query has %d",
				core.ErrDimensionMismatch, collection, dim, len(query))
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.EmbeddedChunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalEmbeddedChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, core.ScoredChunk{
				Chunk: chunk.Chunk,
				Score: core.DotProduct(query, chunk.Vector),
			})
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortStableFunc(results, func(a, b core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of chunks stored in a collection.
func (s *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeChunkPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Scan calls fn with batches of the collection's chunks in key order.
// The vectors passed to fn are the normalized vectors held by the store.
func (s *VectorStore) Scan(ctx context.Context, collection string, batchSize int, fn func([]core.EmbeddedChunk) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		_, exists, err := readDimension(tx, collection)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", core.ErrCollectionNotFound, collection)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		batch := make([]core.EmbeddedChunk, 0, batchSize)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.EmbeddedChunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalEmbeddedChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			batch = append(batch, *chunk)
			if len(batch) == batchSize {
				if err := fn(batch); err != nil {
					return err
				}
				batch = make([]core.EmbeddedChunk, 0, batchSize)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		if len(batch) > 0 {
			return fn(batch)
		}
		return nil
	}, false)
}

// Dimension returns the vector size recorded for a collection.
func (s *VectorStore) Dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var exists bool
		var err error
		dim, exists, err = readDimension(tx, collection)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", core.ErrCollectionNotFound, collection)
		}
		return nil
	}, false)
	return dim, err
}

func readDimension(tx *badger.Txn, collection string) (int, bool, error) {
	item, err := tx.Get(makeCollectionKey(collection))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var dim int
	err = item.Value(func(val []byte) error {
		var err error
		dim, _, err = varint.Int.Unmarshal(val)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("%w: collection metadata: %w", storage.ErrSerializationFailed, err)
	}
	// A zero dimension never describes real vectors; the next upsert records a new one.
	if dim <= 0 {
		return 0, false, nil
	}
	return dim, true, nil
}

func marshalDimension(dim int) []byte {
	buf := make([]byte, varint.Int.Size(dim))
	varint.Int.Marshal(dim, buf)
	return buf
}
