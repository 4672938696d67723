// Package cache stores complete query answers and terminal status responses
// so repeated requests skip the pipeline.
//
// Two backends are provided: MemoryCache (ristretto, per process) and
// RedisCache (shared between processes). Values are only written after a
// complete successful result; a cache failure never fails a request.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/docrag/storage"
)

// DefaultTTL is the lifetime of cached entries when none is configured.
const DefaultTTL = 10 * time.Minute

// ErrUnavailable is returned when the cache backend cannot be reached.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is a byte-valued store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. A zero ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Close() error
}

// QueryKey derives the cache key of a question batch against a document.
// Question order is significant.
func QueryKey(documentURL string, questions []string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(documentURL))
	for _, q := range questions {
		h.Write([]byte{0})
		h.Write([]byte(q))
	}
	return "query:" + hex.EncodeToString(h.Sum(nil))
}

// StatusKey derives the cache key of a status response from its request URL.
func StatusKey(requestURL string) string {
	return "status:" + requestURL
}

// GetAnswers looks up the answers cached for a question batch.
func GetAnswers(ctx context.Context, c Cache, documentURL string, questions []string) ([]string, bool, error) {
	data, ok, err := c.Get(ctx, QueryKey(documentURL, questions))
	if err != nil || !ok {
		return nil, false, err
	}
	answers, err := storage.UnmarshalStrings(data)
	if err != nil {
		return nil, false, err
	}
	if len(answers) != len(questions) {
		// Stale or foreign entry; treat as a miss.
		return nil, false, nil
	}
	return answers, true, nil
}

// SetAnswers caches the answers of a question batch.
func SetAnswers(ctx context.Context, c Cache, documentURL string, questions, answers []string, ttl time.Duration) error {
	return c.Set(ctx, QueryKey(documentURL, questions), storage.MarshalStrings(answers), ttl)
}
