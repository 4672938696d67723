package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultMaxBytes bounds the memory held by a MemoryCache.
const DefaultMaxBytes = 64 << 20

// MemoryCache is an in-process Cache backed by ristretto.
type MemoryCache struct {
	cache      *ristretto.Cache[string, []byte]
	defaultTTL time.Duration
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a MemoryCache holding up to maxBytes of values.
func NewMemoryCache(maxBytes int64, defaultTTL time.Duration) (*MemoryCache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        1e5,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: c, defaultTTL: defaultTTL}, nil
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.cache.Get(key)
	return value, ok, nil
}

// Set implements Cache. The write is visible to Get when Set returns,
// unless ristretto's admission policy rejected it.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.cache.SetWithTTL(key, value, int64(len(value))+int64(len(key)), ttl)
	m.cache.Wait()
	return nil
}

// Close implements Cache.
func (m *MemoryCache) Close() error {
	m.cache.Close()
	return nil
}
