package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T) *MemoryCache {
	t.Helper()
	c, err := NewMemoryCache(1<<20, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestQueryKey(t *testing.T) {
	url := "https://example.com/a.pdf"
	k1 := QueryKey(url, []string{"q1", "q2"})

	assert.Equal(t, k1, QueryKey(url, []string{"q1", "q2"}), "deterministic")
	assert.NotEqual(t, k1, QueryKey(url, []string{"q2", "q1"}), "order matters")
	assert.NotEqual(t, k1, QueryKey(url, []string{"q1q2"}), "question boundaries matter")
	assert.NotEqual(t, k1, QueryKey("https://example.com/b.pdf", []string{"q1", "q2"}))
	assert.Contains(t, k1, "query:")
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 50*time.Millisecond))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "k")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestNewMemoryCache_DefaultTTL(t *testing.T) {
	c, err := NewMemoryCache(0, 0)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 10*time.Minute, c.defaultTTL)
	assert.Equal(t, int64(DefaultMaxBytes), c.cache.MaxCost())
}

func TestAnswersRoundTrip(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()
	url := "https://example.com/a.pdf"
	questions := []string{"What is covered?", "Is dental included?"}

	_, ok, err := GetAnswers(ctx, c, url, questions)
	require.NoError(t, err)
	assert.False(t, ok)

	answers := []string{"Hospital stays.", "No, dental is excluded."}
	require.NoError(t, SetAnswers(ctx, c, url, questions, answers, 0))

	got, ok, err := GetAnswers(ctx, c, url, questions)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, answers, got)

	_, ok, err = GetAnswers(ctx, c, url, questions[:1])
	require.NoError(t, err)
	assert.False(t, ok, "a different batch is a different entry")
}

func TestGetAnswers_LengthMismatchIsMiss(t *testing.T) {
	c := newMemory(t)
	ctx := context.Background()
	url := "https://example.com/a.pdf"
	questions := []string{"a", "b"}

	require.NoError(t, SetAnswers(ctx, c, url, questions, []string{"only one"}, 0))
	_, ok, err := GetAnswers(ctx, c, url, questions)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, RedisOptions{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	assert.ErrorIs(t, err, ErrUnavailable)
}
