package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaccess/internal/observability"
)

func newTestMemoryCache(t *testing.T, cfg MemoryConfig) Cache {
	t.Helper()

	c := NewMemory(cfg, observability.NopLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, MemoryConfig{MaxEntries: 10})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), time.Minute))

	value, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), value)
}

func TestMemoryCache_Miss(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, MemoryConfig{MaxEntries: 10})

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, MemoryConfig{MaxEntries: 10})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "key1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Overwrite(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, MemoryConfig{MaxEntries: 10})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("old"), time.Minute))
	require.NoError(t, c.Set(ctx, "key1", []byte("new"), time.Minute))

	value, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), value)
}

func TestMemoryCache_Delete(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, MemoryConfig{MaxEntries: 10})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), time.Minute))
	require.NoError(t, c.Delete(ctx, "key1"))

	_, err := c.Get(ctx, "key1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, MemoryConfig{MaxEntries: 2})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	// Touch "a" so "b" becomes the eviction candidate.
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryCache_Stats(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, MemoryConfig{MaxEntries: 10})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), time.Minute))
	_, _ = c.Get(ctx, "key1")
	_, _ = c.Get(ctx, "absent")

	stats := c.(interface{ Stats() Stats }).Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
	assert.InDelta(t, 50.0, stats.HitRate(), 0.01)
}

func TestStats_HitRateEmpty(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Stats{}.HitRate())
}
