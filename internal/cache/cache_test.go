// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(0) // No cleanup for this test
	ctx := context.Background()

	cache.Set(ctx, "key1", []byte("value1"), 5*time.Minute)

	val, ok := cache.Get(ctx, "key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, []byte("value1"), val)

	_, ok = cache.Get(ctx, "nonexistent")
	assert.False(t, ok, "expected not to find nonexistent key")
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache(0)
	ctx := context.Background()

	cache.Set(ctx, "shortlived", []byte("value"), 50*time.Millisecond)

	val, ok := cache.Get(ctx, "shortlived")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), val)

	time.Sleep(100 * time.Millisecond)

	_, ok = cache.Get(ctx, "shortlived")
	assert.False(t, ok, "expected key to be expired")
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := NewMemoryCache(0)
	ctx := context.Background()

	cache.Set(ctx, "a", []byte("1"), time.Minute)
	cache.Set(ctx, "b", []byte("2"), time.Minute)

	cache.Delete(ctx, "a")
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok, "deleted key should be gone")

	cache.Clear(ctx)
	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok, "cleared cache should be empty")
	assert.Equal(t, 0, cache.Stats().CurrentSize)
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(0)
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"), time.Minute)
	cache.Get(ctx, "k")
	cache.Get(ctx, "absent")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCache_Janitor(t *testing.T) {
	cache := NewMemoryCache(20 * time.Millisecond)
	ctx := context.Background()

	mc, ok := cache.(*memoryCache)
	require.True(t, ok)
	defer mc.Stop()

	cache.Set(ctx, "doomed", []byte("v"), 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return cache.Stats().CurrentSize == 0
	}, time.Second, 10*time.Millisecond, "janitor should evict the expired entry")

	assert.GreaterOrEqual(t, cache.Stats().Evictions, int64(1))
}

func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok, "noop cache never stores anything")
	assert.Equal(t, Stats{}, cache.Stats())
}
