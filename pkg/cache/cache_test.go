package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	RunID string `json:"run_id"`
	Rows  int    `json:"rows"`
}

func newTestMemory(t *testing.T, opts ...MemoryOption) (*MemoryCache, *time.Time) {
	t.Helper()
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryCleanup(0)}, opts...)...)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	t.Cleanup(func() { _ = mc.Close() })
	return mc, &now
}

func TestMemoryCacheRoundTripStruct(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestMemory(t)

	require.NoError(t, mc.Set(ctx, "run:latest", report{RunID: "r1", Rows: 3}, time.Minute))

	got, err := GetTyped[report](ctx, mc, "run:latest")
	require.NoError(t, err)
	assert.Equal(t, report{RunID: "r1", Rows: 3}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "plain", "hello", 0))
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "hello", s)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(t)

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute))
	*now = now.Add(59 * time.Second)
	var v int
	require.NoError(t, mc.Get(ctx, "k", &v))

	*now = now.Add(time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", 1, time.Hour))
	*now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Hour))
	*now = now.Add(time.Second)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v)) // a is now fresher than b
	*now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Hour))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Get(ctx, "c", &v))
	assert.Equal(t, 3, v)
}

func TestMemoryCacheDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	mc, _ := newTestMemory(t)

	require.NoError(t, mc.Set(ctx, "baseline:BTC", 1, time.Hour))
	require.NoError(t, mc.Set(ctx, "baseline:ETH", 2, time.Hour))
	require.NoError(t, mc.Set(ctx, "run:latest", 3, time.Hour))

	require.NoError(t, mc.DeleteByPrefix(ctx, "baseline:"))
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(t)

	ok, err := mc.TryLock(ctx, "lock:etl", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "lock:etl", time.Minute)
	assert.False(t, ok)

	*now = now.Add(2 * time.Minute)
	ok, _ = mc.TryLock(ctx, "lock:etl", time.Minute)
	assert.True(t, ok, "expired lock is reclaimable")

	require.NoError(t, mc.Unlock(ctx, "lock:etl"))
	ok, _ = mc.TryLock(ctx, "lock:etl", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCacheFillsL1FromL2(t *testing.T) {
	ctx := context.Background()
	l1, _ := newTestMemory(t)
	l2, _ := newTestMemory(t)
	lc := NewLayeredCache(l1, l2, WithLayeredL1TTL(time.Minute))

	require.NoError(t, l2.Set(ctx, "k", report{RunID: "r2"}, time.Hour))
	assert.Equal(t, 0, l1.Len())

	got, err := GetTyped[report](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "r2", got.RunID)
	assert.Equal(t, 1, l1.Len())

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = GetTyped[report](ctx, lc, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLayeredCacheWriteThrough(t *testing.T) {
	ctx := context.Background()
	l1, _ := newTestMemory(t)
	l2, _ := newTestMemory(t)
	lc := NewLayeredCache(l1, l2)

	require.NoError(t, lc.Set(ctx, "k", report{Rows: 7}, time.Hour))
	got, err := GetTyped[report](ctx, l2, "k")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Rows)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "baseline:BTC-USD:kraken:3600", GenerateKey("baseline", "BTC-USD", "kraken", 3600))
	assert.Equal(t, "run", GenerateKey("run"))
}
