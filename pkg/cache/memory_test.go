package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "meta:AAPL", snapshot{Symbol: "AAPL", Price: 1}, time.Minute))

	var got snapshot
	require.NoError(t, s.Get(ctx, "meta:AAPL", &got))
	assert.Equal(t, "AAPL", got.Symbol)

	require.NoError(t, s.DeleteByPattern(ctx, BuildPattern("meta:")))
	assert.ErrorIs(t, s.Get(ctx, "meta:AAPL", &got), ErrCacheMiss)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(ctx, "k", "v", time.Second))

	now = now.Add(2 * time.Second)
	var v string
	assert.ErrorIs(t, s.Get(ctx, "k", &v), ErrCacheMiss)
	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.TryLock(ctx, "warmup", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryLock(ctx, "warmup", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Unlock(ctx, "warmup"))
	ok, _ = s.TryLock(ctx, "warmup", time.Minute)
	assert.True(t, ok)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMemoryMaxSize(2))
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	now = now.Add(time.Millisecond)
	require.NoError(t, s.Set(ctx, "b", "2", 0))
	now = now.Add(time.Millisecond)
	var v string
	require.NoError(t, s.Get(ctx, "a", &v))
	now = now.Add(time.Millisecond)
	require.NoError(t, s.Set(ctx, "c", "3", 0))

	assert.ErrorIs(t, s.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, s.Get(ctx, "a", &v))
}
