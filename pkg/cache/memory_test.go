package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type unitState struct {
	Current int `json:"current"`
	Cycles  int `json:"cycles"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "state:icu-a", unitState{Current: 2, Cycles: 4}, 0))
	var got unitState
	require.NoError(t, mc.Get(ctx, "state:icu-a", &got))
	assert.Equal(t, unitState{Current: 2, Cycles: 4}, got)

	require.NoError(t, mc.Set(ctx, "plain", "text", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "text", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheLockOwnership(t *testing.T) {
	defer goleak.VerifyNone(t)
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:icu-a", "owner-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:icu-a", "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, mc.Unlock(ctx, "lock:icu-a", "owner-2"), ErrNotOwner)
	require.NoError(t, mc.Unlock(ctx, "lock:icu-a", "owner-1"))

	ok, err = mc.TryLock(ctx, "lock:icu-a", "owner-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	defer goleak.VerifyNone(t)
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	mc.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	var v string
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, "1", v)
}
