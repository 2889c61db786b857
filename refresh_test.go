package tenantcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheOrFetchMissThenHit(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, nil)

	var calls atomic.Int64
	fetch := func(context.Context) (profile, error) {
		calls.Add(1)
		return profile{Name: "Ann"}, nil
	}

	got, err := CacheOrFetch(ctx, c, "t1", "profiles", "u1", fetch)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, int64(1), calls.Load())

	got, err = CacheOrFetch(ctx, c, "t1", "profiles", "u1", fetch)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, int64(1), calls.Load(), "second call must be served from cache")
}

func TestCacheOrFetchErrorPropagatesUncached(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, nil)

	_, err := CacheOrFetch(ctx, c, "t1", "profiles", "u1", func(context.Context) (profile, error) {
		return profile{}, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, ok := c.Get(ctx, "t1", "profiles", "u1")
	assert.False(t, ok, "failed fetch must not be cached")
}

func TestRefreshAheadFreshHitDoesNotRefetch(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, nil)

	var calls atomic.Int64
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		return "v1", nil
	}

	// Miss: synchronous fetch and store.
	got, err := CacheWithRefreshAhead(ctx, c, "t1", "ns", "k", time.Hour, 0.8, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	// Immediate re-read: plenty of lifetime left, no refresh armed.
	got, err = CacheWithRefreshAhead(ctx, c, "t1", "ns", "k", time.Hour, 0.8, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	c.bg.Wait()
	assert.Equal(t, int64(1), calls.Load())
}

func TestRefreshAheadLateHitRefreshesInBackground(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestCache(t, nil)

	serve := atomic.Value{}
	serve.Store("v1")
	var calls atomic.Int64
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		return serve.Load().(string), nil
	}

	_, err := CacheWithRefreshAhead(ctx, c, "t1", "ns", "k", time.Hour, 0.8, fetch)
	require.NoError(t, err)

	// Cross the 80% threshold; the hit must still return the current value
	// while a refresh runs behind it.
	clock.advance(50 * time.Minute)
	serve.Store("v2")

	got, err := CacheWithRefreshAhead(ctx, c, "t1", "ns", "k", time.Hour, 0.8, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", got, "the stale-but-live value is served immediately")

	c.bg.Wait()
	assert.Equal(t, int64(2), calls.Load())

	fresh, ok := GetAs[string](ctx, c, "t1", "ns", "k")
	require.True(t, ok)
	assert.Equal(t, "v2", fresh, "background refresh must have replaced the entry")
}

func TestRefreshAheadFetchFailureKeepsServingStale(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestCache(t, nil)

	var healthy atomic.Bool
	healthy.Store(true)
	fetch := func(context.Context) (string, error) {
		if !healthy.Load() {
			return "", assert.AnError
		}
		return "v1", nil
	}

	_, err := CacheWithRefreshAhead(ctx, c, "t1", "ns", "k", time.Hour, 0.8, fetch)
	require.NoError(t, err)

	clock.advance(55 * time.Minute)
	healthy.Store(false)

	got, err := CacheWithRefreshAhead(ctx, c, "t1", "ns", "k", time.Hour, 0.8, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	c.bg.Wait()
	// The entry survives; the next read still serves it until real expiry.
	v, ok := GetAs[string](ctx, c, "t1", "ns", "k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestWriteThrough(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, nil)

	var persisted atomic.Bool
	err := WriteThrough(ctx, c, "t1", "ns", "k", "v1", func(context.Context) error {
		persisted.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, persisted.Load())

	v, ok := GetAs[string](ctx, c, "t1", "ns", "k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestWriteThroughWriteFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, nil)

	c.Set(ctx, "t1", "ns", "k", "old")

	err := WriteThrough(ctx, c, "t1", "ns", "k", "new", func(context.Context) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	v, ok := GetAs[string](ctx, c, "t1", "ns", "k")
	require.True(t, ok)
	assert.Equal(t, "old", v, "a failed record write must not poison the cache")
}

func TestWriteBehind(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, nil)

	var persisted atomic.Bool
	ok := WriteBehind(ctx, c, "t1", "ns", "k", "v1", func(context.Context) error {
		persisted.Store(true)
		return nil
	})
	require.True(t, ok)

	// Cache is current before the deferred write lands.
	v, hit := GetAs[string](ctx, c, "t1", "ns", "k")
	require.True(t, hit)
	assert.Equal(t, "v1", v)

	c.bg.Wait()
	assert.True(t, persisted.Load())
}

func TestWriteBehindFailureInvalidatesEntry(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t, nil)

	ok := WriteBehind(ctx, c, "t1", "ns", "k", "v1", func(context.Context) error {
		return assert.AnError
	})
	require.True(t, ok, "the synchronous cache write itself succeeded")

	c.bg.Wait()
	_, hit := c.Get(ctx, "t1", "ns", "k")
	assert.False(t, hit, "an unpersisted value must not keep being served")
}
