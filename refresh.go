package tenantcache

import (
	"context"
	"encoding/json"
	"time"
)

// refreshFetchTimeout bounds background refresh and deferred writes; they
// run detached from the triggering request's context.
const refreshFetchTimeout = 30 * time.Second

// CacheOrFetch returns the cached value when present; otherwise it calls
// fetch, stores the result, and returns it. fetch failures propagate to
// the caller uncached: the cache has nothing authoritative to fall back
// to. Cache write failures do not: the fresh value is still returned.
func CacheOrFetch[V any](ctx context.Context, c *Cache, tenant, namespace, key string, fetch func(context.Context) (V, error), opts ...SetOption) (V, error) {
	if v, ok := GetAs[V](ctx, c, tenant, namespace, key); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(ctx, tenant, namespace, key, v, opts...)
	return v, nil
}

// CacheWithRefreshAhead is CacheOrFetch plus proactive warming: on a hit
// whose remaining lifetime has dropped below ttl*(1-refreshThreshold), a
// background refresh is spawned (fire-and-forget, failures logged, no
// single-flight collapsing) and the current, possibly slightly stale,
// value is returned immediately. This trades a bounded staleness window
// for the elimination of miss storms at expiry.
//
// refreshThreshold is the fraction of ttl after which a hit arms the
// refresh: 0.8 means "refresh once 80% of the lifetime has elapsed".
func CacheWithRefreshAhead[V any](ctx context.Context, c *Cache, tenant, namespace, key string, ttl time.Duration, refreshThreshold float64, fetch func(context.Context) (V, error)) (V, error) {
	var v V
	entry, ok := c.GetEntry(ctx, tenant, namespace, key)
	if ok {
		if err := json.Unmarshal(entry.Data, &v); err == nil {
			remaining := entry.RemainingTTL(c.now())
			if remaining < time.Duration(float64(ttl)*(1-refreshThreshold)) {
				c.spawn(func() {
					bctx, cancel := context.WithTimeout(context.Background(), refreshFetchTimeout)
					defer cancel()
					fresh, err := fetch(bctx)
					if err != nil {
						c.log.Warn("refresh-ahead fetch failed, serving stale until expiry",
							Fields{"tenant": tenant, "ns": namespace, "key": key, "err": err})
						return
					}
					c.Set(bctx, tenant, namespace, key, fresh, WithTTL(ttl))
				})
			}
			return v, nil
		}
		// undecodable payload: fall through to a synchronous fetch
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(ctx, tenant, namespace, key, v, WithTTL(ttl))
	return v, nil
}

// WriteThrough writes to the system of record first, then updates the
// cache, both synchronously. A write failure propagates and leaves the
// cache untouched; a cache failure after a successful write is absorbed
// (the record is authoritative, the cache will repopulate on read).
func WriteThrough[V any](ctx context.Context, c *Cache, tenant, namespace, key string, value V, write func(context.Context) error, opts ...SetOption) error {
	if err := write(ctx); err != nil {
		return err
	}
	c.Set(ctx, tenant, namespace, key, value, opts...)
	return nil
}

// WriteBehind updates the cache synchronously and defers the system-of-
// record write to a background task. When the deferred write fails, the
// cache entry is invalidated so a value that never persisted cannot keep
// being served. Returns the synchronous cache write's result.
func WriteBehind[V any](ctx context.Context, c *Cache, tenant, namespace, key string, value V, write func(context.Context) error, opts ...SetOption) bool {
	ok := c.Set(ctx, tenant, namespace, key, value, opts...)
	c.spawn(func() {
		bctx, cancel := context.WithTimeout(context.Background(), refreshFetchTimeout)
		defer cancel()
		if err := write(bctx); err != nil {
			c.log.Error("write-behind persist failed, invalidating cache entry",
				Fields{"tenant": tenant, "ns": namespace, "key": key, "err": err})
			c.Delete(bctx, tenant, namespace, key)
		}
	})
	return ok
}
