package tenantcache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coursekit/tenantcache/keyspace"
)

// Set serializes value with its bookkeeping envelope and writes it under
// the tenant/namespace/key with the effective TTL. When tags are supplied,
// the full key is added to each tag's member set and the set's own TTL is
// extended to at least the entry TTL. Returns false on any backend
// failure (logged and counted, never propagated).
//
// Unsupported payload shapes (channels, funcs) are a programming error:
// the write is rejected, logged at error level, and false is returned.
func (c *Cache) Set(ctx context.Context, tenant, namespace, key string, value any, opts ...SetOption) bool {
	if c.closed.Load() {
		return false
	}
	o := applySetOptions(opts)
	ttl := coalesce[time.Duration](o.ttl, c.defaultTTL)

	data, err := json.Marshal(value)
	if err != nil {
		c.log.Error("cache set: unserializable value", Fields{"tenant": tenant, "ns": namespace, "key": key, "err": err})
		return false
	}

	now := c.now()
	entry := Entry{
		Data:      data,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
		Version:   EntryVersion,
		Tags:      o.tags,
		Metadata:  o.metadata,
	}
	raw, err := c.codec.Encode(entry)
	if err != nil {
		c.log.Error("cache set: envelope encode failed", Fields{"tenant": tenant, "ns": namespace, "key": key, "err": err})
		return false
	}

	k := keyspace.Cache(tenant, namespace, key)
	if err := c.be.Set(ctx, k, string(raw), ttl); err != nil {
		c.fail(ctx, "set", tenant, k, err)
		return false
	}
	if len(o.tags) > 0 {
		c.indexTags(ctx, tenant, k, o.tags, ttl)
	}
	c.count(ctx, tenant, "sets")
	return true
}

// Get returns the deserialized payload (bookkeeping stripped) or absent.
// A physically-present entry past its logical expiry is treated as absent
// and deleted in the background.
func (c *Cache) Get(ctx context.Context, tenant, namespace, key string) (json.RawMessage, bool) {
	e, ok := c.GetEntry(ctx, tenant, namespace, key)
	if !ok {
		return nil, false
	}
	return e.Data, true
}

// GetEntry is Get with the full envelope, for callers that need the TTL
// bookkeeping (refresh-ahead). Same hit/miss accounting as Get.
func (c *Cache) GetEntry(ctx context.Context, tenant, namespace, key string) (Entry, bool) {
	var zero Entry
	if c.closed.Load() {
		return zero, false
	}
	k := keyspace.Cache(tenant, namespace, key)
	raw, ok, err := c.be.Get(ctx, k)
	if err != nil {
		c.fail(ctx, "get", tenant, k, err)
		return zero, false
	}
	if !ok {
		c.miss(ctx, tenant, namespace)
		return zero, false
	}
	entry, ok := c.decodeEntry(ctx, tenant, k, raw)
	if !ok {
		c.miss(ctx, tenant, namespace)
		return zero, false
	}
	c.hooks.EntryHit(tenant, namespace)
	c.count(ctx, tenant, "hits")
	return entry, true
}

// decodeEntry validates one raw record. Corrupt or logically-expired
// records are self-heal deleted in the background and reported as absent.
func (c *Cache) decodeEntry(ctx context.Context, tenant, storageKey, raw string) (Entry, bool) {
	var zero Entry
	entry, err := c.codec.Decode([]byte(raw))
	if err != nil || entry.Version != EntryVersion {
		c.log.Warn("cache get: corrupt entry, self-healing", Fields{"tenant": tenant, "key": storageKey, "err": err})
		c.deleteAsync(storageKey)
		return zero, false
	}
	if entry.Expired(c.now()) {
		c.hooks.EntryExpiredOnRead(storageKey)
		c.deleteAsync(storageKey)
		return zero, false
	}
	return entry, true
}

// Delete removes the entry and records a delete. Deleting an absent key is
// not an error; only a backend failure returns false.
func (c *Cache) Delete(ctx context.Context, tenant, namespace, key string) bool {
	if c.closed.Load() {
		return false
	}
	k := keyspace.Cache(tenant, namespace, key)
	if _, err := c.be.Del(ctx, k); err != nil {
		c.fail(ctx, "delete", tenant, k, err)
		return false
	}
	c.count(ctx, tenant, "deletes")
	return true
}

// GetMany reads a batch, preserving input order; misses are nil. Backends
// without native multi-get are served by parallel per-key reads.
func (c *Cache) GetMany(ctx context.Context, tenant, namespace string, keys []string) []json.RawMessage {
	out := make([]json.RawMessage, len(keys))
	if c.closed.Load() || len(keys) == 0 {
		return out
	}

	if c.be.Capabilities().MultiGet {
		full := make([]string, len(keys))
		for i, k := range keys {
			full[i] = keyspace.Cache(tenant, namespace, k)
		}
		vals, err := c.be.MGet(ctx, full...)
		if err == nil && len(vals) == len(keys) {
			for i, v := range vals {
				if v == nil {
					c.miss(ctx, tenant, namespace)
					continue
				}
				if entry, ok := c.decodeEntry(ctx, tenant, full[i], *v); ok {
					out[i] = entry.Data
					c.hooks.EntryHit(tenant, namespace)
					c.count(ctx, tenant, "hits")
				} else {
					c.miss(ctx, tenant, namespace)
				}
			}
			return out
		}
		if err != nil {
			c.fail(ctx, "mget", tenant, keyspace.CachePattern(tenant, namespace), err)
		}
		// fall through to per-key reads
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			if data, ok := c.Get(gctx, tenant, namespace, k); ok {
				out[i] = data
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; misses are nil slots
	return out
}

// SetMany writes a batch in parallel. Returns true only when every member
// write succeeded; individual failures are independent.
func (c *Cache) SetMany(ctx context.Context, tenant, namespace string, items map[string]any, opts ...SetOption) bool {
	if c.closed.Load() || len(items) == 0 {
		return !c.closed.Load()
	}
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for k, v := range items {
		k, v := k, v
		g.Go(func() error {
			if !c.Set(gctx, tenant, namespace, k, v, opts...) {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed.Load() == 0
}

// indexTags adds the full key to each tag's member set and extends the
// set's TTL to at least the entry TTL. The two commands are not atomic; a
// crash in between leaves a tag set whose TTL lags, which self-corrects on
// the next tagged write.
func (c *Cache) indexTags(ctx context.Context, tenant, fullKey string, tags []string, ttl time.Duration) {
	for _, tag := range tags {
		tk := keyspace.Tag(tenant, tag)
		if err := c.be.SAdd(ctx, tk, fullKey); err != nil {
			c.fail(ctx, "tag_index", tenant, tk, err)
			continue
		}
		if _, err := c.be.ExpireAtLeast(ctx, tk, ttl); err != nil {
			c.fail(ctx, "tag_expire", tenant, tk, err)
		}
	}
}

// InvalidateByTags deletes every member of each tag's set plus the set
// itself, and returns the number of entries actually removed.
// Already-absent members are tolerated; one member's failure does not
// abort the rest.
func (c *Cache) InvalidateByTags(ctx context.Context, tenant string, tags []string) int {
	if c.closed.Load() {
		return 0
	}
	total := 0
	for _, tag := range tags {
		tk := keyspace.Tag(tenant, tag)
		members, err := c.be.SMembers(ctx, tk)
		if err != nil {
			c.fail(ctx, "tag_members", tenant, tk, err)
			continue
		}
		for _, m := range members {
			n, err := c.be.Del(ctx, m)
			if err != nil {
				c.fail(ctx, "tag_invalidate", tenant, m, err)
				continue
			}
			total += int(n)
		}
		if _, err := c.be.Del(ctx, tk); err != nil {
			c.fail(ctx, "tag_delete", tenant, tk, err)
		}
	}
	c.countN(ctx, tenant, "deletes", int64(total))
	c.hooks.TagsInvalidated(tenant, tags, total)
	return total
}

// ClearNamespace deletes every entry in one tenant namespace and returns
// the count. On backends without pattern enumeration it returns 0 and a
// *ScanUnsupportedError, distinguishable from "nothing matched".
func (c *Cache) ClearNamespace(ctx context.Context, tenant, namespace string) (int, error) {
	return c.clearPattern(ctx, tenant, "ClearNamespace", keyspace.CachePattern(tenant, namespace))
}

// ClearTenant deletes every cache entry for a tenant across namespaces.
func (c *Cache) ClearTenant(ctx context.Context, tenant string) (int, error) {
	return c.clearPattern(ctx, tenant, "ClearTenant", keyspace.TenantPattern(tenant))
}

func (c *Cache) clearPattern(ctx context.Context, tenant, op, pattern string) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if !c.be.Capabilities().PatternScan {
		c.hooks.ScanUnsupported(op)
		c.log.Warn("pattern enumeration unavailable on this backend", Fields{"op": op, "tenant": tenant})
		return 0, &ScanUnsupportedError{Op: op}
	}
	keys, err := c.be.Keys(ctx, pattern)
	if err != nil {
		c.fail(ctx, op, tenant, pattern, err)
		return 0, err
	}
	total := 0
	for start := 0; start < len(keys); start += 256 {
		end := min(start+256, len(keys))
		n, err := c.be.Del(ctx, keys[start:end]...)
		if err != nil {
			c.fail(ctx, op, tenant, pattern, err)
			continue
		}
		total += int(n)
	}
	c.countN(ctx, tenant, "deletes", int64(total))
	return total, nil
}

// miss records a miss (metric + hook).
func (c *Cache) miss(ctx context.Context, tenant, namespace string) {
	c.hooks.EntryMiss(tenant, namespace)
	c.count(ctx, tenant, "misses")
}

// fail absorbs a backend error: log with context, hook, count.
func (c *Cache) fail(ctx context.Context, op, tenant, key string, err error) {
	c.log.Warn("backend operation failed", Fields{"op": op, "tenant": tenant, "key": key, "err": err})
	c.hooks.BackendError(op, tenant, err)
	c.count(ctx, tenant, "errors")
}

// deleteAsync removes a stale or corrupt record off the request path.
func (c *Cache) deleteAsync(storageKey string) {
	c.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
		defer cancel()
		if _, err := c.be.Del(ctx, storageKey); err != nil {
			c.log.Debug("self-heal delete failed", Fields{"key": storageKey, "err": err})
		}
	})
}

// spawn runs fn on a tracked goroutine so Close can drain background work.
func (c *Cache) spawn(fn func()) {
	if c.closed.Load() {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn()
	}()
}

// Close drains background work and closes the backend client.
func (c *Cache) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.log.Warn("close: background work abandoned", Fields{"err": ctx.Err()})
	}
	return c.be.Close(ctx)
}
