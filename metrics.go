package tenantcache

import (
	"context"
	"strconv"

	"github.com/coursekit/tenantcache/keyspace"
)

// Stats are per-tenant operation counters. They increase monotonically and
// reset only when the underlying counter hash expires (rolling window,
// 24h by default), never by user action.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`
}

// HitRate returns hits/(hits+misses), or 0 when there were no reads.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats reads a tenant's counter hash. Unlike the cache operations this
// returns the backend error: operational callers want to see outages.
func (c *Cache) Stats(ctx context.Context, tenant string) (Stats, error) {
	var s Stats
	if c.closed.Load() {
		return s, ErrClosed
	}
	fields, err := c.be.HGetAll(ctx, keyspace.Metrics(tenant))
	if err != nil {
		return s, err
	}
	s.Hits = counter(fields, "hits")
	s.Misses = counter(fields, "misses")
	s.Sets = counter(fields, "sets")
	s.Deletes = counter(fields, "deletes")
	s.Errors = counter(fields, "errors")
	return s, nil
}

func counter(fields map[string]string, name string) int64 {
	n, _ := strconv.ParseInt(fields[name], 10, 64)
	return n
}

// count bumps one counter field by one; countN by delta, so bulk removals
// keep the deletes counter consistent with the per-entry path. The window
// TTL is pinned when the field is freshly created (increment result equals
// the delta). Failures here are logged at debug only; metric recording
// must never recurse into fail().
func (c *Cache) count(ctx context.Context, tenant, field string) {
	c.countN(ctx, tenant, field, 1)
}

func (c *Cache) countN(ctx context.Context, tenant, field string, delta int64) {
	if !c.metrics || delta <= 0 {
		return
	}
	mk := keyspace.Metrics(tenant)
	n, err := c.be.HIncrBy(ctx, mk, field, delta)
	if err != nil {
		c.log.Debug("metric increment failed", Fields{"tenant": tenant, "field": field, "err": err})
		return
	}
	if n == delta {
		if _, err := c.be.Expire(ctx, mk, c.metricsWindow); err != nil {
			c.log.Debug("metric window expire failed", Fields{"tenant": tenant, "err": err})
		}
	}
}
