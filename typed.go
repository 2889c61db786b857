package tenantcache

import (
	"context"
	"encoding/json"
)

// GetAs reads an entry and unmarshals its payload into V. A payload that
// does not decode into V is reported as a miss (and logged); the shapes
// stored and read for one key are expected to agree.
func GetAs[V any](ctx context.Context, c *Cache, tenant, namespace, key string) (V, bool) {
	var v V
	raw, ok := c.Get(ctx, tenant, namespace, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("cache get: payload shape mismatch", Fields{"tenant": tenant, "ns": namespace, "key": key, "err": err})
		var zero V
		return zero, false
	}
	return v, true
}
