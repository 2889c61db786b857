package tenantcache

import (
	"context"

	"github.com/coursekit/tenantcache/backend"
)

// Health is the connectivity probe result.
type Health struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Ping probes backend connectivity. It never returns an error; outages are
// reported in the Health value so callers can surface them verbatim.
func (c *Cache) Ping(ctx context.Context) Health {
	if c.closed.Load() {
		return Health{Connected: false, Error: ErrClosed.Error()}
	}
	if err := c.be.Ping(ctx); err != nil {
		c.log.Warn("health ping failed", Fields{"err": err})
		return Health{Connected: false, Error: err.Error()}
	}
	return Health{Connected: true}
}

// Info returns endpoint/server metadata: server fields on the native
// flavor, a masked endpoint URL on the REST flavor.
func (c *Cache) Info(ctx context.Context) backend.Info {
	return c.be.Info(ctx)
}
