// Package backend defines the remote key-value store abstraction used by
// tenantcache.
//
// Two client flavors implement the same Client interface: a persistent-
// connection native-protocol client (backend/redisnative) and a stateless
// request/response REST client (backend/redisrest). Which one a deployment
// uses is a configuration decision; everything above this package is
// flavor-agnostic.
//
// Not every flavor supports every operation. Capability differences are
// surfaced through Capabilities rather than by type-switching on the
// concrete client.
package backend

import (
	"context"
	"time"
)

// Provider selects the client flavor.
type Provider string

const (
	// ProviderRedis is the persistent-connection native-protocol client
	// (connection pool, retries, keep-alive).
	ProviderRedis Provider = "redis"
	// ProviderREST is the stateless request/response client (one HTTP
	// round-trip per command, bearer-token auth).
	ProviderREST Provider = "rest"
)

// Z is a sorted-set member with its score.
type Z struct {
	Score  float64
	Member string
}

// Capabilities reports optional operations a client flavor supports.
// Callers branch on these flags instead of on concrete client types.
type Capabilities struct {
	// PatternScan reports whether Keys (pattern enumeration) is available.
	PatternScan bool
	// MultiGet reports whether MGet is a native batched operation.
	// When false, MGet returns ErrMultiGetUnsupported and callers must
	// fall back to per-key Gets.
	MultiGet bool
}

// Info describes the connected store for health/ops reporting.
// Server is populated only by the native-protocol client; the REST client
// reports a masked endpoint URL instead.
type Info struct {
	Provider Provider
	Endpoint string
	Server   map[string]string
}

// Client is the logical operation set both flavors expose. All methods are
// safe for concurrent use. TTLs are truncated to whole seconds at the
// storage boundary; ttl <= 0 means no expiry.
type Client interface {
	// Strings.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	Exists(ctx context.Context, key string) (bool, error)

	// Hashes.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)

	// Sets.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Sorted sets.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error)

	// Key management.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ExpireAtLeast raises the key's TTL to at least ttl: it extends a
	// shorter TTL, pins one on a key without TTL, and leaves a longer TTL
	// untouched. Never shortens a lifetime.
	ExpireAtLeast(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Keys enumerates keys matching a glob pattern. Flavors without
	// PatternScan return ErrPatternScanUnsupported.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Info returns endpoint/server metadata for operational callers.
	Info(ctx context.Context) Info

	Capabilities() Capabilities

	// Close releases connections. Safe to call more than once.
	Close(ctx context.Context) error
}

// Config carries connection parameters for either flavor. Zero timeout
// values fall back to DefaultConnectTimeout / DefaultCommandTimeout.
type Config struct {
	Provider Provider

	// Request/response flavor.
	RESTURL   string
	RESTToken string

	// Persistent-connection flavor.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	Logger Logger
}

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 5 * time.Second
)

// Normalize fills defaulted fields. It does not validate; flavor
// constructors fail fast with a *ConfigError when required parameters for
// their flavor are missing.
func (c Config) Normalize() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	return c
}
