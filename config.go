package tenantcache

import (
	"os"
	"strconv"
	"time"

	"github.com/coursekit/tenantcache/backend"
)

// Environment variables (all optional unless the selected provider needs
// them):
//
//	TENANTCACHE_PROVIDER         "redis" (default) or "rest"
//	TENANTCACHE_REST_URL         REST endpoint base URL
//	TENANTCACHE_REST_TOKEN       REST bearer token
//	TENANTCACHE_REDIS_ADDR       host:port
//	TENANTCACHE_REDIS_PASSWORD
//	TENANTCACHE_REDIS_DB         integer, default 0
//	TENANTCACHE_REDIS_TLS        "true"/"1" to enable TLS
//	TENANTCACHE_CONNECT_TIMEOUT  Go duration, default 10s
//	TENANTCACHE_COMMAND_TIMEOUT  Go duration, default 5s
//	TENANTCACHE_DEFAULT_TTL      Go duration, default 1h
//	TENANTCACHE_LIST_TTL         Go duration, default 5m
//	TENANTCACHE_METRICS          "false"/"0" to disable counters
//	TENANTCACHE_METRICS_WINDOW   Go duration, default 24h
//	TENANTCACHE_MAX_ENTRY_BYTES  integer, default 0 (unlimited)

// BackendConfigFromEnv assembles a backend.Config from the environment.
// Validation happens at client construction, not here.
func BackendConfigFromEnv() backend.Config {
	return backend.Config{
		Provider:       backend.Provider(os.Getenv("TENANTCACHE_PROVIDER")),
		RESTURL:        os.Getenv("TENANTCACHE_REST_URL"),
		RESTToken:      os.Getenv("TENANTCACHE_REST_TOKEN"),
		RedisAddr:      os.Getenv("TENANTCACHE_REDIS_ADDR"),
		RedisPassword:  os.Getenv("TENANTCACHE_REDIS_PASSWORD"),
		RedisDB:        envInt("TENANTCACHE_REDIS_DB", 0),
		RedisTLS:       envBool("TENANTCACHE_REDIS_TLS", false),
		ConnectTimeout: envDuration("TENANTCACHE_CONNECT_TIMEOUT", 0),
		CommandTimeout: envDuration("TENANTCACHE_COMMAND_TIMEOUT", 0),
	}
}

// OptionsFromEnv assembles cache Options over an existing client.
func OptionsFromEnv(client backend.Client) Options {
	return Options{
		Backend:        client,
		DefaultTTL:     envDuration("TENANTCACHE_DEFAULT_TTL", 0),
		ListTTL:        envDuration("TENANTCACHE_LIST_TTL", 0),
		DisableMetrics: !envBool("TENANTCACHE_METRICS", true),
		MetricsWindow:  envDuration("TENANTCACHE_METRICS_WINDOW", 0),
		MaxEntryBytes:  envInt("TENANTCACHE_MAX_ENTRY_BYTES", 0),
	}
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
