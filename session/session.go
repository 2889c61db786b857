// Package session implements tenant-scoped authentication session
// storage: CRUD with TTL, a per-user concurrent-session cap with
// oldest-first eviction, an append-only activity log, and per-tenant
// statistics.
//
// Failure policy: session lookups must never crash a request path. Every
// method absorbs backend errors, logs them, and degrades to a safe
// default: absent session, zero count, empty list. Callers treat "no
// session" as "not authenticated", not as an outage signal.
package session

import (
	"os"
	"strconv"
	"time"
)

// Data is one session record as persisted (JSON) under
// session:<tenant>:<sessionId>. Timestamps are millisecond epoch.
type Data struct {
	SessionID        string         `json:"sessionId"`
	TenantID         string         `json:"tenantId"`
	UserID           string         `json:"userId"`
	Email            string         `json:"email"`
	Name             string         `json:"name,omitempty"`
	Roles            []string       `json:"roles"`
	Permissions      []string       `json:"permissions"`
	OrganizationName string         `json:"organizationName,omitempty"`
	CreatedAt        int64          `json:"createdAt"`
	LastAccessedAt   int64          `json:"lastAccessedAt"`
	ExpiresAt        int64          `json:"expiresAt"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the record's logical expiry has passed.
func (d Data) Expired(now time.Time) bool {
	return now.UnixMilli() > d.ExpiresAt
}

// Update carries a partial mutation for UpdateSession. Nil pointer/slice
// fields are left untouched; Metadata keys are merged over the existing
// map.
type Update struct {
	Email            *string
	Name             *string
	OrganizationName *string
	Roles            []string
	Permissions      []string
	Metadata         map[string]any
}

// Config tunes session behavior. The zero value enables extend-on-access
// and activity tracking (disable flags follow the library convention of
// zero-value-on defaults).
type Config struct {
	TTL             time.Duration // 0 => 24h
	MaxSessions     int           // per user; 0 => 5, negative => unlimited
	DisableExtend   bool          // skip expiry extension on access
	DisableActivity bool          // skip the activity log entirely
}

const (
	defaultTTL         = 24 * time.Hour
	defaultMaxSessions = 5
	// activityCap bounds each session's activity log; every append trims
	// to the most recent activityCap entries by rank.
	activityCap = 100
)

func (c Config) normalize() Config {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = defaultMaxSessions
	}
	return c
}

// ConfigFromEnv reads session tuning from the environment:
//
//	TENANTCACHE_SESSION_TTL       Go duration, default 24h
//	TENANTCACHE_MAX_SESSIONS      integer, default 5
//	TENANTCACHE_SESSION_EXTEND    "false"/"0" to disable extend-on-access
//	TENANTCACHE_SESSION_ACTIVITY  "false"/"0" to disable activity tracking
func ConfigFromEnv() Config {
	return Config{
		TTL:             envDuration("TENANTCACHE_SESSION_TTL"),
		MaxSessions:     envInt("TENANTCACHE_MAX_SESSIONS"),
		DisableExtend:   !envBool("TENANTCACHE_SESSION_EXTEND", true),
		DisableActivity: !envBool("TENANTCACHE_SESSION_ACTIVITY", true),
	}
}

func envDuration(name string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return 0
	}
	return d
}

func envInt(name string) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return n
}

func envBool(name string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(name))
	if err != nil {
		return def
	}
	return b
}
