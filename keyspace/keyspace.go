// Package keyspace derives the storage keys used by tenantcache.
//
// Every key embeds both a resource-kind prefix and the tenant id, so keys
// cannot collide across resource kinds for one tenant nor across tenants
// for one resource kind. These functions are the single choke point for
// tenant scoping: they are pure, carry no global state, and everything
// above them addresses storage exclusively through them.
//
// Layout (all ASCII):
//
//	cache:<tenant>:<namespace>:<key>      JSON cache entry
//	cache_tags:<tenant>:<tag>             set of full cache keys
//	cache_metrics:<tenant>                hash of counters
//	session:<tenant>:<sessionId>          JSON session record
//	user_sessions:<tenant>:<userId>       set of session ids
//	session_activity:<tenant>:<sessionId> sorted set of "<ts>:<action>"
package keyspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Well-known cache namespaces used by the tenant facade.
const (
	NSUserProfile     = "user_profile"
	NSUserPermissions = "user_permissions"
	NSOrgProfile      = "org_profile"
	NSOrgUsers        = "org_users"
	NSList            = "list"
)

// Cache returns the storage key for one cache entry.
func Cache(tenant, namespace, key string) string {
	return "cache:" + tenant + ":" + namespace + ":" + key
}

// Tag returns the storage key for a tag's member set.
func Tag(tenant, tag string) string {
	return "cache_tags:" + tenant + ":" + tag
}

// Metrics returns the storage key for a tenant's counter hash.
func Metrics(tenant string) string {
	return "cache_metrics:" + tenant
}

// Session returns the storage key for one session record.
func Session(tenant, sessionID string) string {
	return "session:" + tenant + ":" + sessionID
}

// UserSessions returns the storage key for a user's active-session id set.
func UserSessions(tenant, userID string) string {
	return "user_sessions:" + tenant + ":" + userID
}

// SessionActivity returns the storage key for a session's activity log.
func SessionActivity(tenant, sessionID string) string {
	return "session_activity:" + tenant + ":" + sessionID
}

// UserProfile returns the cache key holding a user's profile.
func UserProfile(tenant, userID string) string {
	return Cache(tenant, NSUserProfile, userID)
}

// UserPermissions returns the cache key holding a user's permission list.
func UserPermissions(tenant, userID string) string {
	return Cache(tenant, NSUserPermissions, userID)
}

// OrgProfile returns the cache key holding an organization's profile.
func OrgProfile(tenant, orgID string) string {
	return Cache(tenant, NSOrgProfile, orgID)
}

// OrgUsers returns the cache key holding an organization's user list.
func OrgUsers(tenant, orgID string) string {
	return Cache(tenant, NSOrgUsers, orgID)
}

// List returns the local key (within NSList) for a named list cache,
// optionally scoped by a filter. A nil filter yields the bare name.
func List(name string, filter map[string]any) string {
	if len(filter) == 0 {
		return name
	}
	return name + ":" + FilterSuffix(filter)
}

// FilterSuffix serializes a filter map deterministically (sorted keys) and
// returns a short hash, so equal filters map to equal keys regardless of
// map iteration order.
func FilterSuffix(filter map[string]any) string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v, err := json.Marshal(filter[k])
		if err != nil {
			// Unserializable filter values are a programming error;
			// fall back to the formatted value so the key stays usable.
			v = []byte(fmt.Sprintf("%v", filter[k]))
		}
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write(v)
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CachePattern matches every cache entry in one tenant namespace.
func CachePattern(tenant, namespace string) string {
	return "cache:" + tenant + ":" + namespace + ":*"
}

// TenantPattern matches every cache entry for a tenant across namespaces.
func TenantPattern(tenant string) string {
	return "cache:" + tenant + ":*"
}

// ListPattern matches every variant (all filters) of one named list cache.
func ListPattern(tenant, name string) string {
	return "cache:" + tenant + ":" + NSList + ":" + name + "*"
}

// SessionPattern matches every session record for a tenant.
func SessionPattern(tenant string) string {
	return "session:" + tenant + ":*"
}
