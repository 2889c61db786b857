package keyspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "cache:acme:user_profile:u1", Cache("acme", NSUserProfile, "u1"))
	assert.Equal(t, "cache_tags:acme:user:u1", Tag("acme", "user:u1"))
	assert.Equal(t, "cache_metrics:acme", Metrics("acme"))
	assert.Equal(t, "session:acme:s1", Session("acme", "s1"))
	assert.Equal(t, "user_sessions:acme:u1", UserSessions("acme", "u1"))
	assert.Equal(t, "session_activity:acme:s1", SessionActivity("acme", "s1"))
}

func TestConvenienceKeys(t *testing.T) {
	assert.Equal(t, Cache("acme", NSUserProfile, "u1"), UserProfile("acme", "u1"))
	assert.Equal(t, Cache("acme", NSUserPermissions, "u1"), UserPermissions("acme", "u1"))
	assert.Equal(t, Cache("acme", NSOrgProfile, "o1"), OrgProfile("acme", "o1"))
	assert.Equal(t, Cache("acme", NSOrgUsers, "o1"), OrgUsers("acme", "o1"))
}

// Distinct tenants or resource kinds must never share a key.
func TestNoCrossTenantCollisions(t *testing.T) {
	seen := map[string]string{}
	add := func(label, key string) {
		if prev, dup := seen[key]; dup {
			t.Fatalf("key collision: %s and %s both map to %q", prev, label, key)
		}
		seen[key] = label
	}
	for _, tenant := range []string{"a", "b"} {
		add("cache/"+tenant, Cache(tenant, "ns", "k"))
		add("tag/"+tenant, Tag(tenant, "k"))
		add("metrics/"+tenant, Metrics(tenant))
		add("session/"+tenant, Session(tenant, "k"))
		add("usersessions/"+tenant, UserSessions(tenant, "k"))
		add("activity/"+tenant, SessionActivity(tenant, "k"))
	}
}

func TestListKeys(t *testing.T) {
	assert.Equal(t, "courses", List("courses", nil))
	assert.Equal(t, "courses", List("courses", map[string]any{}))

	withFilter := List("courses", map[string]any{"status": "published"})
	assert.NotEqual(t, "courses", withFilter)
	assert.Contains(t, withFilter, "courses:")
}

func TestFilterSuffixDeterministic(t *testing.T) {
	a := FilterSuffix(map[string]any{"status": "published", "page": 1, "limit": 20})
	b := FilterSuffix(map[string]any{"limit": 20, "page": 1, "status": "published"})
	assert.Equal(t, a, b, "iteration order must not leak into the key")
	assert.Len(t, a, 16)

	c := FilterSuffix(map[string]any{"status": "draft", "page": 1, "limit": 20})
	assert.NotEqual(t, a, c, "different filter values must produce different keys")
}

func TestPatterns(t *testing.T) {
	assert.Equal(t, "cache:acme:list:*", CachePattern("acme", NSList))
	assert.Equal(t, "cache:acme:*", TenantPattern("acme"))
	assert.Equal(t, "cache:acme:list:courses*", ListPattern("acme", "courses"))
	assert.Equal(t, "session:acme:*", SessionPattern("acme"))
}
