package tenantcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coursekit/tenantcache/keyspace"
)

// TenantCache binds one tenant id to the entry manager and adds typed
// accessors for the resource kinds application code caches most: user
// profiles, permissions, organization data, and named filtered lists.
//
// It is pure delegation: every operation goes through the same Cache
// methods and keyspace derivation, so it introduces no new invariants,
// only ergonomics and default TTL selection. List caches default to a
// shorter TTL than entity caches: lists churn on every member change.
type TenantCache struct {
	c      *Cache
	tenant string
}

// Tenant returns a facade bound to tenant.
func (c *Cache) Tenant(tenant string) *TenantCache {
	return &TenantCache{c: c, tenant: tenant}
}

func (t *TenantCache) TenantID() string { return t.tenant }

func (t *TenantCache) Get(ctx context.Context, namespace, key string) (json.RawMessage, bool) {
	return t.c.Get(ctx, t.tenant, namespace, key)
}

func (t *TenantCache) Set(ctx context.Context, namespace, key string, value any, opts ...SetOption) bool {
	return t.c.Set(ctx, t.tenant, namespace, key, value, opts...)
}

func (t *TenantCache) Delete(ctx context.Context, namespace, key string) bool {
	return t.c.Delete(ctx, t.tenant, namespace, key)
}

// Exists reports physical presence without touching hit/miss accounting.
// Logical expiry is still only enforced on reads.
func (t *TenantCache) Exists(ctx context.Context, namespace, key string) bool {
	ok, err := t.c.be.Exists(ctx, keyspace.Cache(t.tenant, namespace, key))
	if err != nil {
		t.c.fail(ctx, "exists", t.tenant, keyspace.Cache(t.tenant, namespace, key), err)
		return false
	}
	return ok
}

// Profile is the shape cached for users and organizations. Application
// code may cache richer shapes through Set/GetAs directly.
type Profile struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Email    string         `json:"email,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (t *TenantCache) UserProfile(ctx context.Context, userID string) (Profile, bool) {
	return GetAs[Profile](ctx, t.c, t.tenant, keyspace.NSUserProfile, userID)
}

func (t *TenantCache) SetUserProfile(ctx context.Context, userID string, p Profile) bool {
	return t.c.Set(ctx, t.tenant, keyspace.NSUserProfile, userID, p,
		WithTags("user:"+userID))
}

func (t *TenantCache) DeleteUserProfile(ctx context.Context, userID string) bool {
	return t.c.Delete(ctx, t.tenant, keyspace.NSUserProfile, userID)
}

func (t *TenantCache) UserPermissions(ctx context.Context, userID string) ([]string, bool) {
	return GetAs[[]string](ctx, t.c, t.tenant, keyspace.NSUserPermissions, userID)
}

func (t *TenantCache) SetUserPermissions(ctx context.Context, userID string, perms []string) bool {
	return t.c.Set(ctx, t.tenant, keyspace.NSUserPermissions, userID, perms,
		WithTags("user:"+userID))
}

func (t *TenantCache) OrgProfile(ctx context.Context, orgID string) (Profile, bool) {
	return GetAs[Profile](ctx, t.c, t.tenant, keyspace.NSOrgProfile, orgID)
}

func (t *TenantCache) SetOrgProfile(ctx context.Context, orgID string, p Profile) bool {
	return t.c.Set(ctx, t.tenant, keyspace.NSOrgProfile, orgID, p,
		WithTags("org:"+orgID))
}

func (t *TenantCache) OrgUsers(ctx context.Context, orgID string) ([]Profile, bool) {
	return GetAs[[]Profile](ctx, t.c, t.tenant, keyspace.NSOrgUsers, orgID)
}

func (t *TenantCache) SetOrgUsers(ctx context.Context, orgID string, users []Profile) bool {
	return t.c.Set(ctx, t.tenant, keyspace.NSOrgUsers, orgID, users,
		WithTags("org:"+orgID), WithTTL(t.c.listTTL))
}

// List reads a named list cache, optionally scoped by a filter. Equal
// filters map to equal keys regardless of map iteration order.
func (t *TenantCache) List(ctx context.Context, name string, filter map[string]any) (json.RawMessage, bool) {
	return t.c.Get(ctx, t.tenant, keyspace.NSList, keyspace.List(name, filter))
}

// SetList writes a named list cache with the short list TTL unless the
// caller overrides it. The "list:<name>" tag is merged in after caller
// options so a caller-supplied WithTags cannot drop it; InvalidateList's
// tag fallback relies on every variant carrying it.
func (t *TenantCache) SetList(ctx context.Context, name string, filter map[string]any, value any, opts ...SetOption) bool {
	opts = append([]SetOption{WithTTL(t.c.listTTL)}, opts...)
	opts = append(opts, withMergedTag("list:"+name))
	return t.c.Set(ctx, t.tenant, keyspace.NSList, keyspace.List(name, filter), value, opts...)
}

// InvalidateList removes every filter variant of one named list via
// pattern enumeration. On backends without that capability the tag index
// still covers it: SetList tags every variant with "list:<name>".
func (t *TenantCache) InvalidateList(ctx context.Context, name string) (int, error) {
	if !t.c.be.Capabilities().PatternScan {
		return t.c.InvalidateByTags(ctx, t.tenant, []string{"list:" + name}), nil
	}
	return t.c.clearPattern(ctx, t.tenant, "InvalidateList", keyspace.ListPattern(t.tenant, name))
}

// InvalidateByTags delegates tag invalidation scoped to this tenant.
func (t *TenantCache) InvalidateByTags(ctx context.Context, tags ...string) int {
	return t.c.InvalidateByTags(ctx, t.tenant, tags)
}

// InvalidateAll clears every cache entry for this tenant.
func (t *TenantCache) InvalidateAll(ctx context.Context) (int, error) {
	return t.c.ClearTenant(ctx, t.tenant)
}

// Stats reads this tenant's counters.
func (t *TenantCache) Stats(ctx context.Context) (Stats, error) {
	return t.c.Stats(ctx, t.tenant)
}

// EntityTTL and ListTTL expose the facade's default TTL selection.
func (t *TenantCache) EntityTTL() time.Duration { return t.c.defaultTTL }
func (t *TenantCache) ListTTL() time.Duration   { return t.c.listTTL }
