// Package tenantcache implements a multi-tenant caching and
// session-management layer over a remote key-value store.
//
// Components:
//   - backend.Client: provider-neutral store abstraction with two flavors,
//     a persistent native-protocol client (backend/redisnative) and a
//     stateless request/response client (backend/redisrest).
//   - Cache: entry manager (serialization, TTL bookkeeping, tag-based
//     invalidation, per-tenant hit/miss/error metrics).
//   - TenantCache: facade binding one tenant id to typed helpers for
//     profiles, permissions and filtered lists.
//   - session.Store: bounded concurrent session tracking with an
//     append-only activity log.
//   - CacheOrFetch / CacheWithRefreshAhead / WriteThrough / WriteBehind:
//     cache-aside and refresh-ahead composition helpers.
//
// Keys:
//
//	cache:<tenant>:<ns>:<key>        entry envelope
//	cache_tags:<tenant>:<tag>        set of member cache keys
//	cache_metrics:<tenant>           counter hash (rolling window)
//	session:<tenant>:<id>            session record
//	user_sessions:<tenant>:<user>    active-session id set
//	session_activity:<tenant>:<id>   sorted set of "<ts>:<action>"
//
// Failure policy: backend errors never escape cache or session methods;
// they are logged, counted and converted to miss/false/zero returns. Only
// caller-supplied fetch and writer functions propagate their own errors.
package tenantcache
