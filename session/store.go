package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursekit/tenantcache"
	"github.com/coursekit/tenantcache/backend"
	"github.com/coursekit/tenantcache/keyspace"
)

// Options configure a Store. Only Backend is required.
type Options struct {
	Backend  backend.Client
	Logger   tenantcache.Logger
	Hooks    tenantcache.Hooks
	Config   Config
	Resolver ResolverFunc // only needed for Resolve
}

// Store persists session records, the per-user active-session sets, and
// the per-session activity logs. Safe for concurrent use.
type Store struct {
	be       backend.Client
	log      tenantcache.Logger
	hooks    tenantcache.Hooks
	cfg      Config
	resolver ResolverFunc
	now      func() time.Time
}

func New(opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("session: backend is required")
	}
	s := &Store{
		be:       opts.Backend,
		log:      opts.Logger,
		hooks:    opts.Hooks,
		cfg:      opts.Config.normalize(),
		resolver: opts.Resolver,
		now:      time.Now,
	}
	if s.log == nil {
		s.log = tenantcache.NopLogger{}
	}
	if s.hooks == nil {
		s.hooks = tenantcache.NopHooks{}
	}
	return s, nil
}

// Create stores a new session for data's tenant/user, registers it in the
// user's active-session set, enforces the per-user session cap (evicting
// oldest-by-lastAccessedAt first), and logs a "created" activity event.
// SessionID, CreatedAt, LastAccessedAt and ExpiresAt are stamped here;
// any caller-provided values for them are ignored.
//
// Returns the new session id, or "" when the record write failed; the
// caller treats an empty id as "store unavailable, not authenticated".
func (s *Store) Create(ctx context.Context, data Data) string {
	now := s.now()
	data.SessionID = uuid.NewString()
	data.CreatedAt = now.UnixMilli()
	data.LastAccessedAt = now.UnixMilli()
	data.ExpiresAt = now.Add(s.cfg.TTL).UnixMilli()

	if !s.persist(ctx, data, s.cfg.TTL) {
		return ""
	}

	setKey := keyspace.UserSessions(data.TenantID, data.UserID)
	if err := s.be.SAdd(ctx, setKey, data.SessionID); err != nil {
		s.fail("create/sadd", data.TenantID, setKey, err)
	} else {
		s.extendKey(ctx, setKey, s.cfg.TTL)
	}

	s.enforceLimit(ctx, data.TenantID, data.UserID)
	s.appendActivity(ctx, data.TenantID, data.SessionID, "created")
	return data.SessionID
}

// Get returns the session or absent. An expired-but-present record is
// self-heal deleted. With extend-on-access enabled, lastAccessedAt and
// expiresAt are recomputed and persisted before returning.
func (s *Store) Get(ctx context.Context, tenant, sessionID string) (Data, bool) {
	data, ok := s.load(ctx, tenant, sessionID)
	if !ok {
		return Data{}, false
	}
	now := s.now()
	if data.Expired(now) {
		s.Delete(ctx, tenant, sessionID)
		return Data{}, false
	}
	if !s.cfg.DisableExtend {
		data.LastAccessedAt = now.UnixMilli()
		data.ExpiresAt = now.Add(s.cfg.TTL).UnixMilli()
		s.persist(ctx, data, s.cfg.TTL)
		s.extendKey(ctx, keyspace.UserSessions(tenant, data.UserID), s.cfg.TTL)
	}
	s.appendActivity(ctx, tenant, sessionID, "accessed")
	return data, true
}

// Update merges partial fields into an existing record, bumps
// lastAccessedAt, and persists with the record's remaining lifetime.
// Returns false when the session does not exist.
func (s *Store) Update(ctx context.Context, tenant, sessionID string, upd Update) bool {
	data, ok := s.load(ctx, tenant, sessionID)
	if !ok || data.Expired(s.now()) {
		return false
	}
	if upd.Email != nil {
		data.Email = *upd.Email
	}
	if upd.Name != nil {
		data.Name = *upd.Name
	}
	if upd.OrganizationName != nil {
		data.OrganizationName = *upd.OrganizationName
	}
	if upd.Roles != nil {
		data.Roles = upd.Roles
	}
	if upd.Permissions != nil {
		data.Permissions = upd.Permissions
	}
	if len(upd.Metadata) > 0 {
		if data.Metadata == nil {
			data.Metadata = make(map[string]any, len(upd.Metadata))
		}
		for k, v := range upd.Metadata {
			data.Metadata[k] = v
		}
	}
	now := s.now()
	data.LastAccessedAt = now.UnixMilli()
	remaining := time.Duration(data.ExpiresAt-now.UnixMilli()) * time.Millisecond
	if !s.persist(ctx, data, remaining) {
		return false
	}
	s.appendActivity(ctx, tenant, sessionID, "updated")
	return true
}

// Delete removes the record, its membership in the user's active-session
// set, and its activity log. Returns false when the record was already
// absent (its user set membership cannot be resolved) or on backend error.
func (s *Store) Delete(ctx context.Context, tenant, sessionID string) bool {
	data, ok := s.load(ctx, tenant, sessionID)

	key := keyspace.Session(tenant, sessionID)
	if _, err := s.be.Del(ctx, key); err != nil {
		s.fail("delete", tenant, key, err)
		return false
	}
	if _, err := s.be.Del(ctx, keyspace.SessionActivity(tenant, sessionID)); err != nil {
		s.fail("delete/activity", tenant, sessionID, err)
	}
	if !ok {
		return false
	}
	setKey := keyspace.UserSessions(tenant, data.UserID)
	if err := s.be.SRem(ctx, setKey, sessionID); err != nil {
		s.fail("delete/srem", tenant, setKey, err)
	}
	return true
}

// UserSessions resolves a user's active sessions, pruning dangling ids
// whose records have vanished, sorted most recently accessed first.
func (s *Store) UserSessions(ctx context.Context, tenant, userID string) []Data {
	setKey := keyspace.UserSessions(tenant, userID)
	ids, err := s.be.SMembers(ctx, setKey)
	if err != nil {
		s.fail("user_sessions", tenant, setKey, err)
		return nil
	}
	now := s.now()
	out := make([]Data, 0, len(ids))
	for _, id := range ids {
		data, ok := s.load(ctx, tenant, id)
		if !ok || data.Expired(now) {
			// dangling or dead: drop from the set so it stops resurfacing
			if err := s.be.SRem(ctx, setKey, id); err != nil {
				s.fail("user_sessions/prune", tenant, setKey, err)
			}
			continue
		}
		out = append(out, data)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessedAt > out[j].LastAccessedAt
	})
	return out
}

// DeleteUserSessions removes every active session of one user and the set
// itself, returning the number of sessions removed.
func (s *Store) DeleteUserSessions(ctx context.Context, tenant, userID string) int {
	sessions := s.UserSessions(ctx, tenant, userID)
	count := 0
	for _, data := range sessions {
		if s.Delete(ctx, tenant, data.SessionID) {
			count++
		}
	}
	setKey := keyspace.UserSessions(tenant, userID)
	if _, err := s.be.Del(ctx, setKey); err != nil {
		s.fail("delete_user_sessions", tenant, setKey, err)
	}
	return count
}

// CleanupExpired sweeps a tenant's session records and deletes those whose
// logical expiry has passed. Requires pattern enumeration; without it the
// sweep reports 0 and a typed unsupported error.
func (s *Store) CleanupExpired(ctx context.Context, tenant string) (int, error) {
	if !s.be.Capabilities().PatternScan {
		s.hooks.ScanUnsupported("CleanupExpired")
		s.log.Warn("session cleanup skipped: pattern enumeration unavailable", tenantcache.Fields{"tenant": tenant})
		return 0, &tenantcache.ScanUnsupportedError{Op: "CleanupExpired"}
	}
	keys, err := s.be.Keys(ctx, keyspace.SessionPattern(tenant))
	if err != nil {
		s.fail("cleanup", tenant, keyspace.SessionPattern(tenant), err)
		return 0, err
	}
	now := s.now()
	prefix := keyspace.Session(tenant, "")
	removed := 0
	for _, key := range keys {
		raw, ok, err := s.be.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		sessionID := strings.TrimPrefix(key, prefix)
		var data Data
		if err := json.Unmarshal([]byte(raw), &data); err != nil || data.Expired(now) {
			if s.Delete(ctx, tenant, sessionID) {
				removed++
			}
		}
	}
	return removed, nil
}

// enforceLimit evicts a user's oldest sessions (by lastAccessedAt) beyond
// the configured maximum. Races between concurrent creates can transiently
// overshoot; the next create converges.
func (s *Store) enforceLimit(ctx context.Context, tenant, userID string) {
	if s.cfg.MaxSessions < 0 {
		return
	}
	sessions := s.UserSessions(ctx, tenant, userID) // newest first
	if len(sessions) <= s.cfg.MaxSessions {
		return
	}
	for _, victim := range sessions[s.cfg.MaxSessions:] {
		if s.Delete(ctx, tenant, victim.SessionID) {
			s.hooks.SessionEvicted(tenant, userID, victim.SessionID)
			s.log.Info("session evicted over per-user limit",
				tenantcache.Fields{"tenant": tenant, "user": userID, "session": victim.SessionID})
		}
	}
}

// load reads and decodes one record without side effects (no extension,
// no activity, no expiry handling). Corrupt records are dropped.
func (s *Store) load(ctx context.Context, tenant, sessionID string) (Data, bool) {
	key := keyspace.Session(tenant, sessionID)
	raw, ok, err := s.be.Get(ctx, key)
	if err != nil {
		s.fail("load", tenant, key, err)
		return Data{}, false
	}
	if !ok {
		return Data{}, false
	}
	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		s.log.Warn("corrupt session record, dropping", tenantcache.Fields{"tenant": tenant, "key": key, "err": err})
		if _, err := s.be.Del(ctx, key); err != nil {
			s.fail("load/selfheal", tenant, key, err)
		}
		return Data{}, false
	}
	return data, true
}

func (s *Store) persist(ctx context.Context, data Data, ttl time.Duration) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Error("session encode failed", tenantcache.Fields{"tenant": data.TenantID, "session": data.SessionID, "err": err})
		return false
	}
	if ttl <= 0 {
		return false
	}
	key := keyspace.Session(data.TenantID, data.SessionID)
	if err := s.be.Set(ctx, key, string(raw), ttl); err != nil {
		s.fail("persist", data.TenantID, key, err)
		return false
	}
	return true
}

// extendKey pushes a companion key's TTL out to at least ttl.
func (s *Store) extendKey(ctx context.Context, key string, ttl time.Duration) {
	if _, err := s.be.ExpireAtLeast(ctx, key, ttl); err != nil {
		s.log.Debug("session companion expire failed", tenantcache.Fields{"key": key, "err": err})
	}
}

func (s *Store) fail(op, tenant string, key any, err error) {
	s.log.Warn("session backend operation failed",
		tenantcache.Fields{"op": op, "tenant": tenant, "key": key, "err": err})
	s.hooks.BackendError(op, tenant, err)
}
