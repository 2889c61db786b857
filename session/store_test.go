package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/tenantcache"
	"github.com/coursekit/tenantcache/internal/memkv"
	"github.com/coursekit/tenantcache/keyspace"
)

type testClock struct{ t time.Time }

func newTestClock() *testClock { return &testClock{t: time.Now()} }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestStore wires a store and the in-memory backend to one shared clock.
func newTestStore(t *testing.T, cfg Config) (*Store, *memkv.Store, *testClock) {
	t.Helper()
	kv := memkv.New()
	clock := newTestClock()
	kv.SetNow(clock.now)

	s, err := New(Options{Backend: kv, Config: cfg})
	require.NoError(t, err)
	s.now = clock.now
	return s, kv, clock
}

// captureHooks records evictions; everything else is a no-op.
type captureHooks struct {
	tenantcache.NopHooks
	onEvict func(sessionID string)
}

func (h *captureHooks) SessionEvicted(tenant, userID, sessionID string) {
	h.onEvict(sessionID)
}

func sampleData(userID string) Data {
	return Data{
		TenantID:    "acme",
		UserID:      userID,
		Email:       userID + "@example.com",
		Roles:       []string{"member"},
		Permissions: []string{"courses:read"},
	}
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{})

	id := s.Create(ctx, sampleData("u1"))
	require.NotEmpty(t, id)

	data, ok := s.Get(ctx, "acme", id)
	require.True(t, ok)
	assert.Equal(t, id, data.SessionID)
	assert.Equal(t, "u1", data.UserID)
	assert.Equal(t, "u1@example.com", data.Email)
	assert.NotZero(t, data.CreatedAt)
	assert.Greater(t, data.ExpiresAt, data.CreatedAt)
}

func TestCreateStampsOverrideCallerValues(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{TTL: time.Hour})

	in := sampleData("u1")
	in.SessionID = "attacker-chosen"
	in.ExpiresAt = clock.now().Add(1000 * time.Hour).UnixMilli()

	id := s.Create(ctx, in)
	require.NotEmpty(t, id)
	assert.NotEqual(t, "attacker-chosen", id)

	data, ok := s.Get(ctx, "acme", id)
	require.True(t, ok)
	assert.LessOrEqual(t, data.ExpiresAt, clock.now().Add(time.Hour).UnixMilli())
}

func TestCreateFailureReturnsEmptyID(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newTestStore(t, Config{})

	kv.FailOn = func(op string) error {
		if op == "set" {
			return assert.AnError
		}
		return nil
	}
	assert.Empty(t, s.Create(ctx, sampleData("u1")))
}

func TestGetMissingSession(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{})

	_, ok := s.Get(ctx, "acme", "nope")
	assert.False(t, ok)
}

// ==============================
// Expiry and extension
// ==============================

func TestExtendOnAccess(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{TTL: time.Hour})

	id := s.Create(ctx, sampleData("u1"))
	first, ok := s.Get(ctx, "acme", id)
	require.True(t, ok)

	clock.advance(30 * time.Minute)
	second, ok := s.Get(ctx, "acme", id)
	require.True(t, ok)
	assert.Greater(t, second.ExpiresAt, first.ExpiresAt, "access must push expiry out")
	assert.Greater(t, second.LastAccessedAt, first.LastAccessedAt)

	// Session stays alive well past the original expiry while accessed.
	clock.advance(45 * time.Minute)
	_, ok = s.Get(ctx, "acme", id)
	assert.True(t, ok)
}

func TestDisableExtend(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{TTL: time.Hour, DisableExtend: true})

	id := s.Create(ctx, sampleData("u1"))
	first, _ := s.Get(ctx, "acme", id)

	clock.advance(30 * time.Minute)
	second, ok := s.Get(ctx, "acme", id)
	require.True(t, ok)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.Equal(t, first.LastAccessedAt, second.LastAccessedAt)
}

// TestLogicalExpiry keeps the store key physically alive and ages only the
// store's logical clock, proving the expiresAt check works on its own.
func TestLogicalExpiry(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newTestStore(t, Config{TTL: time.Hour})

	id := s.Create(ctx, sampleData("u1"))

	logical := newTestClock()
	logical.advance(2 * time.Hour)
	s.now = logical.now

	_, ok := s.Get(ctx, "acme", id)
	assert.False(t, ok)

	// The stale record is removed, not just hidden.
	_, present := kv.Raw(keyspace.Session("acme", id))
	assert.False(t, present)
}

// ==============================
// Update
// ==============================

func TestUpdateMergesPartial(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{})

	id := s.Create(ctx, sampleData("u1"))

	name := "Ann Example"
	ok := s.Update(ctx, "acme", id, Update{
		Name:     &name,
		Roles:    []string{"admin"},
		Metadata: map[string]any{"theme": "dark"},
	})
	require.True(t, ok)

	data, _ := s.Get(ctx, "acme", id)
	assert.Equal(t, "Ann Example", data.Name)
	assert.Equal(t, []string{"admin"}, data.Roles)
	assert.Equal(t, "u1@example.com", data.Email, "unset fields keep their values")
	assert.Equal(t, "dark", data.Metadata["theme"])
}

func TestUpdateMissingSession(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{})

	email := "new@example.com"
	assert.False(t, s.Update(ctx, "acme", "nope", Update{Email: &email}))
}

// ==============================
// Delete and per-user sets
// ==============================

func TestDeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{})

	id := s.Create(ctx, sampleData("u1"))
	require.True(t, s.Delete(ctx, "acme", id))

	_, ok := s.Get(ctx, "acme", id)
	assert.False(t, ok)
	assert.Empty(t, s.UserSessions(ctx, "acme", "u1"))
	assert.Empty(t, s.Activity(ctx, "acme", id, 0))
}

func TestDeleteAbsentSession(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{})

	assert.False(t, s.Delete(ctx, "acme", "nope"))
}

func TestUserSessionsSortedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{})

	id1 := s.Create(ctx, sampleData("u1"))
	clock.advance(time.Second)
	id2 := s.Create(ctx, sampleData("u1"))
	clock.advance(time.Second)
	id3 := s.Create(ctx, sampleData("u1"))

	sessions := s.UserSessions(ctx, "acme", "u1")
	require.Len(t, sessions, 3)
	assert.Equal(t, id3, sessions[0].SessionID)
	assert.Equal(t, id2, sessions[1].SessionID)
	assert.Equal(t, id1, sessions[2].SessionID)
}

func TestUserSessionsPrunesDanglingIDs(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newTestStore(t, Config{})

	id := s.Create(ctx, sampleData("u1"))
	// Record vanishes (TTL eviction) but the set member lingers.
	_, err := kv.Del(ctx, keyspace.Session("acme", id))
	require.NoError(t, err)

	assert.Empty(t, s.UserSessions(ctx, "acme", "u1"))

	members, err := kv.SMembers(ctx, keyspace.UserSessions("acme", "u1"))
	require.NoError(t, err)
	assert.Empty(t, members, "dangling id must be pruned from the set")
}

func TestMaxSessionsEvictsOldest(t *testing.T) {
	ctx := context.Background()
	var evicted []string
	hooks := &captureHooks{onEvict: func(sessionID string) { evicted = append(evicted, sessionID) }}

	kv := memkv.New()
	clock := newTestClock()
	kv.SetNow(clock.now)
	s, err := New(Options{Backend: kv, Config: Config{MaxSessions: 2}, Hooks: hooks})
	require.NoError(t, err)
	s.now = clock.now

	id1 := s.Create(ctx, sampleData("u1"))
	clock.advance(time.Second)
	id2 := s.Create(ctx, sampleData("u1"))
	clock.advance(time.Second)
	id3 := s.Create(ctx, sampleData("u1"))

	sessions := s.UserSessions(ctx, "acme", "u1")
	require.Len(t, sessions, 2)
	assert.Equal(t, id3, sessions[0].SessionID)
	assert.Equal(t, id2, sessions[1].SessionID)

	_, ok := s.Get(ctx, "acme", id1)
	assert.False(t, ok, "oldest session must be evicted")
	assert.Equal(t, []string{id1}, evicted)
}

func TestUnlimitedSessions(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{MaxSessions: -1})

	for i := 0; i < 8; i++ {
		s.Create(ctx, sampleData("u1"))
		clock.advance(time.Second)
	}
	assert.Len(t, s.UserSessions(ctx, "acme", "u1"), 8)
}

func TestDeleteUserSessions(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{})

	s.Create(ctx, sampleData("u1"))
	clock.advance(time.Second)
	s.Create(ctx, sampleData("u1"))
	s.Create(ctx, sampleData("u2"))

	assert.Equal(t, 2, s.DeleteUserSessions(ctx, "acme", "u1"))
	assert.Empty(t, s.UserSessions(ctx, "acme", "u1"))
	assert.Len(t, s.UserSessions(ctx, "acme", "u2"), 1, "other users untouched")
}

// ==============================
// Activity log
// ==============================

func TestActivityNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{})

	id := s.Create(ctx, sampleData("u1")) // logs "created"
	clock.advance(time.Second)
	s.Get(ctx, "acme", id) // logs "accessed"
	clock.advance(time.Second)
	name := "Ann"
	s.Update(ctx, "acme", id, Update{Name: &name}) // logs "updated"

	events := s.Activity(ctx, "acme", id, 0)
	require.Len(t, events, 3)
	assert.Equal(t, "updated", events[0].Action)
	assert.Equal(t, "accessed", events[1].Action)
	assert.Equal(t, "created", events[2].Action)
	assert.GreaterOrEqual(t, events[0].Timestamp, events[1].Timestamp)
}

func TestActivityLimit(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{})

	id := s.Create(ctx, sampleData("u1"))
	for i := 0; i < 5; i++ {
		clock.advance(time.Second)
		s.Get(ctx, "acme", id)
	}

	events := s.Activity(ctx, "acme", id, 2)
	require.Len(t, events, 2)
	assert.Equal(t, "accessed", events[0].Action)
}

func TestActivityCapped(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{})

	id := s.Create(ctx, sampleData("u1"))
	for i := 0; i < 150; i++ {
		clock.advance(time.Millisecond)
		s.appendActivity(ctx, "acme", id, "accessed")
	}

	events := s.Activity(ctx, "acme", id, 0)
	assert.Len(t, events, activityCap)
	// The survivors are the most recent ones.
	assert.Equal(t, "accessed", events[0].Action)
}

func TestActivityDisabled(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, Config{DisableActivity: true})

	id := s.Create(ctx, sampleData("u1"))
	s.Get(ctx, "acme", id)
	assert.Empty(t, s.Activity(ctx, "acme", id, 0))
}

// ==============================
// Cleanup and stats
// ==============================

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{TTL: time.Hour, DisableExtend: true})

	old := s.Create(ctx, sampleData("u1"))
	clock.advance(30 * time.Minute)
	fresh := s.Create(ctx, sampleData("u2"))

	// Age only the store's logical clock: "old" is past expiresAt, "fresh"
	// is not; both records are still physically present.
	logical := newTestClock()
	logical.t = clock.now().Add(45 * time.Minute)
	s.now = logical.now

	removed, err := s.CleanupExpired(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := s.Get(ctx, "acme", old)
	assert.False(t, ok)
	_, ok = s.Get(ctx, "acme", fresh)
	assert.True(t, ok)
}

func TestCleanupUnsupportedIsTyped(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newTestStore(t, Config{})
	kv.ScanDisabled = true

	n, err := s.CleanupExpired(ctx, "acme")
	assert.Zero(t, n)
	assert.True(t, tenantcache.IsScanUnsupported(err))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, Config{})

	s.Create(ctx, sampleData("u1"))
	s.Create(ctx, sampleData("u1"))
	s.Create(ctx, sampleData("u2"))
	clock.advance(10 * time.Minute)

	st, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalActive)
	assert.Equal(t, 2, st.UniqueUsers)
	assert.Equal(t, 3, st.ActiveLastHour)

	st2, err := s.Stats(ctx, "other-tenant")
	require.NoError(t, err)
	assert.Zero(t, st2.TotalActive)
}

func TestStatsUnsupportedIsTyped(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newTestStore(t, Config{})
	kv.ScanDisabled = true

	_, err := s.Stats(ctx, "acme")
	assert.True(t, tenantcache.IsScanUnsupported(err))
}

// ==============================
// Request-bound resolution
// ==============================

func TestResolveCreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	kv := memkv.New()
	s, err := New(Options{
		Backend: kv,
		Resolver: func(r *http.Request) (Identity, error) {
			return Identity{TenantID: "acme", UserID: "u1", Email: "u1@example.com"}, nil
		},
	})
	require.NoError(t, err)

	// No inbound session id: a session is created from the identity.
	first, ok := s.Resolve(ctx, httptest.NewRequest(http.MethodGet, "/courses", nil))
	require.True(t, ok)
	assert.Equal(t, "u1", first.UserID)
	require.NotEmpty(t, first.SessionID)

	// Same id presented via header: the existing session comes back.
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set(SessionHeader, first.SessionID)
	second, ok := s.Resolve(ctx, req)
	require.True(t, ok)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Len(t, s.UserSessions(ctx, "acme", "u1"), 1)
}

func TestResolveViaCookie(t *testing.T) {
	ctx := context.Background()
	kv := memkv.New()
	s, err := New(Options{
		Backend: kv,
		Resolver: func(r *http.Request) (Identity, error) {
			return Identity{TenantID: "acme", UserID: "u1"}, nil
		},
	})
	require.NoError(t, err)

	first, ok := s.Resolve(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: first.SessionID})
	second, ok := s.Resolve(ctx, req)
	require.True(t, ok)
	assert.Equal(t, first.SessionID, second.SessionID)
}

// A session id presented by a different user in the same tenant must not
// authenticate as the session's owner.
func TestResolveRejectsAnotherUsersSessionID(t *testing.T) {
	ctx := context.Background()
	kv := memkv.New()
	currentUser := "u1"
	s, err := New(Options{
		Backend: kv,
		Resolver: func(r *http.Request) (Identity, error) {
			return Identity{TenantID: "acme", UserID: currentUser}, nil
		},
	})
	require.NoError(t, err)

	first, ok := s.Resolve(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, ok)
	require.Equal(t, "u1", first.UserID)

	// u2 presents u1's session id.
	currentUser = "u2"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, first.SessionID)
	second, ok := s.Resolve(ctx, req)
	require.True(t, ok)
	assert.Equal(t, "u2", second.UserID, "mismatched id must yield the caller's own session")
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// u1's session is untouched by the attempt.
	kept, ok := s.Get(ctx, "acme", first.SessionID)
	require.True(t, ok)
	assert.Equal(t, "u1", kept.UserID)
}

func TestResolveRejectedIdentity(t *testing.T) {
	ctx := context.Background()
	s, err := New(Options{
		Backend:  memkv.New(),
		Resolver: func(r *http.Request) (Identity, error) { return Identity{}, assert.AnError },
	})
	require.NoError(t, err)

	_, ok := s.Resolve(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestResolveWithoutResolver(t *testing.T) {
	ctx := context.Background()
	s, err := New(Options{Backend: memkv.New()})
	require.NoError(t, err)

	_, ok := s.Resolve(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}
