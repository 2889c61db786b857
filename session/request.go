package session

import (
	"context"
	"net/http"

	"github.com/coursekit/tenantcache"
)

// Identity is what the caller's tenant/user resolution yields for an
// inbound request. Its production (token validation, directory lookup) is
// application concern, not this package's.
type Identity struct {
	TenantID         string
	UserID           string
	Email            string
	Name             string
	Roles            []string
	Permissions      []string
	OrganizationName string
	Metadata         map[string]any
}

// ResolverFunc maps an inbound request to its tenant and user identity.
// Returning an error means the request is unauthenticated.
type ResolverFunc func(r *http.Request) (Identity, error)

// Header and cookie consulted (in that order) for the session id.
const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "session_id"
)

// SessionIDFromRequest extracts the inbound session id, or "".
func SessionIDFromRequest(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Resolve is the request-bound convenience entry point: it resolves the
// caller's identity, returns the existing session when the request carries
// a live session id for that tenant, and otherwise seeds a new session
// from the resolved identity. Returns absent when the resolver rejects the
// request or the store cannot create a session.
func (s *Store) Resolve(ctx context.Context, r *http.Request) (Data, bool) {
	if s.resolver == nil {
		s.log.Error("session resolve called without a resolver configured", nil)
		return Data{}, false
	}
	ident, err := s.resolver(r)
	if err != nil {
		s.log.Debug("request identity resolution failed", tenantcache.Fields{"err": err})
		return Data{}, false
	}

	if id := SessionIDFromRequest(r); id != "" {
		if data, ok := s.Get(ctx, ident.TenantID, id); ok {
			// The presented session must belong to the resolved user; a
			// same-tenant id for someone else does not authenticate them.
			if data.UserID == ident.UserID {
				return data, true
			}
			s.log.Warn("session id belongs to a different user, creating a new session",
				tenantcache.Fields{"tenant": ident.TenantID, "user": ident.UserID})
		}
	}

	sessionID := s.Create(ctx, Data{
		TenantID:         ident.TenantID,
		UserID:           ident.UserID,
		Email:            ident.Email,
		Name:             ident.Name,
		Roles:            ident.Roles,
		Permissions:      ident.Permissions,
		OrganizationName: ident.OrganizationName,
		Metadata:         ident.Metadata,
	})
	if sessionID == "" {
		return Data{}, false
	}
	return s.Get(ctx, ident.TenantID, sessionID)
}
