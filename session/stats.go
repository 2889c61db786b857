package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coursekit/tenantcache"
	"github.com/coursekit/tenantcache/keyspace"
)

// Stats summarize a tenant's live sessions at the time of the call.
type Stats struct {
	TotalActive    int   `json:"totalActive"`
	UniqueUsers    int   `json:"uniqueUsers"`
	AvgDurationMs  int64 `json:"avgDurationMs"`
	ActiveLastHour int   `json:"activeLastHour"`
}

// Stats enumerates a tenant's session records and derives the active
// count, distinct users, average session duration (lastAccessedAt -
// createdAt) and the count active within the last hour. Requires pattern
// enumeration; without it, zero stats and a typed unsupported error.
func (s *Store) Stats(ctx context.Context, tenant string) (Stats, error) {
	var st Stats
	if !s.be.Capabilities().PatternScan {
		s.hooks.ScanUnsupported("SessionStats")
		s.log.Warn("session stats unavailable: pattern enumeration unsupported", tenantcache.Fields{"tenant": tenant})
		return st, &tenantcache.ScanUnsupportedError{Op: "SessionStats"}
	}
	keys, err := s.be.Keys(ctx, keyspace.SessionPattern(tenant))
	if err != nil {
		s.fail("stats", tenant, keyspace.SessionPattern(tenant), err)
		return st, err
	}

	now := s.now()
	hourAgo := now.Add(-time.Hour).UnixMilli()
	users := make(map[string]struct{})
	var totalDuration int64

	for _, key := range keys {
		raw, ok, err := s.be.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var data Data
		if err := json.Unmarshal([]byte(raw), &data); err != nil || data.Expired(now) {
			continue
		}
		st.TotalActive++
		users[data.UserID] = struct{}{}
		totalDuration += data.LastAccessedAt - data.CreatedAt
		if data.LastAccessedAt >= hourAgo {
			st.ActiveLastHour++
		}
	}
	st.UniqueUsers = len(users)
	if st.TotalActive > 0 {
		st.AvgDurationMs = totalDuration / int64(st.TotalActive)
	}
	return st, nil
}
