package tenantcache

import (
	"encoding/json"
	"time"
)

// EntryVersion is the current envelope format version. Bump on
// incompatible layout changes; readers treat unknown versions as corrupt.
const EntryVersion = 1

// Entry is the envelope stored for every cache entry. The payload is kept
// as its JSON encoding; the envelope itself is encoded by the configured
// codec (JSON by default, so stored records match the documented layout).
//
// Entries are created and destroyed solely by Cache. Callers never mutate
// a stored entry in place; they replace it wholesale via Set.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"createdAt"`
	ExpiresAt int64           `json:"expiresAt"`
	Version   int             `json:"version"`
	Tags      []string        `json:"tags,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Expired reports whether the entry's logical expiry has passed. This is a
// defensive check on top of the store's own TTL; clock skew between writer
// and store can leave a physically-present record that is logically dead.
func (e Entry) Expired(now time.Time) bool {
	return now.UnixMilli() > e.ExpiresAt
}

// RemainingTTL returns the time until logical expiry, clamped at zero.
func (e Entry) RemainingTTL(now time.Time) time.Duration {
	rem := e.ExpiresAt - now.UnixMilli()
	if rem <= 0 {
		return 0
	}
	return time.Duration(rem) * time.Millisecond
}
