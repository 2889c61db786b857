package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coursekit/tenantcache/keyspace"
)

// Event is one activity log entry. Stored as the sorted-set member
// "<timestamp>:<action>" scored by the millisecond timestamp.
type Event struct {
	Timestamp int64  `json:"timestamp"`
	Action    string `json:"action"`
}

// appendActivity records an action and trims the log to the most recent
// activityCap entries. Append and trim are separate commands; a crash in
// between can briefly leave an oversized log, which the next append
// corrects. Disabled entirely via Config.DisableActivity.
func (s *Store) appendActivity(ctx context.Context, tenant, sessionID, action string) {
	if s.cfg.DisableActivity {
		return
	}
	key := keyspace.SessionActivity(tenant, sessionID)
	ts := s.now().UnixMilli()
	member := fmt.Sprintf("%d:%s", ts, action)
	if err := s.be.ZAdd(ctx, key, float64(ts), member); err != nil {
		s.fail("activity/append", tenant, key, err)
		return
	}
	// Drop everything below the top activityCap ranks.
	if _, err := s.be.ZRemRangeByRank(ctx, key, 0, int64(-activityCap-1)); err != nil {
		s.fail("activity/trim", tenant, key, err)
	}
	s.extendKey(ctx, key, s.cfg.TTL)
}

// Activity returns a session's log, most recent first. limit <= 0 returns
// everything retained (at most activityCap entries).
func (s *Store) Activity(ctx context.Context, tenant, sessionID string, limit int) []Event {
	key := keyspace.SessionActivity(tenant, sessionID)
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	zs, err := s.be.ZRangeWithScores(ctx, key, start, -1)
	if err != nil {
		s.fail("activity/read", tenant, key, err)
		return nil
	}
	out := make([]Event, 0, len(zs))
	for i := len(zs) - 1; i >= 0; i-- { // ascending storage, newest-first result
		out = append(out, parseEvent(zs[i].Member, int64(zs[i].Score)))
	}
	return out
}

func parseEvent(member string, score int64) Event {
	tsStr, action, ok := strings.Cut(member, ":")
	if !ok {
		return Event{Timestamp: score, Action: member}
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		ts = score
	}
	return Event{Timestamp: ts, Action: action}
}
