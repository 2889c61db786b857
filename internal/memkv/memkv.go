// Package memkv is an in-memory backend.Client used by package tests. It
// mirrors the store semantics the library relies on: per-key expiry,
// hashes, sets, sorted sets, and glob enumeration. Capability flags are
// settable so tests can emulate the REST flavor's restrictions, and the
// clock is injectable for TTL tests.
package memkv

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/coursekit/tenantcache/backend"
)

type value struct {
	str  string
	hash map[string]string
	set  map[string]struct{}
	zset map[string]float64
	exp  time.Time // zero => no TTL
}

type Store struct {
	mu   sync.Mutex
	data map[string]*value
	now  func() time.Time

	// ScanDisabled / MGetDisabled emulate the REST flavor.
	ScanDisabled bool
	MGetDisabled bool

	// FailOn returns a forced error per named op ("get", "set", ...).
	FailOn func(op string) error
}

var _ backend.Client = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string]*value), now: time.Now}
}

// SetNow injects a clock. Combine with the cache's clock for TTL tests.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}

func (s *Store) err(op string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op)
}

// live returns the key's value, purging it when expired.
func (s *Store) live(key string) (*value, bool) {
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !v.exp.IsZero() && s.now().After(v.exp) {
		delete(s.data, key)
		return nil, false
	}
	return v, true
}

func (s *Store) upsert(key string) *value {
	if v, ok := s.live(key); ok {
		return v
	}
	v := &value{}
	s.data[key] = v
	return v
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if err := s.err("get"); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	return v.str, true, nil
}

func (s *Store) Set(_ context.Context, key, val string, ttl time.Duration) error {
	if err := s.err("set"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &value{str: val}
	if ttl > 0 {
		v.exp = s.now().Add(ttl)
	}
	s.data[key] = v
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) (int64, error) {
	if err := s.err("del"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := s.live(k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) MGet(_ context.Context, keys ...string) ([]*string, error) {
	if s.MGetDisabled {
		return nil, backend.ErrMultiGetUnsupported
	}
	if err := s.err("mget"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*string, len(keys))
	for i, k := range keys {
		if v, ok := s.live(k); ok {
			str := v.str
			out[i] = &str
		}
	}
	return out, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	if err := s.err("exists"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok, nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if err := s.err("hgetall"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	if v, ok := s.live(key); ok {
		for f, fv := range v.hash {
			out[f] = fv
		}
	}
	return out, nil
}

func (s *Store) HIncrBy(_ context.Context, key, field string, incr int64) (int64, error) {
	if err := s.err("hincrby"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.upsert(key)
	if v.hash == nil {
		v.hash = make(map[string]string)
	}
	cur := parseInt(v.hash[field])
	cur += incr
	v.hash[field] = formatInt(cur)
	return cur, nil
}

func (s *Store) SAdd(_ context.Context, key string, members ...string) error {
	if err := s.err("sadd"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.upsert(key)
	if v.set == nil {
		v.set = make(map[string]struct{})
	}
	for _, m := range members {
		v.set[m] = struct{}{}
	}
	return nil
}

func (s *Store) SRem(_ context.Context, key string, members ...string) error {
	if err := s.err("srem"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.live(key); ok {
		for _, m := range members {
			delete(v.set, m)
		}
	}
	return nil
}

func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	if err := s.err("smembers"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	if v, ok := s.live(key); ok {
		for m := range v.set {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ZAdd(_ context.Context, key string, score float64, member string) error {
	if err := s.err("zadd"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.upsert(key)
	if v.zset == nil {
		v.zset = make(map[string]float64)
	}
	v.zset[member] = score
	return nil
}

func (s *Store) ZRangeWithScores(_ context.Context, key string, start, stop int64) ([]backend.Z, error) {
	if err := s.err("zrange"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ranked := s.ranked(key)
	lo, hi, ok := normalizeRange(start, stop, int64(len(ranked)))
	if !ok {
		return nil, nil
	}
	return append([]backend.Z(nil), ranked[lo:hi+1]...), nil
}

func (s *Store) ZRemRangeByRank(_ context.Context, key string, start, stop int64) (int64, error) {
	if err := s.err("zremrangebyrank"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ranked := s.ranked(key)
	lo, hi, ok := normalizeRange(start, stop, int64(len(ranked)))
	if !ok {
		return 0, nil
	}
	v, _ := s.live(key)
	for _, z := range ranked[lo : hi+1] {
		delete(v.zset, z.Member)
	}
	return hi - lo + 1, nil
}

// ranked returns the zset ascending by score, member as tiebreak.
func (s *Store) ranked(key string) []backend.Z {
	v, ok := s.live(key)
	if !ok || len(v.zset) == 0 {
		return nil
	}
	out := make([]backend.Z, 0, len(v.zset))
	for m, sc := range v.zset {
		out = append(out, backend.Z{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func normalizeRange(start, stop, n int64) (int64, int64, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n || stop < 0 {
		return 0, 0, false
	}
	return start, stop, true
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.err("expire"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return false, nil
	}
	v.exp = s.now().Add(ttl)
	return true, nil
}

func (s *Store) ExpireAtLeast(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.err("expireatleast"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return false, nil
	}
	candidate := s.now().Add(ttl)
	if !v.exp.IsZero() && !candidate.After(v.exp) {
		return false, nil
	}
	v.exp = candidate
	return true, nil
}

func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	if s.ScanDisabled {
		return nil, backend.ErrPatternScanUnsupported
	}
	if err := s.err("keys"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.data {
		if _, ok := s.live(k); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, k); matched {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error {
	return s.err("ping")
}

func (s *Store) Info(context.Context) backend.Info {
	return backend.Info{Provider: "memory", Endpoint: "memkv"}
}

func (s *Store) Capabilities() backend.Capabilities {
	return backend.Capabilities{PatternScan: !s.ScanDisabled, MultiGet: !s.MGetDisabled}
}

func (s *Store) Close(context.Context) error { return nil }

// Len reports the number of live keys (test assertions).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.data {
		if _, ok := s.live(k); ok {
			n++
		}
	}
	return n
}

// Raw returns the raw stored string for a key (test injection/inspection).
func (s *Store) Raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.live(key)
	if !ok {
		return "", false
	}
	return v.str, true
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
