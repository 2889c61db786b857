// Package sloghooks is a ready-made Hooks sink that logs cache and
// session events through log/slog, with sampling for the hot hit/miss
// events so a busy cache cannot flood the log.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/coursekit/tenantcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitMissEvery  uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitMissCtr  atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ tenantcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EntryHit(tenant, ns string) {
	if h.l == nil || !sample(h.opts.HitMissEvery, &h.hitMissCtr) {
		return
	}
	h.l.Debug("tenantcache.hit", "tenant", tenant, "ns", ns)
}

func (h *Hooks) EntryMiss(tenant, ns string) {
	if h.l == nil || !sample(h.opts.HitMissEvery, &h.hitMissCtr) {
		return
	}
	h.l.Debug("tenantcache.miss", "tenant", tenant, "ns", ns)
}

func (h *Hooks) EntryExpiredOnRead(storageKey string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tenantcache.expired_on_read", "key", h.redact(storageKey))
}

func (h *Hooks) BackendError(op, tenant string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tenantcache.backend_error", "op", op, "tenant", tenant, "err", err)
}

func (h *Hooks) TagsInvalidated(tenant string, tags []string, removed int) {
	if h.l == nil {
		return
	}
	h.l.Info("tenantcache.tags_invalidated", "tenant", tenant, "tags", tags, "removed", removed)
}

func (h *Hooks) SessionEvicted(tenant, userID, sessionID string) {
	if h.l == nil {
		return
	}
	h.l.Info("tenantcache.session_evicted",
		"tenant", tenant,
		"user", userID,
		"session", h.redact(sessionID))
}

func (h *Hooks) ScanUnsupported(op string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tenantcache.scan_unsupported",
		"op", op,
		"msg", "pattern enumeration unavailable on this backend flavor")
}
