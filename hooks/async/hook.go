// Package asynchook decouples hook sinks from the cache hot path.
//
// Events are queued to a bounded channel and delivered by worker
// goroutines; when the queue is full the event is dropped rather than
// blocking a cache or session operation.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{HitMissEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := tenantcache.New(tenantcache.Options{
//	    Backend: client,
//	    Hooks:   hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/coursekit/tenantcache"
)

type Hooks struct {
	inner tenantcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ tenantcache.Hooks = (*Hooks)(nil)

func New(inner tenantcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) EntryHit(tenant, ns string)  { h.try(func() { h.inner.EntryHit(tenant, ns) }) }
func (h *Hooks) EntryMiss(tenant, ns string) { h.try(func() { h.inner.EntryMiss(tenant, ns) }) }
func (h *Hooks) EntryExpiredOnRead(k string) { h.try(func() { h.inner.EntryExpiredOnRead(k) }) }
func (h *Hooks) ScanUnsupported(op string)   { h.try(func() { h.inner.ScanUnsupported(op) }) }
func (h *Hooks) BackendError(op, tenant string, err error) {
	h.try(func() { h.inner.BackendError(op, tenant, err) })
}
func (h *Hooks) TagsInvalidated(tenant string, tags []string, removed int) {
	h.try(func() { h.inner.TagsInvalidated(tenant, tags, removed) })
}
func (h *Hooks) SessionEvicted(tenant, userID, sessionID string) {
	h.try(func() { h.inner.SessionEvicted(tenant, userID, sessionID) })
}
