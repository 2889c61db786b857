package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recorder collects delivered events under a lock.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) EntryHit(tenant, ns string)         { r.add("hit:" + tenant + ":" + ns) }
func (r *recorder) EntryMiss(tenant, ns string)        { r.add("miss:" + tenant + ":" + ns) }
func (r *recorder) EntryExpiredOnRead(k string)        { r.add("expired:" + k) }
func (r *recorder) BackendError(op, t string, _ error) { r.add("err:" + op + ":" + t) }
func (r *recorder) ScanUnsupported(op string)          { r.add("scan:" + op) }
func (r *recorder) TagsInvalidated(t string, _ []string, n int) {
	r.add("tags:" + t)
}
func (r *recorder) SessionEvicted(t, u, s string) { r.add("evict:" + s) }

func TestDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 1, 16)

	h.EntryHit("acme", "ns")
	h.EntryMiss("acme", "ns")
	h.BackendError("get", "acme", errors.New("boom"))
	h.SessionEvicted("acme", "u1", "s1")
	h.Close()

	assert.Equal(t, []string{"hit:acme:ns", "miss:acme:ns", "err:get:acme", "evict:s1"}, rec.all())
}

func TestDropsWhenFull(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 1, 1)

	// Block the single worker so the queue backs up.
	gate := make(chan struct{})
	h.q <- func() { <-gate }
	h.q <- func() {}

	for i := 0; i < 50; i++ {
		h.EntryHit("acme", "ns") // queue full: dropped, never blocks
	}
	close(gate)
	h.Close()
	assert.Empty(t, rec.all())
}

func TestCloseIdempotent(t *testing.T) {
	h := New(&recorder{}, 2, 8)
	h.Close()
	h.Close()
}
