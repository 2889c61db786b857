package tenantcache

// Hooks are lightweight callbacks for high-signal cache and session
// events. Implementations MUST be cheap and non-blocking; the cache calls
// them on hot paths. Wrap with hooks/async when a sink can stall.
type Hooks interface {
	// EntryHit / EntryMiss fire on every cache read outcome.
	EntryHit(tenant, namespace string)
	EntryMiss(tenant, namespace string)

	// EntryExpiredOnRead fires when a physically-present entry was past
	// its logical expiry and was self-heal deleted.
	EntryExpiredOnRead(storageKey string)

	// BackendError fires whenever a store operation fails and is absorbed.
	BackendError(op, tenant string, err error)

	// TagsInvalidated fires after InvalidateByTags with the removal count.
	TagsInvalidated(tenant string, tags []string, removed int)

	// SessionEvicted fires when a session is removed to enforce the
	// per-user concurrent-session limit.
	SessionEvicted(tenant, userID, sessionID string)

	// ScanUnsupported fires when a pattern-enumeration operation was
	// requested on a backend flavor without that capability.
	ScanUnsupported(op string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

var _ Hooks = NopHooks{}

func (NopHooks) EntryHit(string, string)               {}
func (NopHooks) EntryMiss(string, string)              {}
func (NopHooks) EntryExpiredOnRead(string)             {}
func (NopHooks) BackendError(string, string, error)    {}
func (NopHooks) TagsInvalidated(string, []string, int) {}
func (NopHooks) SessionEvicted(string, string, string) {}
func (NopHooks) ScanUnsupported(string)                {}
