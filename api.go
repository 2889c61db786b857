package tenantcache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coursekit/tenantcache/backend"
	"github.com/coursekit/tenantcache/codec"
)

// Options tune the cache entry manager. Only Backend is required; others
// have sensible defaults.
type Options struct {
	// Required.
	Backend backend.Client

	// Codec encodes the stored entry envelope. nil => codec.JSON[Entry]
	// (matches the documented persisted layout).
	Codec codec.Codec[Entry]

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	DefaultTTL time.Duration // entries; 0 => 1h
	ListTTL    time.Duration // facade list caches; 0 => 5m

	// MaxEntryBytes caps the encoded envelope size (0 = unlimited). The
	// configured codec is wrapped with codec.Limit when set.
	MaxEntryBytes int

	DisableMetrics bool          // default false (metrics recorded)
	MetricsWindow  time.Duration // counter-hash TTL; 0 => 24h
}

const (
	defaultEntryTTL     = time.Hour
	defaultListTTL      = 5 * time.Minute
	defaultMetricsSpan  = 24 * time.Hour
	backgroundOpTimeout = backend.DefaultCommandTimeout
)

// Cache is the entry manager. All methods absorb backend errors: they log,
// count, and return miss/false/zero instead of propagating. Safe for
// concurrent use.
type Cache struct {
	be      backend.Client
	codec   codec.Codec[Entry]
	log     Logger
	hooks   Hooks
	metrics bool

	defaultTTL    time.Duration
	listTTL       time.Duration
	metricsWindow time.Duration

	now    func() time.Time
	closed atomic.Bool
	bg     sync.WaitGroup
}

// New constructs a Cache over an already-constructed backend client. The
// cache does not own the client unless you never share it; Close closes
// the client either way, so share deliberately.
func New(opts Options) (*Cache, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("tenantcache: backend is required")
	}

	c := &Cache{
		be:      opts.Backend,
		metrics: !opts.DisableMetrics,
		now:     time.Now,
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultEntryTTL)
	c.listTTL = coalesce[time.Duration](opts.ListTTL, defaultListTTL)
	c.metricsWindow = coalesce[time.Duration](opts.MetricsWindow, defaultMetricsSpan)

	enc := opts.Codec
	if enc == nil {
		enc = codec.JSON[Entry]{}
	}
	if opts.MaxEntryBytes > 0 {
		enc = codec.Limit[Entry]{Inner: enc, MaxEncode: opts.MaxEntryBytes, MaxDecode: opts.MaxEntryBytes}
	}
	c.codec = enc

	return c, nil
}

// SetOption customizes a single write.
type SetOption func(*setOptions)

type setOptions struct {
	ttl      time.Duration
	tags     []string
	metadata map[string]any
}

// WithTTL overrides the configured default TTL for this write.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = d }
}

// WithTags attaches invalidation tags to the entry.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = tags }
}

// WithMetadata attaches free-form bookkeeping fields to the envelope.
func WithMetadata(md map[string]any) SetOption {
	return func(o *setOptions) { o.metadata = md }
}

// withMergedTag appends tag unless it is already present. Applied after
// caller options, so a caller's WithTags cannot displace it.
func withMergedTag(tag string) SetOption {
	return func(o *setOptions) {
		for _, t := range o.tags {
			if t == tag {
				return
			}
		}
		o.tags = append(o.tags, tag)
	}
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
