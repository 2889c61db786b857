package tenantcache

import "github.com/coursekit/tenantcache/backend"

// Logging types live in package backend so the client flavors can log
// connection lifecycle events without an import cycle; they are aliased
// here because callers configure logging through this package. The log/
// subpackages provide adapters for zap, logrus and slog.
type (
	Fields    = backend.Fields
	Logger    = backend.Logger
	NopLogger = backend.NopLogger
)
