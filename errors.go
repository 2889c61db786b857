package tenantcache

import (
	"errors"
	"fmt"

	"github.com/coursekit/tenantcache/backend"
)

// ErrClosed is returned by operations on a closed Cache.
var ErrClosed = errors.New("tenantcache: cache is closed")

// ScanUnsupportedError reports that a pattern-enumeration operation
// (ClearNamespace, ClearTenant) is unavailable on the configured backend
// flavor. It is a distinct type so callers can tell "capability missing"
// apart from "zero keys matched".
type ScanUnsupportedError struct {
	Op string
}

func (e *ScanUnsupportedError) Error() string {
	return fmt.Sprintf("tenantcache: %s requires pattern enumeration, unsupported by this backend", e.Op)
}

func (e *ScanUnsupportedError) Unwrap() error { return backend.ErrPatternScanUnsupported }

// IsScanUnsupported reports whether err indicates a missing pattern-scan
// capability rather than an operational failure.
func IsScanUnsupported(err error) bool {
	return errors.Is(err, backend.ErrPatternScanUnsupported)
}
