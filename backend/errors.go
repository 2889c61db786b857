package backend

import (
	"errors"
	"fmt"
)

// ErrPatternScanUnsupported is returned by Keys on flavors without pattern
// enumeration. Callers must treat it as "capability missing", which is
// distinguishable from "zero keys matched".
var ErrPatternScanUnsupported = errors.New("backend: pattern enumeration not supported by this provider")

// ErrMultiGetUnsupported is returned by MGet on flavors without a native
// batched read. Callers fall back to parallel per-key Gets.
var ErrMultiGetUnsupported = errors.New("backend: native multi-get not supported by this provider")

// ConfigError reports missing or invalid connection parameters. It is
// raised at client construction (first use), before any network traffic,
// so that misconfiguration is not mistaken for an outage.
type ConfigError struct {
	Provider Provider
	Missing  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("backend: provider %q missing required configuration: %v", e.Provider, e.Missing)
}

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
