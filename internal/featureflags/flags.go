package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// Audit logs every mutating API request. On unless FLAG_AUDIT says otherwise.
	Audit = "audit"
	// Metrics exposes /metrics. On unless FLAG_METRICS says otherwise.
	Metrics = "metrics"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	return EnabledOr(name, false)
}

// EnabledOr is Enabled with a default for unset or unrecognised values
func EnabledOr(name string, def bool) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
