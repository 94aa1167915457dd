// package shared defines shared helpers
package shared

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// SetLogLevelString parses a level name ("debug", "info", ...) and applies it.
//
// Unknown names leave the level unchanged and return false.
func SetLogLevelString(l *log.Logger, level string) bool {
	if level == "" {
		return false
	}
	ll, err := log.ParseLevel(level)
	if err != nil {
		return false
	}
	l.SetLevel(ll)
	return true
}

// DiscardLogger returns a logger that writes nowhere, for tests and quiet commands.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// CanonicalKey parses s as a GUID in any of the formats accepted by [uuid.Parse]
// and returns the 32 character lower-case hex form used as a library key.
func CanonicalKey(s string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return strings.ReplaceAll(id.String(), "-", ""), true
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
