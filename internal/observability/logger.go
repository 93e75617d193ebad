package observability

import (
	"io"
	"log/slog"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// LogConfig is the subset of service configuration the logger needs.
type LogConfig interface {
	LogSettings() (level, format string)
}

// NewLogger builds the service logger on stdout and installs it as the slog
// default.
func NewLogger(cfg LogConfig) *slog.Logger {
	level, format := cfg.LogSettings()
	return sharedobs.NewLogger(level, format)
}

// NewLoggerTo builds a JSON or text slog logger at the named level writing to
// w, leaving the slog default alone. The CLI uses it so log lines stay off the
// stdout used for reports. Unknown levels fall back to info; any format other
// than "text" is JSON.
func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
