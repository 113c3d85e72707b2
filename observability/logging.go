package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig controls logger construction.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is json or text. Defaults to json.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// redactPatterns match credentials that must never reach a log line. Commands
// written by the model and provider error texts both pass through the logger.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_\-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{32,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret)(["']?\s*[:=]\s*["']?)([^\s"'&]{8,})`),
}

const redacted = "[REDACTED]"

// NewLogger builds a structured logger. String attribute values are passed
// through credential redaction.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "text"})
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: LogLevelFromString(config.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(Redact(a.Value.String()))
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}
	return slog.New(handler)
}

// Redact masks credentials in s.
func Redact(s string) string {
	for i, re := range redactPatterns {
		if i == len(redactPatterns)-1 {
			s = re.ReplaceAllString(s, "${1}${2}"+redacted)
			continue
		}
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// LogLevelFromString converts a string to a slog.Level.
// Returns LevelInfo if the string is not recognized.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
