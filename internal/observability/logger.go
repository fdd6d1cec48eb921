package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
)

type Logger struct {
	base *slog.Logger
}

// NewLogger builds a JSON logger on stdout. LOG_LEVEL and LOG_FORMAT adjust
// the level and switch to text output.
func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func NewLoggerTo(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{base: slog.New(handler)}
}

// NopLogger discards everything. Used by tests and optional collaborators.
func NopLogger() *Logger {
	return &Logger{base: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{base: l.base.With(attrs(fields)...)}
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.base.Debug(message, attrs(fields)...)
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.base.Info(message, attrs(fields)...)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.base.Warn(message, attrs(fields)...)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.base.Error(message, attrs(fields)...)
}

// BusinessError records a failure the application produced on purpose
// (validation, lock contention, bad credentials).
func (l *Logger) BusinessError(message string, err error, fields map[string]any) {
	l.base.Warn(message, append(attrs(fields), "log_type", "business_error", "error", err.Error())...)
}

// SystemError records an unexpected failure and forwards it to sentry.
func (l *Logger) SystemError(message string, err error, fields map[string]any) {
	l.base.Error(message, append(attrs(fields), "log_type", "system_error", "error", err.Error())...)
	sentry.CaptureException(err)
}

func attrs(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
