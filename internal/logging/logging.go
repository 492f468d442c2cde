// Package logging wires up structured logging for the engine using
// log/slog, fanning out to a human-readable stdout stream and an optional
// JSON log file.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type contextKey string

const loggerKey contextKey = "logger"

// New builds a logger that writes human-readable lines to stdout and, when
// logsDir is non-empty, also appends JSON lines to <logsDir>/engine.log.
// level follows slog's naming ("debug", "info", "warn", "error").
func New(level string, logsDir string) (*slog.Logger, error) {
	lvl := parseLevel(level)

	writers := []io.Writer{os.Stdout}
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(logsDir, "engine.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}

	handlers := make([]slog.Handler, 0, len(writers))
	for i, w := range writers {
		opts := &slog.HandlerOptions{Level: lvl}
		if i == 0 {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		}
	}

	return slog.New(newFanoutHandler(handlers)), nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger attached by WithLogger, or slog.Default()
// if none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Filename returns the base name of path, for log lines that should show
// "file.mp4" rather than the full "/home/user/downloads/file.mp4".
func Filename(path string) string {
	return filepath.Base(path)
}

// fanoutHandler dispatches every record to each of its inner handlers. The
// retrieval pack's one logging-library example (italolelis-seedbox_downloader)
// uses log/slog directly without a multi-handler dependency, so this stays
// on the standard library's slog.Handler interface rather than reaching for
// a third-party fanout package.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers []slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, inner := range h.handlers {
		if inner.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, inner := range h.handlers {
		if !inner.Enabled(ctx, record.Level) {
			continue
		}
		if err := inner.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		next[i] = inner.WithAttrs(attrs)
	}
	return newFanoutHandler(next)
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		next[i] = inner.WithGroup(name)
	}
	return newFanoutHandler(next)
}
