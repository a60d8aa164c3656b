// Package logging configures the process-wide slog logger: JSON records to
// stdout for the operator plus one JSON file per day under the log
// directory, with startup cleanup of files older than the retention window.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rgbwallet/rgbwallet/internal/config"
)

// teeHandler fans each record out to the stdout and file handlers.
type teeHandler struct {
	level    slog.Level
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= t.level
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if err := h.Handle(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &teeHandler{level: t.level, handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := &teeHandler{level: t.level, handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = h.WithGroup(name)
	}
	return out
}

// Setup installs the global logger and returns the log file's closer, to be
// closed on shutdown.
func Setup(levelStr, logDir string) (io.Closer, error) {
	level, err := parseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", logDir, err)
	}

	name := fmt.Sprintf(config.LogFilePattern, time.Now().Format("2006-01-02"))
	path := filepath.Join(logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	handler := &teeHandler{
		level: level,
		handlers: []slog.Handler{
			slog.NewJSONHandler(os.Stdout, opts),
			slog.NewJSONHandler(file, opts),
		},
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logging initialized", "level", levelStr, "file", path)

	if removed := CleanOldLogs(logDir, config.LogMaxAgeDays); removed > 0 {
		slog.Info("cleaned old log files", "removed", removed, "max_age_days", config.LogMaxAgeDays)
	}
	return file, nil
}

// CleanOldLogs removes this process's log files older than maxAgeDays,
// returning how many were deleted.
func CleanOldLogs(logDir string, maxAgeDays int) int {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	entries, err := os.ReadDir(logDir)
	if err != nil {
		slog.Warn("log cleanup: read dir failed", "dir", logDir, "error", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, config.LogFilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(logDir, name)); err != nil {
			slog.Warn("log cleanup: remove failed", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
