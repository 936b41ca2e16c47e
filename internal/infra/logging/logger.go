// Package logging provides file-based logging for the magicbin daemon.
// Records go to the daemon log file (<state>/logs/mb.log) and, when
// running in the foreground, to an extra writer such as stderr.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/magicbin/internal/domain"
)

// Logger owns the daemon log file and hands out slog loggers writing to it.
// Fields are ordered to minimize memory padding.
type Logger struct {
	file     *os.File
	extra    io.Writer
	stateDir string
	mu       sync.Mutex
	level    slog.Level
}

// New creates a new Logger that writes to the state log directory.
// If stateDir is empty, file logging is disabled.
func New(stateDir string, level slog.Level) *Logger {
	return &Logger{
		stateDir: stateDir,
		level:    level,
	}
}

// WithWriter also writes every record to w.
func (l *Logger) WithWriter(w io.Writer) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extra = w
	return l
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Path returns the daemon log file path, or "" when file logging is disabled.
func (l *Logger) Path() string {
	if l.stateDir == "" {
		return ""
	}
	return domain.DaemonLogPath(l.stateDir)
}

// Slog returns a structured logger writing through l.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(&handler{logger: l})
}

// ensureFile opens or returns the daemon log file. Caller holds l.mu.
func (l *Logger) ensureFile() (*os.File, error) {
	if l.file != nil {
		return l.file, nil
	}

	path := l.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
	if err != nil {
		return nil, fmt.Errorf("open daemon log file: %w", err)
	}
	l.file = f
	return f, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) write(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stateDir != "" {
		if f, err := l.ensureFile(); err == nil {
			_, _ = io.WriteString(f, entry)
		}
	}
	if l.extra != nil {
		_, _ = io.WriteString(l.extra, entry)
	}
}

// formatLog formats a log entry.
// Format: [2025-12-30 09:32:51] [INFO] [web/server] message key=value
func formatLog(t time.Time, level slog.Level, scope, msg string, attrs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] [%s] %s",
		t.Format("2006-01-02 15:04:05"),
		levelToString(level),
		scope,
		msg,
	)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	b.WriteByte('\n')
	return b.String()
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// handler renders slog records in the daemon log format.
// The namespace and task attributes form the scope column.
type handler struct {
	logger    *Logger
	namespace string
	task      string
	group     string
	attrs     []string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logger.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	scoped := *h
	scoped.attrs = append([]string(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		scoped.add(a)
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	h.logger.write(formatLog(t, r.Level, scoped.scope(), r.Message, scoped.attrs))
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]string(nil), h.attrs...)
	for _, a := range attrs {
		next.add(a)
	}
	return &next
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if next.group != "" {
		name = next.group + "." + name
	}
	next.group = name
	return &next
}

func (h *handler) add(a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if h.group == "" {
		switch a.Key {
		case "namespace":
			h.namespace = a.Value.String()
			return
		case "task":
			h.task = a.Value.String()
			return
		}
	}

	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.attrs = append(h.attrs, fmt.Sprintf("%s.%s=%s", key, ga.Key, quote(ga.Value.String())))
		}
		return
	}
	h.attrs = append(h.attrs, fmt.Sprintf("%s=%s", key, quote(a.Value.String())))
}

func (h *handler) scope() string {
	switch {
	case h.namespace != "" && h.task != "":
		return h.namespace + "/" + h.task
	case h.namespace != "":
		return h.namespace
	default:
		return "daemon"
	}
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
