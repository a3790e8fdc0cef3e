package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/config"
)

// Logger appends JSON lines to .focus/logs/focus.log so users can inspect
// module failures after a session has ended.
type Logger struct {
	file *os.File
	zl   zerolog.Logger
}

// Option customizes logger construction.
type Option func(*options)

type options struct {
	level   zerolog.Level
	console io.Writer
}

// WithLevel sets the minimum level written. Unknown names fall back to info.
func WithLevel(level string) Option {
	return func(o *options) {
		o.level = ParseLevel(level)
	}
}

// WithConsole mirrors every line to w in human-readable form.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// New creates (or reuses) the log file under homeDir/.focus/logs.
func New(homeDir string, opts ...Option) (*Logger, error) {
	o := options{level: zerolog.InfoLevel}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	logDir := filepath.Join(homeDir, config.FocusDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "focus.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	var out io.Writer = f
	if o.console != nil {
		out = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: o.console, TimeFormat: time.RFC3339})
	}
	zl := zerolog.New(out).Level(o.level).With().Timestamp().Str("app", "focus").Logger()
	return &Logger{file: f, zl: zl}, nil
}

// FromZerolog wraps an existing zerolog logger. Close is a no-op.
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel maps a config level name onto a zerolog level.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single info line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	l.zl.Info().Msg(strings.TrimRight(line, "\n"))
}

// Zerolog exposes the underlying structured logger.
func (l *Logger) Zerolog() zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.zl
}

// Component returns a child logger tagged with a runtime component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.Zerolog().With().Str("component", name).Logger()
}

// Module returns a child logger tagged with a module's identity. It is the
// logger handed to module instances.
func (l *Logger) Module(moduleID, name, instanceID string) zerolog.Logger {
	return l.Zerolog().With().
		Str("component", "module").
		Str("module_id", moduleID).
		Str("module", name).
		Str("instance_id", instanceID).
		Logger()
}
