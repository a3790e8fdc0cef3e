// Package logbook keeps a human-readable history of focus sessions.
package logbook

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/focus/internal/session"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook persists session history to a simple text file.
type Logbook struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

var _ session.Publisher = (*Logbook)(nil)

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Publish records session starts and stops.
func (l *Logbook) Publish(_ context.Context, event session.Event) {
	if l == nil {
		return
	}
	labels := make([]string, 0, len(event.Instances))
	for _, inst := range event.Instances {
		labels = append(labels, inst.Label)
	}
	switch event.Type {
	case session.EventStarted:
		l.Info("session %s started preset %q with %s", event.SessionID, event.PresetName, strings.Join(labels, ", "))
	case session.EventStopped:
		var duration string
		if event.Session != nil && !event.Session.StartedAt.IsZero() {
			duration = " after " + event.At.Sub(event.Session.StartedAt).Round(time.Second).String()
		}
		if len(event.Errors) > 0 {
			l.Warn("session %s stopped%s with %d teardown error(s): %s", event.SessionID, duration, len(event.Errors), strings.Join(event.Errors, "; "))
			return
		}
		l.Info("session %s stopped%s", event.SessionID, duration)
	}
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries and the total
// number of entries.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
