package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesJSONLines(t *testing.T) {
	home := t.TempDir()
	logger, err := New(home, WithLevel("debug"))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Printf("session %s started\n", "abc")
	mod := logger.Module("2f1c", "Timer", "timer-1")
	mod.Warn().Msg("slow start")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(home, ".focus", "logs", "focus.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), data)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if first["message"] != "session abc started" {
		t.Fatalf("unexpected message %v", first["message"])
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}
	if second["module_id"] != "2f1c" || second["instance_id"] != "timer-1" || second["level"] != "warn" {
		t.Fatalf("expected module identity fields, got %v", second)
	}
}

func TestLevelFiltersLines(t *testing.T) {
	var buf bytes.Buffer
	logger := FromZerolog(zerolog.New(&buf).Level(ParseLevel("warn")))
	logger.Printf("hidden")
	registryLog := logger.Component("registry")
	registryLog.Error().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseLevelFallsBack(t *testing.T) {
	if ParseLevel("nonsense") != zerolog.InfoLevel || ParseLevel("") != zerolog.InfoLevel {
		t.Fatalf("expected info fallback")
	}
	if ParseLevel(" DEBUG ") != zerolog.DebugLevel {
		t.Fatalf("expected debug")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
	moduleLog := logger.Module("a", "b", "c")
	moduleLog.Info().Msg("ignored")
}
