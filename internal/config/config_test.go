package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	homeDir := t.TempDir()
	focusDir := filepath.Join(homeDir, ".focus")
	if err := os.MkdirAll(focusDir, 0755); err != nil {
		t.Fatal(err)
	}
	c := &Config{HomeDir: homeDir, FocusHomeDir: focusDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Timeouts.Start != DefaultStartTimeout {
		t.Fatalf("expected default start timeout, got %s", c.Project.Timeouts.Start)
	}
	roots := c.SearchRoots()
	if len(roots) != 1 || roots[0] != filepath.Join(focusDir, "plugins") {
		t.Fatalf("expected default plugin root, got %v", roots)
	}
	if !c.BridgeEnabled() {
		t.Fatalf("expected bridge enabled by default")
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	homeDir := t.TempDir()
	focusDir := filepath.Join(homeDir, ".focus")
	if err := os.MkdirAll(focusDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
search_roots:
  - plugins
  - /opt/focus/modules
  - plugins
timeouts:
  validate: 2s
  start: 1500ms
broadcast:
  debounce: 20ms
bridge:
  enabled: false
  port: 9100
log:
  level: DEBUG
`)
	if err := os.WriteFile(filepath.Join(focusDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Config{HomeDir: homeDir, FocusHomeDir: focusDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	roots := c.SearchRoots()
	if len(roots) != 2 {
		t.Fatalf("expected duplicate root to be dropped, got %v", roots)
	}
	if roots[0] != filepath.Join(focusDir, "plugins") || roots[1] != "/opt/focus/modules" {
		t.Fatalf("unexpected roots %v", roots)
	}
	if c.Project.Timeouts.Validate != 2*time.Second || c.Project.Timeouts.Start != 1500*time.Millisecond {
		t.Fatalf("unexpected timeouts %+v", c.Project.Timeouts)
	}
	if c.Project.Timeouts.Stop != DefaultStopTimeout {
		t.Fatalf("expected stop timeout default, got %s", c.Project.Timeouts.Stop)
	}
	if c.Project.Broadcast.Debounce != 20*time.Millisecond || c.Project.Broadcast.Buffer != DefaultBufferSize {
		t.Fatalf("unexpected broadcast config %+v", c.Project.Broadcast)
	}
	if c.BridgeEnabled() || c.Project.Bridge.Port != 9100 || c.Project.Bridge.Host != DefaultBridgeHost {
		t.Fatalf("unexpected bridge config %+v", c.Project.Bridge)
	}
	if c.Project.Log.Level != "debug" {
		t.Fatalf("expected lowercased log level, got %s", c.Project.Log.Level)
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	homeDir := t.TempDir()
	focusDir := filepath.Join(homeDir, ".focus")
	if err := os.MkdirAll(focusDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
log:
  level: chatty
`)
	if err := os.WriteFile(filepath.Join(focusDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Config{HomeDir: homeDir, FocusHomeDir: focusDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}

func TestNewConfigHonorsEnv(t *testing.T) {
	homeDir := t.TempDir()
	if err := InitFocusDir(homeDir); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Setenv("FOCUS_BRIDGE_PORT", "9001")
	t.Setenv("FOCUS_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("FOCUS_BRIDGE_ENABLED", "false")
	t.Setenv("FOCUS_LOG_LEVEL", "WARN")
	c, err := NewConfig(homeDir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if c.Project.Bridge.Port != 9001 || c.Project.Bridge.Host != "0.0.0.0" || c.BridgeEnabled() {
		t.Fatalf("expected env overrides, got %+v", c.Project.Bridge)
	}
	if c.Project.Log.Level != "warn" {
		t.Fatalf("expected log level override, got %s", c.Project.Log.Level)
	}
}

func TestAddSearchRootPersists(t *testing.T) {
	homeDir := t.TempDir()
	if err := InitFocusDir(homeDir); err != nil {
		t.Fatalf("init: %v", err)
	}
	c, err := NewConfig(homeDir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if err := c.AddSearchRoot("extra"); err != nil {
		t.Fatalf("add root: %v", err)
	}
	reloaded, err := NewConfig(homeDir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	roots := reloaded.SearchRoots()
	if len(roots) != 2 || roots[1] != filepath.Join(homeDir, ".focus", "extra") {
		t.Fatalf("expected persisted root, got %v", roots)
	}
	if reloaded.Project.Timeouts.Start != DefaultStartTimeout {
		t.Fatalf("expected durations to survive a save, got %s", reloaded.Project.Timeouts.Start)
	}
}

func TestDefaultHomeUsesEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOCUS_HOME", dir)
	home, err := DefaultHome()
	if err != nil {
		t.Fatalf("default home: %v", err)
	}
	if home != filepath.Clean(dir) {
		t.Fatalf("expected %s, got %s", dir, home)
	}
}
