// internal/config/config.go
//
// This package handles configuration and the .focus directory structure.
// The runtime keeps its logs, presets, plugins and session history under
// a single .focus/ folder inside the user's data directory.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FocusDir is the name of the directory we create in the data directory
	FocusDir = ".focus"

	DefaultValidateTimeout = 5 * time.Second
	DefaultStartTimeout    = 10 * time.Second
	DefaultStopTimeout     = 10 * time.Second
	DefaultDebounce        = 50 * time.Millisecond
	DefaultBufferSize      = 64
	DefaultBridgeHost      = "127.0.0.1"
	DefaultBridgePort      = 8765
	DefaultLogLevel        = "info"
)

const defaultProjectConfigYAML = `# focus runtime configuration
version: 1

# Directories scanned for module plugins, highest priority first.
# Relative paths resolve against the .focus directory.
search_roots:
  - plugins

# Per-hook time budgets.
timeouts:
  validate: 5s
  start: 10s
  stop: 10s

# Live setting updates sent to observers.
broadcast:
  debounce: 50ms
  buffer: 64

# Local HTTP bridge used by clients and the terminal monitor.
bridge:
  enabled: true
  host: 127.0.0.1
  port: 8765

log:
  level: info
`

// TimeoutConfig bounds each module hook.
type TimeoutConfig struct {
	Validate time.Duration `yaml:"validate"`
	Start    time.Duration `yaml:"start"`
	Stop     time.Duration `yaml:"stop"`
}

// BroadcastConfig tunes setting update delivery.
type BroadcastConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Buffer   int           `yaml:"buffer"`
}

// BridgeConfig controls the local HTTP bridge.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .focus/config.yaml.
type ProjectConfig struct {
	Version     int             `yaml:"version"`
	SearchRoots []string        `yaml:"search_roots"`
	Timeouts    TimeoutConfig   `yaml:"timeouts"`
	Broadcast   BroadcastConfig `yaml:"broadcast"`
	Bridge      BridgeConfig    `yaml:"bridge"`
	Log         LogConfig       `yaml:"log"`
}

// Config holds the runtime configuration for focus.
type Config struct {
	// HomeDir is the data directory that contains .focus
	HomeDir string

	// FocusHomeDir is HomeDir/.focus
	FocusHomeDir string

	Project ProjectConfig
}

// DefaultHome returns FOCUS_HOME when set, otherwise the user's home directory.
func DefaultHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv("FOCUS_HOME")); home != "" {
		return filepath.Clean(home), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return home, nil
}

// InitFocusDir creates the .focus directory structure in the given directory.
//
// Structure created:
// .focus/
// ├── logs/      <- focus.log
// ├── plugins/   <- default module search root
// ├── presets/   <- one JSON document per preset
// └── state/     <- session history
func InitFocusDir(homeDir string) error {
	focusDir := filepath.Join(homeDir, FocusDir)

	dirs := []string{
		filepath.Join(focusDir, "logs"),
		filepath.Join(focusDir, "plugins"),
		filepath.Join(focusDir, "presets"),
		filepath.Join(focusDir, "state"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(focusDir, "config.yaml"))
}

// NewConfig loads .focus/config.yaml from homeDir and applies environment
// overrides. A missing file yields the defaults.
func NewConfig(homeDir string) (*Config, error) {
	cfg := &Config{
		HomeDir:      homeDir,
		FocusHomeDir: filepath.Join(homeDir, FocusDir),
		Project:      defaultProjectConfig(),
	}

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.FocusHomeDir, "logs")
}

// PresetsDir returns the path to the preset documents
func (c *Config) PresetsDir() string {
	return filepath.Join(c.FocusHomeDir, "presets")
}

// PluginsDir returns the default plugin search root
func (c *Config) PluginsDir() string {
	return filepath.Join(c.FocusHomeDir, "plugins")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.FocusHomeDir, "state")
}

// ProjectConfigPath returns the on-disk location for the config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.FocusHomeDir, "config.yaml")
}

// SearchRoots returns the configured plugin roots as absolute paths, in
// priority order.
func (c *Config) SearchRoots() []string {
	roots := make([]string, 0, len(c.Project.SearchRoots))
	for _, root := range c.Project.SearchRoots {
		if resolved := resolvePath(c.FocusHomeDir, root); resolved != "" {
			roots = append(roots, resolved)
		}
	}
	if len(roots) == 0 {
		roots = append(roots, c.PluginsDir())
	}
	return roots
}

// BridgeEnabled reports whether the HTTP bridge should start.
func (c *Config) BridgeEnabled() bool {
	if c.Project.Bridge.Enabled == nil {
		return true
	}
	return *c.Project.Bridge.Enabled
}

// AddSearchRoot appends a plugin root and persists the value back to
// .focus/config.yaml. Roots already present are ignored.
func (c *Config) AddSearchRoot(root string) error {
	root = strings.TrimSpace(root)
	if root == "" {
		return fmt.Errorf("config: search root is required")
	}
	if contains(c.Project.SearchRoots, root) {
		return nil
	}
	c.Project.SearchRoots = append(c.Project.SearchRoots, root)
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnvOverrides() {
	if level := strings.TrimSpace(os.Getenv("FOCUS_LOG_LEVEL")); level != "" {
		c.Project.Log.Level = strings.ToLower(level)
	}
	if value := strings.TrimSpace(os.Getenv("FOCUS_BRIDGE_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			c.Project.Bridge.Enabled = &enabled
		}
	}
	if host := strings.TrimSpace(os.Getenv("FOCUS_BRIDGE_HOST")); host != "" {
		c.Project.Bridge.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("FOCUS_BRIDGE_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && isValidPort(parsed) {
			c.Project.Bridge.Port = parsed
		}
	}
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{Version: 1}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Timeouts.Validate <= 0 {
		pc.Timeouts.Validate = DefaultValidateTimeout
	}
	if pc.Timeouts.Start <= 0 {
		pc.Timeouts.Start = DefaultStartTimeout
	}
	if pc.Timeouts.Stop <= 0 {
		pc.Timeouts.Stop = DefaultStopTimeout
	}
	if pc.Broadcast.Debounce <= 0 {
		pc.Broadcast.Debounce = DefaultDebounce
	}
	if pc.Broadcast.Buffer <= 0 {
		pc.Broadcast.Buffer = DefaultBufferSize
	}
	if strings.TrimSpace(pc.Bridge.Host) == "" {
		pc.Bridge.Host = DefaultBridgeHost
	}
	if pc.Bridge.Port == 0 {
		pc.Bridge.Port = DefaultBridgePort
	}
	if strings.TrimSpace(pc.Log.Level) == "" {
		pc.Log.Level = DefaultLogLevel
	}
}

func (pc *ProjectConfig) normalize() {
	roots := pc.SearchRoots[:0]
	for _, root := range pc.SearchRoots {
		if trimmed := strings.TrimSpace(root); trimmed != "" && !contains(roots, trimmed) {
			roots = append(roots, trimmed)
		}
	}
	pc.SearchRoots = roots
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Log.Level = strings.ToLower(strings.TrimSpace(pc.Log.Level))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !isValidPort(pc.Bridge.Port) {
		return fmt.Errorf("bridge.port %d is out of range", pc.Bridge.Port)
	}
	switch pc.Log.Level {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("log.level %q is not supported", pc.Log.Level)
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.FocusHomeDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure focus dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}
