package plugins

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/sdk"
)

// manifestNames lists the accepted manifest file names in lookup order.
var manifestNames = []string{"manifest.yaml", "manifest.yml", "manifest.json"}

// Manifest describes a plugin directory.
//
// The struct mirrors the on-disk schema of <root>/<plugin>/manifest.yaml.
// JSON manifests decode through the same YAML parser.
type Manifest struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Platforms   []string `json:"platforms" yaml:"platforms"`
	// Assembly is a .go file relative to the manifest, or builtin:<name>.
	Assembly string `json:"assembly" yaml:"assembly"`
}

// Normalized returns a trimmed copy with canonical casing.
func (m Manifest) Normalized() Manifest {
	clone := Manifest{
		ID:          strings.ToLower(strings.TrimSpace(m.ID)),
		Name:        strings.TrimSpace(m.Name),
		Description: strings.TrimSpace(m.Description),
		Category:    strings.TrimSpace(m.Category),
		Assembly:    strings.TrimSpace(m.Assembly),
	}
	for _, p := range m.Platforms {
		if trimmed := strings.ToLower(strings.TrimSpace(p)); trimmed != "" {
			clone.Platforms = append(clone.Platforms, trimmed)
		}
	}
	return clone
}

// Validate ensures the manifest is well-formed.
func (m Manifest) Validate() error {
	normalized := m.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if _, err := uuid.Parse(normalized.ID); err != nil {
		return fmt.Errorf("plugin: id %q is not a uuid", normalized.ID)
	}
	if normalized.Name == "" {
		return fmt.Errorf("plugin %s: name is required", normalized.ID)
	}
	if normalized.Assembly == "" {
		return fmt.Errorf("plugin %s: assembly is required", normalized.ID)
	}
	if len(normalized.Platforms) == 0 {
		return fmt.Errorf("plugin %s: at least one platform is required", normalized.ID)
	}
	for _, p := range normalized.Platforms {
		if _, ok := parsePlatform(p); !ok {
			return fmt.Errorf("plugin %s: unknown platform %q", normalized.ID, p)
		}
	}
	if !strings.HasPrefix(normalized.Assembly, module.BuiltinPrefix) && filepath.Ext(normalized.Assembly) != ".go" {
		return fmt.Errorf("plugin %s: assembly %s must be a .go file or %s<name>", normalized.ID, normalized.Assembly, module.BuiltinPrefix)
	}
	return nil
}

// Definition converts the manifest into a catalog definition. Relative
// assemblies resolve against the manifest's directory.
func (m Manifest) Definition(manifestPath string, root int) module.Definition {
	normalized := m.Normalized()
	def := module.Definition{
		ID:           normalized.ID,
		Name:         normalized.Name,
		Description:  normalized.Description,
		Category:     normalized.Category,
		Assembly:     normalized.Assembly,
		ManifestPath: filepath.Clean(manifestPath),
		Root:         root,
	}
	for _, p := range normalized.Platforms {
		if platform, ok := parsePlatform(p); ok {
			def.Platforms = append(def.Platforms, platform)
		}
	}
	if _, builtin := def.Builtin(); !builtin && !filepath.IsAbs(def.Assembly) {
		def.Assembly = filepath.Join(filepath.Dir(def.ManifestPath), def.Assembly)
	}
	return def
}

// ParseManifest decodes and validates a manifest payload.
func ParseManifest(data []byte) (Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Manifest{}, fmt.Errorf("plugin: manifest is empty")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("plugin: decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m.Normalized(), nil
}

// LoadManifest reads a manifest file from disk.
func LoadManifest(path string) (Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Manifest{}, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	return ParseManifest(data)
}

// findManifest returns the manifest inside dir, or "" when there is none.
func findManifest(dir string) string {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func parsePlatform(value string) (sdk.Platform, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "windows":
		return sdk.PlatformWindows, true
	case "macos", "darwin", "osx":
		return sdk.PlatformMacOS, true
	case "linux":
		return sdk.PlatformLinux, true
	}
	return "", false
}
