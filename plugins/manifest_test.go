package plugins

import (
	"path/filepath"
	"testing"

	"github.com/kingrea/focus/sdk"
)

const sampleManifest = `id: 6F1D2C3E-8A4B-4C5D-9E6F-0A1B2C3D4E5F
name: " Focus Timer "
category: productivity
platforms: [Darwin, linux]
assembly: timer.go
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.ID != timerID || m.Name != "Focus Timer" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	def := m.Definition(filepath.Join("plugins", "timer", "manifest.yaml"), 2)
	if !def.Supports(sdk.PlatformMacOS) || !def.Supports(sdk.PlatformLinux) || def.Supports(sdk.PlatformWindows) {
		t.Fatalf("unexpected platforms %v", def.Platforms)
	}
	if def.Assembly != filepath.Join("plugins", "timer", "timer.go") || def.Root != 2 {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestParseManifestJSON(t *testing.T) {
	payload := `{"id": "1b0c6a2e-3f4d-4e5a-8b6c-7d8e9f0a1b2c", "name": "Arranger", "platforms": ["windows"], "assembly": "builtin:arranger"}`
	m, err := ParseManifest([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := m.Definition("/x/manifest.json", 0)
	if name, ok := def.Builtin(); !ok || name != "arranger" {
		t.Fatalf("expected builtin assembly, got %s", def.Assembly)
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"bad id":     "id: timer\nname: T\nplatforms: [linux]\nassembly: t.go\n",
		"no name":    "id: 6f1d2c3e-8a4b-4c5d-9e6f-0a1b2c3d4e5f\nplatforms: [linux]\nassembly: t.go\n",
		"platform":   "id: 6f1d2c3e-8a4b-4c5d-9e6f-0a1b2c3d4e5f\nname: T\nplatforms: [beos]\nassembly: t.go\n",
		"assembly":   "id: 6f1d2c3e-8a4b-4c5d-9e6f-0a1b2c3d4e5f\nname: T\nplatforms: [linux]\nassembly: t.dll\n",
		"no targets": "id: 6f1d2c3e-8a4b-4c5d-9e6f-0a1b2c3d4e5f\nname: T\nassembly: t.go\n",
	}
	for name, payload := range tests {
		if _, err := ParseManifest([]byte(payload)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
