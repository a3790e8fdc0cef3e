package preset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const timerID = "6f1d2c3e-8a4b-4c5d-9e6f-0a1b2c3d4e5f"

func samplePreset() Preset {
	return Preset{
		ID:   "deep-work",
		Name: "Deep work",
		Modules: []ConfiguredModule{
			{InstanceID: "timer", ModuleID: timerID, StartDelay: 2 * time.Second, Settings: map[string]string{"minutes": "50"}},
			{InstanceID: "timer-2", ModuleID: timerID, DisplayName: "Break"},
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "presets"))
	saved, err := store.Save(samplePreset())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, saved.Version)
	}
	loaded, err := store.Load("deep-work")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Modules) != 2 || loaded.Modules[0].StartDelay != 2*time.Second || loaded.Modules[0].Settings["minutes"] != "50" {
		t.Fatalf("unexpected preset %+v", loaded)
	}
	if loaded.Modules[1].Label() != "Break" || loaded.Modules[0].Label() != "timer" {
		t.Fatalf("unexpected labels %q %q", loaded.Modules[1].Label(), loaded.Modules[0].Label())
	}
	data, err := os.ReadFile(filepath.Join(store.Dir(), "deep-work.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"start_delay": "2s"`) {
		t.Fatalf("expected duration string in document:\n%s", data)
	}
	leftovers, _ := filepath.Glob(filepath.Join(store.Dir(), ".preset-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestSaveAssignsID(t *testing.T) {
	store := NewStore(t.TempDir())
	p := samplePreset()
	p.ID = ""
	saved, err := store.Save(p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := store.Load(saved.ID); err != nil {
		t.Fatalf("load generated: %v", err)
	}
}

func TestValidateRejectsBadPresets(t *testing.T) {
	tests := map[string]func(*Preset){
		"bad id":       func(p *Preset) { p.ID = "../escape" },
		"duplicate":    func(p *Preset) { p.Modules[1].InstanceID = "timer" },
		"empty inst":   func(p *Preset) { p.Modules[0].InstanceID = " " },
		"module id":    func(p *Preset) { p.Modules[0].ModuleID = "timer" },
		"negative gap": func(p *Preset) { p.Modules[0].StartDelay = -time.Second },
	}
	for name, mutate := range tests {
		p := samplePreset()
		mutate(&p)
		if err := p.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestLoadMigratesVersionOne(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "id": "legacy",
  "name": "Legacy",
  "modules": [
    {
      "instance_id": "timer",
      "module_id": "6F1D2C3E-8A4B-4C5D-9E6F-0A1B2C3D4E5F",
      "start_delay_ms": 1500,
      "settings": {"minutes": 25, "ratio": 0.5, "loud": true, "label": "Focus", "tags": ["a", 2], "gone": null}
    }
  ]
}`
	if err := os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := NewStore(dir).Load("legacy")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Version != CurrentVersion {
		t.Fatalf("expected migrated version, got %d", p.Version)
	}
	entry := p.Modules[0]
	if entry.ModuleID != timerID || entry.StartDelay != 1500*time.Millisecond {
		t.Fatalf("unexpected entry %+v", entry)
	}
	want := map[string]string{"minutes": "25", "ratio": "0.5", "loud": "true", "label": "Focus", "tags": `["a","2"]`}
	if len(entry.Settings) != len(want) {
		t.Fatalf("unexpected settings %v", entry.Settings)
	}
	for key, value := range want {
		if entry.Settings[key] != value {
			t.Fatalf("setting %s: expected %q, got %q", key, value, entry.Settings[key])
		}
	}
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "next.json"), []byte(`{"version": 9, "id": "next"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewStore(dir).Load("next"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	first := samplePreset()
	second := samplePreset()
	second.ID, second.Name = "admin", "Admin"
	for _, p := range []Preset{first, second} {
		if _, err := store.Save(p); err != nil {
			t.Fatalf("save %s: %v", p.ID, err)
		}
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	presets, err := store.List()
	if err == nil {
		t.Fatalf("expected broken document to be reported")
	}
	if len(presets) != 2 || presets[0].ID != "admin" || presets[1].ID != "deep-work" {
		t.Fatalf("unexpected list %+v", presets)
	}
	if err := store.Delete("admin"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load("admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete("admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListMissingDirectory(t *testing.T) {
	presets, err := NewStore(filepath.Join(t.TempDir(), "absent")).List()
	if err != nil || len(presets) != 0 {
		t.Fatalf("expected empty list, got %v %v", presets, err)
	}
}
