package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/focus/internal/module/moduletest"
	"github.com/kingrea/focus/internal/secrets"
	"github.com/kingrea/focus/internal/service"
	"github.com/kingrea/focus/sdk"
)

type harness struct {
	home     string
	moduleID string
	opts     []service.RuntimeOption
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("FOCUS_BRIDGE_ENABLED", "false")
	catalog := moduletest.NewCatalog()
	def := catalog.Add("timer", func() sdk.Module {
		return &moduletest.Module{
			Name:   "timer",
			Fields: []*sdk.Setting{sdk.NewIntSetting("minutes", "Minutes", 25)},
		}
	})
	return &harness{
		home:     t.TempDir(),
		moduleID: def.ID,
		opts:     []service.RuntimeOption{service.WithCatalog(catalog), service.WithSecretBackend(secrets.NewMemoryBackend())},
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(h.opts...)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--home", h.home}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) writePreset(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preset.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}
	return path
}

func TestRootsAddAndList(t *testing.T) {
	h := newHarness(t)
	extra := t.TempDir()
	if _, err := h.run(t, "roots", "add", extra); err != nil {
		t.Fatalf("roots add: %v", err)
	}
	out, err := h.run(t, "roots", "list")
	if err != nil {
		t.Fatalf("roots list: %v", err)
	}
	if !strings.Contains(out, extra) {
		t.Fatalf("expected %s in roots, got %q", extra, out)
	}
}

func TestModulesJSON(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "--json", "modules")
	if err != nil {
		t.Fatalf("modules: %v", err)
	}
	var modules []service.ModuleInfo
	if err := json.Unmarshal([]byte(out), &modules); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(modules) != 1 || modules[0].ID != h.moduleID {
		t.Fatalf("unexpected modules %+v", modules)
	}
	out, err = h.run(t, "modules", "settings", h.moduleID)
	if err != nil || !strings.Contains(out, "minutes") || !strings.Contains(out, "25") {
		t.Fatalf("unexpected settings output %q (%v)", out, err)
	}
}

func TestPresetImportMigratesLegacyDocuments(t *testing.T) {
	h := newHarness(t)
	legacy := `{"id":"deep","name":"Deep work","modules":[{"instance_id":"timer","module_id":"` + h.moduleID + `","start_delay_ms":0,"settings":{"minutes":40}}]}`
	out, err := h.run(t, "presets", "import", h.writePreset(t, legacy))
	if err != nil || !strings.Contains(out, "saved preset deep") {
		t.Fatalf("import: %q (%v)", out, err)
	}
	out, err = h.run(t, "presets", "list")
	if err != nil || !strings.Contains(out, "Deep work") {
		t.Fatalf("list: %q (%v)", out, err)
	}
	out, err = h.run(t, "presets", "show", "deep")
	if err != nil || !strings.Contains(out, `"version": 2`) || !strings.Contains(out, `"minutes": "40"`) {
		t.Fatalf("show: %q (%v)", out, err)
	}
	if _, err := h.run(t, "presets", "delete", "deep"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.run(t, "presets", "show", "deep"); err == nil {
		t.Fatalf("expected deleted preset to be missing")
	}
}

func TestRunStopsAfterDuration(t *testing.T) {
	h := newHarness(t)
	doc := `{"version":2,"id":"focus","name":"Focus","modules":[{"instance_id":"timer","module_id":"` + h.moduleID + `","display_name":"Pomodoro"}]}`
	if _, err := h.run(t, "presets", "import", h.writePreset(t, doc)); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := h.run(t, "run", "focus", "--for", "50ms")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Pomodoro (timer)") || !strings.Contains(out, "session stopped") {
		t.Fatalf("unexpected run output %q", out)
	}
	history, err := os.ReadFile(filepath.Join(h.home, ".focus", "state", "history.log"))
	if err != nil || strings.Count(string(history), "\n") != 2 {
		t.Fatalf("expected start and stop in history, got %q (%v)", history, err)
	}
}

func TestRunReportsInvalidSetting(t *testing.T) {
	h := newHarness(t)
	doc := `{"version":2,"id":"bad","modules":[{"instance_id":"timer","module_id":"` + h.moduleID + `","settings":{"minutes":"soon"}}]}`
	if _, err := h.run(t, "presets", "import", h.writePreset(t, doc)); err != nil {
		t.Fatalf("import: %v", err)
	}
	_, err := h.run(t, "run", "bad", "--for", "10ms")
	if err == nil || !strings.Contains(err.Error(), `setting "minutes" is invalid`) {
		t.Fatalf("expected invalid setting error, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3", "abc")
	t.Cleanup(func() { SetVersion("dev", "unknown") })
	h := newHarness(t)
	out, err := h.run(t, "version")
	if err != nil || strings.TrimSpace(out) != "focus 1.2.3 (abc)" {
		t.Fatalf("unexpected version %q (%v)", out, err)
	}
}
