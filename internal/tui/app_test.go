package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/focus/internal/config"
	"github.com/kingrea/focus/internal/logbook"
	"github.com/kingrea/focus/internal/logging"
	"github.com/kingrea/focus/internal/module/moduletest"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/secrets"
	"github.com/kingrea/focus/internal/service"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/sdk"
)

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	cfg, err := config.NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Project.Broadcast.Debounce = 0
	catalog := moduletest.NewCatalog()
	def := catalog.Add("timer", func() sdk.Module {
		return &moduletest.Module{
			Name:    "timer",
			Fields:  []*sdk.Setting{sdk.NewIntSetting("minutes", "Minutes", 25)},
			Exposed: []sdk.Action{{Key: "reset", Label: "Reset"}},
		}
	})
	svc, err := service.Open(context.Background(), cfg, logging.Nop(),
		service.WithCatalog(catalog), service.WithSecretBackend(secrets.NewMemoryBackend()))
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	if _, err := svc.SavePreset(preset.Preset{ID: "focus", Name: "Focus", Modules: []preset.ConfiguredModule{
		{InstanceID: "timer", ModuleID: def.ID, DisplayName: "Pomodoro"},
	}}); err != nil {
		t.Fatalf("save preset: %v", err)
	}
	return svc
}

func newTestApp(t *testing.T, svc *service.Service, opts ...AppOption) *App {
	t.Helper()
	app := NewApp(svc, opts...)
	t.Cleanup(app.Close)
	step(t, app, tea.WindowSizeMsg{Width: 120, Height: 40})
	step(t, app, app.loadPresets()())
	return app
}

// step delivers msg and returns the follow-up command.
func step(t *testing.T, app *App, msg tea.Msg) tea.Cmd {
	t.Helper()
	model, cmd := app.Update(msg)
	if model != app {
		t.Fatalf("unexpected model %T", model)
	}
	return cmd
}

// run executes cmd and delivers its message, following up once.
func run(t *testing.T, app *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	if next := step(t, app, cmd()); next != nil {
		if loaded, ok := next().(instanceLoadedMsg); ok {
			step(t, app, loaded)
		}
	}
}

func key(value string) tea.KeyMsg {
	switch value {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(value)}
}

func startFocus(t *testing.T, app *App) {
	t.Helper()
	run(t, app, step(t, app, key("enter")))
	if app.status.State != session.StateRunning {
		t.Fatalf("expected running session, status %q", app.statusMsg)
	}
}

func TestStartPresetFromMenu(t *testing.T) {
	svc := newTestService(t)
	app := newTestApp(t, svc)
	if len(app.presetMenu.Items()) != 1 {
		t.Fatalf("expected one preset, got %d", len(app.presetMenu.Items()))
	}
	startFocus(t, app)
	if len(app.settings) != 1 || len(app.actions) != 1 || app.instanceID != "timer" {
		t.Fatalf("selected instance not loaded: %+v %+v", app.settings, app.actions)
	}
	view := app.View()
	for _, want := range []string{"RUNNING", "Pomodoro", "Minutes: 25", "Reset"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	msg := app.waitForSessionEvent()()
	step(t, app, msg)
	if !strings.Contains(app.statusMsg, "Session started · Focus") {
		t.Fatalf("unexpected status line %q", app.statusMsg)
	}
}

func TestLiveSettingUpdatePatchesBoard(t *testing.T) {
	svc := newTestService(t)
	app := newTestApp(t, svc)
	startFocus(t, app)

	if err := svc.UpdateSettingRaw(context.Background(), "timer", "minutes", "45"); err != nil {
		t.Fatalf("update: %v", err)
	}
	step(t, app, app.waitForSettingUpdate()())
	if got := app.settings[0].Value.Int(); got != 45 {
		t.Fatalf("expected live value 45, got %d", got)
	}
}

func TestEditSettingAndInvokeAction(t *testing.T) {
	svc := newTestService(t)
	app := newTestApp(t, svc)
	startFocus(t, app)

	run(t, app, step(t, app, key("tab")))
	if app.focus != focusInstances {
		t.Fatalf("expected instance focus, got %d", app.focus)
	}
	step(t, app, key("tab"))
	if app.focus != focusSettings {
		t.Fatalf("expected settings focus, got %d", app.focus)
	}
	step(t, app, key("enter"))
	if !app.editing || app.input.Value() != "25" {
		t.Fatalf("expected editor seeded with current value, got %q", app.input.Value())
	}
	app.input.SetValue("50")
	run(t, app, step(t, app, key("enter")))
	views, err := svc.InstanceSettings("timer")
	if err != nil || views[0].Value.Int() != 50 {
		t.Fatalf("expected stored value 50, got %+v (%v)", views, err)
	}

	run(t, app, step(t, app, key("1")))
	if app.statusMsg != "Reset done" {
		t.Fatalf("unexpected action status %q", app.statusMsg)
	}
	if cmd := step(t, app, key("9")); cmd != nil {
		t.Fatalf("missing action must be ignored")
	}

	run(t, app, step(t, app, key("s")))
	if app.status.State != session.StateIdle || app.focus != focusPresets || app.settings != nil {
		t.Fatalf("expected board to reset after stop, state=%s focus=%d", app.status.State, app.focus)
	}
}

func TestStopWithoutSessionReportsFailure(t *testing.T) {
	svc := newTestService(t)
	app := newTestApp(t, svc)
	run(t, app, step(t, app, key("s")))
	if !strings.Contains(app.statusMsg, "Stop failed") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestLogPanelShowsHistory(t *testing.T) {
	svc := newTestService(t)
	book, err := logbook.New(filepath.Join(t.TempDir(), "history.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	book.Info("session s1 started preset %q with Pomodoro", "Focus")
	app := newTestApp(t, svc, WithLogbook(book))
	if view := app.View(); !strings.Contains(view, "HISTORY · history.log") || !strings.Contains(view, "with Pomodoro") {
		t.Fatalf("history panel missing:\n%s", view)
	}
}
