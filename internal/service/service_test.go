package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/focus/internal/broadcast"
	"github.com/kingrea/focus/internal/config"
	"github.com/kingrea/focus/internal/logging"
	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/internal/module/moduletest"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/secrets"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/plugins"
	"github.com/kingrea/focus/sdk"
)

const timerID = "6f1d2c3e-8a4b-4c5d-9e6f-0a1b2c3d4e5f"

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Project.Broadcast.Debounce = 0
	return cfg
}

func openTestService(t *testing.T, catalog module.Catalog, opts ...RuntimeOption) (*Service, *config.Config) {
	t.Helper()
	cfg := newTestConfig(t)
	opts = append([]RuntimeOption{WithCatalog(catalog), WithSecretBackend(secrets.NewMemoryBackend())}, opts...)
	svc, err := Open(context.Background(), cfg, logging.Nop(), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, cfg
}

func timerCatalog() (*moduletest.Catalog, module.Definition) {
	catalog := moduletest.NewCatalog()
	def := catalog.Add("timer", func() sdk.Module {
		return &moduletest.Module{
			Name: "timer",
			Fields: []*sdk.Setting{
				sdk.NewIntSetting("minutes", "Minutes", 25),
				sdk.NewSecretSetting("token", "Token"),
			},
			Exposed: []sdk.Action{{Key: "reset", Label: "Reset"}},
		}
	})
	return catalog, def
}

func TestSessionLifecycleThroughService(t *testing.T) {
	catalog, def := timerCatalog()
	svc, cfg := openTestService(t, catalog)

	if modules := svc.ListModules(); len(modules) != 1 || modules[0].ID != def.ID {
		t.Fatalf("unexpected modules %+v", modules)
	}
	saved, err := svc.SavePreset(preset.Preset{ID: "focus", Name: "Focus", Modules: []preset.ConfiguredModule{
		{InstanceID: "timer", ModuleID: def.ID, Settings: map[string]string{"minutes": "40"}},
	}})
	if err != nil {
		t.Fatalf("save preset: %v", err)
	}
	lifecycle := svc.SubscribeSessions()
	defer lifecycle.Close()

	if _, err := svc.StartSession(context.Background(), saved.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := svc.SessionStatus()
	if status.State != session.StateRunning || status.PresetID != "focus" || len(status.Instances) != 1 || status.StartedAt == nil {
		t.Fatalf("unexpected status %+v", status)
	}
	if got := <-lifecycle.Events; got.Type != session.EventStarted {
		t.Fatalf("expected started event, got %s", got.Type)
	}

	updates := svc.SubscribeSettings("timer")
	defer updates.Close()
	if err := svc.UpdateSetting(context.Background(), "timer", "minutes", sdk.IntValue(45)); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case update := <-updates.Events:
		if update.Key != "minutes" || update.Property != broadcast.PropertyValue || update.Value.Int() != 45 {
			t.Fatalf("unexpected update %+v", update)
		}
	case <-time.After(time.Second):
		t.Fatalf("no setting update received")
	}
	if err := svc.InvokeAction(context.Background(), "timer", "reset"); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if err := svc.StopSession(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := <-lifecycle.Events; got.Type != session.EventStopped {
		t.Fatalf("expected stopped event, got %s", got.Type)
	}
	if svc.SessionStatus().State != session.StateIdle || catalog.Live() != 0 {
		t.Fatalf("expected idle runtime with no live units")
	}
	history, err := os.ReadFile(filepath.Join(cfg.StateDir(), "history.log"))
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(history)), "\n"); len(lines) != 2 {
		t.Fatalf("expected two history entries, got %q", history)
	}
}

func TestGetModuleSettings(t *testing.T) {
	catalog, def := timerCatalog()
	svc, _ := openTestService(t, catalog)

	views, err := svc.GetModuleSettings(context.Background(), def.ID)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if len(views) != 2 || views[0].Key != "minutes" || views[0].Value.Int() != 25 || views[0].Kind != sdk.KindInteger {
		t.Fatalf("unexpected views %+v", views)
	}
	if catalog.Live() != 0 {
		t.Fatalf("probe instance must be disposed")
	}

	if _, err := svc.SavePreset(preset.Preset{ID: "p", Modules: []preset.ConfiguredModule{
		{InstanceID: "timer", ModuleID: def.ID, Settings: map[string]string{"minutes": "15"}},
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.StartSession(context.Background(), "p"); err != nil {
		t.Fatalf("start: %v", err)
	}
	views, err = svc.GetModuleSettings(context.Background(), def.ID)
	if err != nil {
		t.Fatalf("settings while running: %v", err)
	}
	if views[0].Value.Int() != 15 {
		t.Fatalf("expected the running instance's value, got %v", views[0].Value)
	}
	if catalog.Live() != 1 {
		t.Fatalf("no probe instance should be created while running, live=%d", catalog.Live())
	}
	if _, err := svc.GetModuleSettings(context.Background(), "0b8e7c6d-5a4f-4e3d-9c2b-1a0f9e8d7c6b"); !errors.Is(err, module.ErrUnknownModule) {
		t.Fatalf("expected unknown module, got %v", err)
	}
}

func TestSecretValuesAreMasked(t *testing.T) {
	backend := secrets.NewMemoryBackend()
	catalog, def := timerCatalog()
	svc, _ := openTestService(t, catalog, WithSecretBackend(backend))
	if err := secrets.Scoped(backend, def.ID).Set(context.Background(), "token", "hunter2"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.SavePreset(preset.Preset{ID: "p", Modules: []preset.ConfiguredModule{{InstanceID: "timer", ModuleID: def.ID}}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.StartSession(context.Background(), "p"); err != nil {
		t.Fatalf("start: %v", err)
	}
	views, err := svc.InstanceSettings("timer")
	if err != nil {
		t.Fatalf("instance settings: %v", err)
	}
	for _, view := range views {
		if view.Key == "token" && view.Value.Str() != "" {
			t.Fatalf("secret value leaked: %q", view.Value.Str())
		}
	}
	if _, err := svc.InstanceSettings("nope"); !errors.Is(err, session.ErrUnknownInstance) {
		t.Fatalf("expected unknown instance, got %v", err)
	}
}

func TestRefreshAndCapture(t *testing.T) {
	catalog, def := timerCatalog()
	svc, _ := openTestService(t, catalog)
	if _, err := svc.CapturePreset("snap", "Snapshot"); !errors.Is(err, session.ErrNoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}
	if _, err := svc.SavePreset(preset.Preset{ID: "p", Modules: []preset.ConfiguredModule{
		{InstanceID: "timer", ModuleID: def.ID, DisplayName: "Pomodoro"},
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.StartSession(context.Background(), "p"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.RefreshCatalog(context.Background()); !errors.Is(err, module.ErrInstancesOutstanding) {
		t.Fatalf("expected refresh to be refused, got %v", err)
	}
	if err := svc.UpdateSettingRaw(context.Background(), "timer", "minutes", "55"); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap, err := svc.CapturePreset("snap", "Snapshot")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	entry := snap.Modules[0]
	if entry.DisplayName != "Pomodoro" || entry.Settings["minutes"] != "55" {
		t.Fatalf("unexpected capture %+v", entry)
	}
	if _, ok := entry.Settings["token"]; ok {
		t.Fatalf("secret settings must not be captured")
	}
	if err := svc.StopSession(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.RefreshCatalog(context.Background()); err != nil {
		t.Fatalf("refresh when idle: %v", err)
	}
	presets, _ := svc.ListPresets()
	if len(presets) != 2 {
		t.Fatalf("expected two presets, got %+v", presets)
	}
}

func TestInterpretedTimerEndToEnd(t *testing.T) {
	root, err := filepath.Abs(filepath.Join("..", "..", "plugins", "testdata", "primary"))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	cfg := newTestConfig(t)
	cfg.Project.SearchRoots = []string{root}
	svc, err := Open(context.Background(), cfg, logging.Nop(),
		WithCatalog(plugins.NewCatalog(plugins.WithPlatform(sdk.PlatformLinux))),
		WithSecretBackend(secrets.NewMemoryBackend()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer svc.Close(context.Background())

	if len(svc.DiscoveryProblems()) == 0 {
		t.Fatalf("expected the broken fixtures to be reported")
	}
	if _, err := svc.SavePreset(preset.Preset{ID: "bad", Modules: []preset.ConfiguredModule{
		{InstanceID: "timer", ModuleID: timerID, Settings: map[string]string{"minutes": "0"}},
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err = svc.StartSession(context.Background(), "bad")
	var startErr *session.StartError
	if !errors.As(err, &startErr) || startErr.Field != "minutes" {
		t.Fatalf("expected minutes validation failure, got %v", err)
	}

	if _, err := svc.SavePreset(preset.Preset{ID: "good", Modules: []preset.ConfiguredModule{
		{InstanceID: "timer", ModuleID: timerID, Settings: map[string]string{"minutes": "30", "sound": "gong"}},
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.StartSession(context.Background(), "good"); err != nil {
		t.Fatalf("start: %v", err)
	}
	views, err := svc.InstanceSettings("timer")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	for _, view := range views {
		if view.Key == "minutes" && view.Value.Int() != 30 {
			t.Fatalf("expected minutes 30, got %v", view.Value)
		}
		if view.Key == "label" && !view.ReadOnly {
			t.Fatalf("timer locks its label while running")
		}
	}
	if err := svc.StopSession(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
