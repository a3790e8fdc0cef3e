package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kingrea/focus/internal/module"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestManifestChangeTriggersSingleRefresh(t *testing.T) {
	root := t.TempDir()
	plugin := filepath.Join(root, "timer")
	if err := os.MkdirAll(plugin, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var calls atomic.Int32
	w, err := New([]string{root, filepath.Join(root, "absent")}, RefresherFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}), WithWindow(50*time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if w.Watched() != 2 {
		t.Fatalf("expected root and plugin dir to be watched, got %d", w.Watched())
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(plugin, "manifest.yaml"), []byte("name: t\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("burst should coalesce into one refresh, got %d", calls.Load())
	}
}

func TestNewPluginDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w, err := New([]string{root}, RefresherFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}), WithWindow(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.Mkdir(filepath.Join(root, "music"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitFor(t, func() bool { return w.Watched() == 2 })
	waitFor(t, func() bool { return calls.Load() >= 1 })
}

func TestRefreshDeferredWhileSessionRuns(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	refresher := RefresherFunc(func(context.Context) error {
		if calls.Add(1) == 1 {
			return module.ErrInstancesOutstanding
		}
		return nil
	})
	w, err := New([]string{root}, refresher, WithWindow(10*time.Millisecond), WithRetry(30*time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "loose.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestRelevantPaths(t *testing.T) {
	tests := map[string]bool{
		"/p/timer/manifest.yaml": true,
		"/p/timer/manifest.json": true,
		"/p/timer/timer.go":      true,
		"/p/timer":               true,
		"/p/timer/notes.md":      false,
		"/p/timer/.manifest.swp": false,
		"/p/timer/config.yaml":   false,
	}
	for path, want := range tests {
		if got := relevant(path); got != want {
			t.Fatalf("relevant(%s) = %v, want %v", path, got, want)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	w, err := New(nil, RefresherFunc(func(context.Context) error { return nil }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
