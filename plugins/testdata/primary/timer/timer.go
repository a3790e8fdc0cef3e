package main

import (
	"context"
	"strings"

	"github.com/kingrea/focus/sdk"
)

// Clock is not a module; interfaces are ignored during resolution.
type Clock interface {
	Start(ctx context.Context) error
}

// Options is exported but does not implement the module contract.
type Options struct {
	Chime bool
}

type Timer struct {
	env     sdk.Env
	minutes *sdk.Setting
	label   *sdk.Setting
	sound   *sdk.Setting
	running bool
}

func (t *Timer) Init(env sdk.Env) error {
	t.env = env
	t.minutes = sdk.NewIntSetting("minutes", "Minutes", 25)
	t.label = sdk.NewTextSetting("label", "Label", "Focus")
	t.sound = sdk.NewDropdownSetting("sound", "Chime", []string{"bell", "gong", "none"}, "bell")
	return nil
}

func (t *Timer) Settings() []*sdk.Setting {
	return []*sdk.Setting{t.minutes, t.label, t.sound}
}

func (t *Timer) Actions() []sdk.Action {
	return []sdk.Action{{Key: "reset", Label: "Reset"}}
}

func (t *Timer) Validate(ctx context.Context) error {
	if t.minutes.Get().Int() <= 0 {
		return sdk.Invalid("minutes", "must be positive")
	}
	if strings.TrimSpace(t.label.Get().Str()) == "" {
		return sdk.Invalid("label", "must not be empty")
	}
	return nil
}

func (t *Timer) Start(ctx context.Context) error {
	t.running = true
	t.label.SetReadOnly(true)
	return nil
}

func (t *Timer) Stop(ctx context.Context) error {
	t.running = false
	t.label.SetReadOnly(false)
	return nil
}
