package sdk

import (
	"errors"
	"testing"
)

func TestObservableNotifiesOnChangeOnly(t *testing.T) {
	obs := NewObservable(1, func(a, b int) bool { return a == b })
	var got []int
	cancel := obs.Subscribe(func(v int) { got = append(got, v) })
	obs.Set(1)
	obs.Set(2)
	obs.Set(2)
	obs.Set(3)
	cancel()
	obs.Set(4)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected emissions: %v", got)
	}
	if obs.Subscribers() != 0 {
		t.Fatalf("expected subscriber to be removed")
	}
	cancel()
}

func TestChoicesEmitEvenWhenUnchanged(t *testing.T) {
	s := NewDropdownSetting("playlist", "Playlist", []string{"lofi", "jazz"}, "lofi")
	count := 0
	s.Choices.Subscribe(func([]string) { count++ })
	s.SetChoices([]string{"lofi", "jazz"})
	s.SetChoices([]string{"lofi", "jazz"})
	if count != 2 {
		t.Fatalf("expected 2 raw emissions, got %d", count)
	}
}

func TestSettingApplyChecksKindAndChoices(t *testing.T) {
	minutes := NewIntSetting("minutes", "Minutes", 25)
	if err := minutes.Apply("50"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if minutes.Get().Int() != 50 {
		t.Fatalf("expected 50, got %v", minutes.Get())
	}
	err := minutes.Apply("soon")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "minutes" {
		t.Fatalf("expected validation error for minutes, got %v", err)
	}
	if err := minutes.Set(StringValue("50")); err == nil {
		t.Fatalf("expected kind mismatch")
	}

	playlist := NewDropdownSetting("playlist", "Playlist", []string{"lofi", "jazz"}, "lofi")
	if err := playlist.Apply("metal"); err == nil {
		t.Fatalf("expected value outside choices to fail")
	}
	if err := playlist.Apply("jazz"); err != nil {
		t.Fatalf("apply jazz: %v", err)
	}

	sites := NewMultiSelectSetting("sites", "Sites", []string{"news", "video"}, nil)
	if err := sites.Apply(`["news","games"]`); err == nil {
		t.Fatalf("expected unknown selection to fail")
	}
}

func TestCheckSettingsRejectsDuplicates(t *testing.T) {
	settings := []*Setting{NewTextSetting("a", "A", ""), NewTextSetting("a", "A again", "")}
	if err := CheckSettings(settings); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	if _, ok := FindSetting(settings, "a"); !ok {
		t.Fatalf("expected to find setting a")
	}
}

func TestValidationErrorsAs(t *testing.T) {
	var err error = ValidationErrors{Invalid("url", "must not be empty"), Invalid("port", "out of range")}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "url" {
		t.Fatalf("expected first field error, got %v", verr)
	}
	if fields := err.(ValidationErrors).Fields(); len(fields) != 2 {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestPlatformFor(t *testing.T) {
	if PlatformFor("darwin") != PlatformMacOS || PlatformFor("windows") != PlatformWindows || PlatformFor("linux") != PlatformLinux {
		t.Fatalf("unexpected platform mapping")
	}
}
