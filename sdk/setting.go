package sdk

import (
	"fmt"
	"slices"
	"strings"
)

// Control describes how a client should render a setting.
type Control string

const (
	ControlText        Control = "text"
	ControlToggle      Control = "toggle"
	ControlNumber      Control = "number"
	ControlSlider      Control = "slider"
	ControlDropdown    Control = "dropdown"
	ControlMultiSelect Control = "multiselect"
	ControlSecret      Control = "secret"
)

// Persistence describes where a setting's value lives between sessions.
type Persistence string

const (
	// PersistPreset values are stored in the preset document.
	PersistPreset Persistence = "persisted"
	// PersistTransient values only live for the running session.
	PersistTransient Persistence = "transient"
	// PersistSecret values are read from and written to the module's secret store.
	PersistSecret Persistence = "secret"
)

// Setting is a named, typed configuration value exposed by a module
// instance. Value, Label, Visible, ReadOnly and Choices are observable
// independently.
type Setting struct {
	Key         string
	Description string
	Control     Control
	Persistence Persistence
	Kind        ValueKind

	Value    *Observable[Value]
	Label    *Observable[string]
	Visible  *Observable[bool]
	ReadOnly *Observable[bool]
	// Choices emits on every Set, even when the list is unchanged.
	Choices *Observable[[]string]
}

// NewSetting builds a visible, writable, persisted setting.
func NewSetting(key, label string, control Control, initial Value) *Setting {
	return &Setting{
		Key:         strings.TrimSpace(key),
		Control:     control,
		Persistence: PersistPreset,
		Kind:        initial.Kind(),
		Value:       NewObservable(initial, Value.Equal),
		Label:       NewObservable(label, func(a, b string) bool { return a == b }),
		Visible:     NewObservable(true, func(a, b bool) bool { return a == b }),
		ReadOnly:    NewObservable(false, func(a, b bool) bool { return a == b }),
		Choices:     NewObservable[[]string](nil, nil),
	}
}

// NewTextSetting builds a free-form string setting.
func NewTextSetting(key, label, initial string) *Setting {
	return NewSetting(key, label, ControlText, StringValue(initial))
}

// NewToggleSetting builds a boolean setting.
func NewToggleSetting(key, label string, initial bool) *Setting {
	return NewSetting(key, label, ControlToggle, BoolValue(initial))
}

// NewIntSetting builds an integer setting.
func NewIntSetting(key, label string, initial int64) *Setting {
	return NewSetting(key, label, ControlNumber, IntValue(initial))
}

// NewNumberSetting builds a floating point setting.
func NewNumberSetting(key, label string, initial float64) *Setting {
	return NewSetting(key, label, ControlNumber, NumberValue(initial))
}

// NewSecretSetting builds a string setting persisted in the module's secret store.
func NewSecretSetting(key, label string) *Setting {
	s := NewSetting(key, label, ControlSecret, StringValue(""))
	s.Persistence = PersistSecret
	return s
}

// NewDropdownSetting builds a single-choice setting. The selected value must
// be one of choices.
func NewDropdownSetting(key, label string, choices []string, selected string) *Setting {
	s := NewSetting(key, label, ControlDropdown, StringValue(selected))
	s.Choices.Set(cloneStrings(choices))
	return s
}

// NewMultiSelectSetting builds a choice-list setting.
func NewMultiSelectSetting(key, label string, choices, selected []string) *Setting {
	s := NewSetting(key, label, ControlMultiSelect, ChoicesValue(selected))
	s.Choices.Set(cloneStrings(choices))
	return s
}

// Describe sets the description and returns s.
func (s *Setting) Describe(description string) *Setting {
	s.Description = description
	return s
}

// Persist sets the persistence kind and returns s.
func (s *Setting) Persist(p Persistence) *Setting {
	s.Persistence = p
	return s
}

// Get returns the current value.
func (s *Setting) Get() Value { return s.Value.Get() }

// Set stores v after checking its kind and, for choice controls, that the
// selection is offered.
func (s *Setting) Set(v Value) error {
	if err := s.check(v); err != nil {
		return err
	}
	s.Value.Set(v)
	return nil
}

// Apply parses a persisted string according to the setting's kind and stores it.
func (s *Setting) Apply(raw string) error {
	v, err := ParseValue(s.Kind, raw)
	if err != nil {
		return &ValidationError{Field: s.Key, Message: err.Error()}
	}
	return s.Set(v)
}

func (s *Setting) SetLabel(label string) { s.Label.Set(label) }

func (s *Setting) SetVisible(visible bool) { s.Visible.Set(visible) }

func (s *Setting) SetReadOnly(readOnly bool) { s.ReadOnly.Set(readOnly) }

func (s *Setting) SetChoices(choices []string) { s.Choices.Set(cloneStrings(choices)) }

func (s *Setting) check(v Value) error {
	if v.Kind() != s.Kind {
		return &ValidationError{Field: s.Key, Message: fmt.Sprintf("expected %s value, got %s", s.Kind, v.Kind())}
	}
	choices := s.Choices.Get()
	if len(choices) == 0 {
		return nil
	}
	switch s.Control {
	case ControlDropdown:
		if v.Str() != "" && !slices.Contains(choices, v.Str()) {
			return &ValidationError{Field: s.Key, Message: fmt.Sprintf("%q is not one of %s", v.Str(), strings.Join(choices, ", "))}
		}
	case ControlMultiSelect:
		for _, item := range v.Choices() {
			if !slices.Contains(choices, item) {
				return &ValidationError{Field: s.Key, Message: fmt.Sprintf("%q is not one of %s", item, strings.Join(choices, ", "))}
			}
		}
	}
	return nil
}

// CheckSettings reports empty or duplicate keys.
func CheckSettings(settings []*Setting) error {
	seen := make(map[string]struct{}, len(settings))
	for idx, s := range settings {
		if s == nil {
			return fmt.Errorf("settings[%d] is nil", idx)
		}
		if s.Key == "" {
			return fmt.Errorf("settings[%d]: key is required", idx)
		}
		if _, dup := seen[s.Key]; dup {
			return fmt.Errorf("settings[%d]: duplicate key %s", idx, s.Key)
		}
		seen[s.Key] = struct{}{}
	}
	return nil
}

// FindSetting returns the setting with the given key.
func FindSetting(settings []*Setting, key string) (*Setting, bool) {
	for _, s := range settings {
		if s != nil && s.Key == key {
			return s, true
		}
	}
	return nil, false
}
