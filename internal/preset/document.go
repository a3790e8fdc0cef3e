package preset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type header struct {
	Version int `json:"version"`
}

type documentV2 struct {
	Version int        `json:"version"`
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Modules []moduleV2 `json:"modules"`
}

type moduleV2 struct {
	InstanceID  string            `json:"instance_id"`
	ModuleID    string            `json:"module_id"`
	DisplayName string            `json:"display_name,omitempty"`
	StartDelay  string            `json:"start_delay,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
}

// documentV1 stored delays in milliseconds and settings as raw JSON values.
type documentV1 struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Modules []moduleV1 `json:"modules"`
}

type moduleV1 struct {
	InstanceID   string                     `json:"instance_id"`
	ModuleID     string                     `json:"module_id"`
	DisplayName  string                     `json:"display_name"`
	StartDelayMS int64                      `json:"start_delay_ms"`
	Settings     map[string]json.RawMessage `json:"settings"`
}

// Encode renders p as a current-version document.
func Encode(p Preset) ([]byte, error) {
	doc := documentV2{
		Version: CurrentVersion,
		ID:      p.ID,
		Name:    p.Name,
		Modules: make([]moduleV2, 0, len(p.Modules)),
	}
	for _, entry := range p.Modules {
		m := moduleV2{
			InstanceID:  entry.InstanceID,
			ModuleID:    entry.ModuleID,
			DisplayName: entry.DisplayName,
			Settings:    entry.Settings,
		}
		if entry.StartDelay > 0 {
			m.StartDelay = entry.StartDelay.String()
		}
		doc.Modules = append(doc.Modules, m)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("preset: encode %s: %w", p.ID, err)
	}
	return append(data, '\n'), nil
}

// Decode parses a preset document of any supported version and migrates it
// to the current one. A document without a version is treated as v1.
func Decode(data []byte) (Preset, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return Preset{}, fmt.Errorf("preset: decode: %w", err)
	}
	switch h.Version {
	case 0, 1:
		return decodeV1(data)
	case CurrentVersion:
		return decodeV2(data)
	default:
		return Preset{}, fmt.Errorf("preset: %w: %d", ErrUnsupportedVersion, h.Version)
	}
}

func decodeV2(data []byte) (Preset, error) {
	var doc documentV2
	if err := json.Unmarshal(data, &doc); err != nil {
		return Preset{}, fmt.Errorf("preset: decode: %w", err)
	}
	p := Preset{ID: doc.ID, Name: doc.Name, Version: CurrentVersion}
	for idx, m := range doc.Modules {
		entry := ConfiguredModule{
			InstanceID:  m.InstanceID,
			ModuleID:    strings.ToLower(strings.TrimSpace(m.ModuleID)),
			DisplayName: m.DisplayName,
			Settings:    m.Settings,
		}
		if delay := strings.TrimSpace(m.StartDelay); delay != "" {
			d, err := time.ParseDuration(delay)
			if err != nil {
				return Preset{}, fmt.Errorf("preset %s: modules[%d]: start delay: %w", doc.ID, idx, err)
			}
			entry.StartDelay = d
		}
		p.Modules = append(p.Modules, entry)
	}
	return p, nil
}

func decodeV1(data []byte) (Preset, error) {
	var doc documentV1
	if err := json.Unmarshal(data, &doc); err != nil {
		return Preset{}, fmt.Errorf("preset: decode v1: %w", err)
	}
	p := Preset{ID: doc.ID, Name: doc.Name, Version: CurrentVersion}
	for idx, m := range doc.Modules {
		entry := ConfiguredModule{
			InstanceID:  m.InstanceID,
			ModuleID:    strings.ToLower(strings.TrimSpace(m.ModuleID)),
			DisplayName: m.DisplayName,
			StartDelay:  time.Duration(m.StartDelayMS) * time.Millisecond,
		}
		if len(m.Settings) > 0 {
			entry.Settings = make(map[string]string, len(m.Settings))
			for key, raw := range m.Settings {
				value, ok, err := legacyValue(raw)
				if err != nil {
					return Preset{}, fmt.Errorf("preset %s: modules[%d]: setting %s: %w", doc.ID, idx, key, err)
				}
				if ok {
					entry.Settings[key] = value
				}
			}
		}
		p.Modules = append(p.Modules, entry)
	}
	return p, nil
}

// legacyValue converts a v1 setting of any JSON type to its persisted
// string form. Null values are dropped.
func legacyValue(raw json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false, nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return "", false, err
		}
		return strconv.FormatBool(b), true, nil
	case '[':
		var items []any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", false, err
		}
		list := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				list = append(list, s)
				continue
			}
			list = append(list, fmt.Sprint(item))
		}
		encoded, err := json.Marshal(list)
		if err != nil {
			return "", false, err
		}
		return string(encoded), true, nil
	case '{':
		return string(trimmed), true, nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return "", false, err
		}
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true, nil
		}
		f, err := n.Float64()
		if err != nil {
			return "", false, err
		}
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), true, nil
		}
		return strconv.FormatFloat(f, 'g', -1, 64), true, nil
	}
}
