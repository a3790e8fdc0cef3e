// Package service exposes the runtime's operations independently of any
// transport.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/broadcast"
	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/sdk"
)

// Deps are the collaborators a Service is assembled from.
type Deps struct {
	Registry     *module.Registry
	Orchestrator *session.Orchestrator
	Broadcaster  *broadcast.Broadcaster
	Lifecycle    *broadcast.LifecycleHub
	Presets      *preset.Store
	Logger       zerolog.Logger
}

// Service is the single entry point used by the CLI, the HTTP bridge and
// the terminal monitor.
type Service struct {
	registry     *module.Registry
	orchestrator *session.Orchestrator
	broadcaster  *broadcast.Broadcaster
	lifecycle    *broadcast.LifecycleHub
	presets      *preset.Store
	log          zerolog.Logger
}

// New validates deps and builds a Service.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("service: registry is required")
	case deps.Orchestrator == nil:
		return nil, errors.New("service: orchestrator is required")
	case deps.Broadcaster == nil:
		return nil, errors.New("service: broadcaster is required")
	case deps.Lifecycle == nil:
		return nil, errors.New("service: lifecycle hub is required")
	case deps.Presets == nil:
		return nil, errors.New("service: preset store is required")
	}
	return &Service{
		registry:     deps.Registry,
		orchestrator: deps.Orchestrator,
		broadcaster:  deps.Broadcaster,
		lifecycle:    deps.Lifecycle,
		presets:      deps.Presets,
		log:          deps.Logger.With().Str("component", "service").Logger(),
	}, nil
}

// ModuleInfo describes one catalog entry.
type ModuleInfo struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category,omitempty"`
	Platforms      []sdk.Platform `json:"platforms"`
	Implementation string         `json:"implementation"`
}

// SettingView is a snapshot of one setting. Secret values are never
// included.
type SettingView struct {
	Key         string          `json:"key"`
	Description string          `json:"description,omitempty"`
	Control     sdk.Control     `json:"control"`
	Persistence sdk.Persistence `json:"persistence"`
	Kind        sdk.ValueKind   `json:"kind"`
	Value       sdk.Value       `json:"value"`
	Label       string          `json:"label"`
	Visible     bool            `json:"visible"`
	ReadOnly    bool            `json:"read_only"`
	Choices     []string        `json:"choices,omitempty"`
}

// StatusView reports the orchestrator state and the running session.
type StatusView struct {
	State      session.State          `json:"state"`
	SessionID  string                 `json:"session_id,omitempty"`
	PresetID   string                 `json:"preset_id,omitempty"`
	PresetName string                 `json:"preset_name,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	Instances  []session.InstanceInfo `json:"instances,omitempty"`
}

// ListModules returns the catalog in discovery order.
func (s *Service) ListModules() []ModuleInfo {
	defs := s.registry.Definitions()
	out := make([]ModuleInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, ModuleInfo{
			ID:             def.ID,
			Name:           def.Name,
			Description:    def.Description,
			Category:       def.Category,
			Platforms:      def.Platforms,
			Implementation: def.Implementation,
		})
	}
	return out
}

// DiscoveryProblems returns the problems reported by the last discovery.
func (s *Service) DiscoveryProblems() []error {
	return s.registry.Problems()
}

// RefreshCatalog re-runs discovery. It fails with
// module.ErrInstancesOutstanding while a session is running.
func (s *Service) RefreshCatalog(ctx context.Context) error {
	if state := s.orchestrator.State(); state != session.StateIdle {
		return fmt.Errorf("service: refresh while %s: %w", state, module.ErrInstancesOutstanding)
	}
	return s.registry.Refresh(ctx)
}

// GetModuleSettings describes the settings of moduleID. A running instance
// of the module is used when there is one; otherwise a throwaway instance
// is created and disposed.
func (s *Service) GetModuleSettings(ctx context.Context, moduleID string) ([]SettingView, error) {
	if active := s.orchestrator.Active(); active != nil {
		for _, inst := range active.Instances {
			if inst.Definition.ID == moduleID {
				return describe(inst.Settings), nil
			}
		}
	}
	inst, err := s.registry.CreateInstance(ctx, moduleID, "")
	if err != nil {
		return nil, err
	}
	views := describe(inst.Settings)
	if err := inst.Close(); err != nil {
		s.log.Warn().Err(err).Str("module_id", moduleID).Msg("dispose probe instance")
	}
	return views, nil
}

// InstanceSettings describes the settings of a running instance.
func (s *Service) InstanceSettings(instanceID string) ([]SettingView, error) {
	active := s.orchestrator.Active()
	if active == nil {
		return nil, &session.NoActiveSessionError{State: s.orchestrator.State()}
	}
	inst, ok := active.Instance(instanceID)
	if !ok {
		return nil, fmt.Errorf("service: %w: %s", session.ErrUnknownInstance, instanceID)
	}
	return describe(inst.Settings), nil
}

// InstanceActions lists the actions a running instance exposes.
func (s *Service) InstanceActions(instanceID string) ([]sdk.Action, error) {
	active := s.orchestrator.Active()
	if active == nil {
		return nil, &session.NoActiveSessionError{State: s.orchestrator.State()}
	}
	inst, ok := active.Instance(instanceID)
	if !ok {
		return nil, fmt.Errorf("service: %w: %s", session.ErrUnknownInstance, instanceID)
	}
	if _, ok := inst.Module.(sdk.Invoker); !ok {
		return nil, nil
	}
	return inst.Module.Actions(), nil
}

func describe(settings []*sdk.Setting) []SettingView {
	out := make([]SettingView, 0, len(settings))
	for _, setting := range settings {
		view := SettingView{
			Key:         setting.Key,
			Description: setting.Description,
			Control:     setting.Control,
			Persistence: setting.Persistence,
			Kind:        setting.Kind,
			Value:       setting.Get(),
			Label:       setting.Label.Get(),
			Visible:     setting.Visible.Get(),
			ReadOnly:    setting.ReadOnly.Get(),
			Choices:     setting.Choices.Get(),
		}
		if setting.Persistence == sdk.PersistSecret {
			view.Value = sdk.StringValue("")
		}
		out = append(out, view)
	}
	return out
}

// StartSession loads presetID and starts it.
func (s *Service) StartSession(ctx context.Context, presetID string) (*session.ActiveSession, error) {
	p, err := s.presets.Load(presetID)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.Start(ctx, p)
}

func (s *Service) StopSession(ctx context.Context) error {
	return s.orchestrator.Stop(ctx)
}

func (s *Service) SessionStatus() StatusView {
	status := s.orchestrator.Status()
	view := StatusView{State: status.State}
	if status.Session != nil {
		started := status.Session.StartedAt
		view.SessionID = status.Session.ID
		view.PresetID = status.Session.Preset.ID
		view.PresetName = status.Session.Preset.Name
		view.StartedAt = &started
		view.Instances = status.Session.Info()
	}
	return view
}

// UpdateSetting stores a typed value on a running instance.
func (s *Service) UpdateSetting(ctx context.Context, instanceID, key string, value sdk.Value) error {
	return s.orchestrator.SetValue(ctx, instanceID, key, value)
}

// UpdateSettingRaw parses raw by the setting's kind and stores it.
func (s *Service) UpdateSettingRaw(ctx context.Context, instanceID, key, raw string) error {
	return s.orchestrator.UpdateSetting(ctx, instanceID, key, raw)
}

func (s *Service) InvokeAction(ctx context.Context, instanceID, action string) error {
	return s.orchestrator.InvokeAction(ctx, instanceID, action)
}

// SubscribeSettings streams setting updates for instanceID, or for every
// instance when it is empty.
func (s *Service) SubscribeSettings(instanceID string) eventbridge.Subscription[broadcast.SettingUpdate] {
	return s.broadcaster.Subscribe(instanceID)
}

// SubscribeSessions streams session lifecycle events.
func (s *Service) SubscribeSessions() eventbridge.Subscription[session.Event] {
	return s.lifecycle.Subscribe()
}

func (s *Service) ListPresets() ([]preset.Preset, error) {
	presets, err := s.presets.List()
	if err != nil {
		s.log.Warn().Err(err).Msg("some presets could not be read")
	}
	return presets, nil
}

func (s *Service) GetPreset(id string) (preset.Preset, error) {
	return s.presets.Load(id)
}

// SavePreset stores p. Entries naming modules missing from the catalog are
// kept and reported in the log; they are skipped when the preset starts.
func (s *Service) SavePreset(p preset.Preset) (preset.Preset, error) {
	for _, entry := range p.Modules {
		if _, ok := s.registry.Definition(entry.ModuleID); !ok {
			s.log.Warn().Str("preset_id", p.ID).Str("module_id", entry.ModuleID).Msg("preset references unknown module")
		}
	}
	return s.presets.Save(p)
}

func (s *Service) DeletePreset(id string) error {
	return s.presets.Delete(id)
}

// CapturePreset saves the persisted settings of the running session as a
// preset under id and name.
func (s *Service) CapturePreset(id, name string) (preset.Preset, error) {
	active := s.orchestrator.Active()
	if active == nil {
		return preset.Preset{}, &session.NoActiveSessionError{State: s.orchestrator.State()}
	}
	p := preset.Preset{ID: id, Name: name}
	for _, inst := range active.Instances {
		entry, _ := active.Preset.Module(inst.ID)
		entry.InstanceID = inst.ID
		entry.ModuleID = inst.Definition.ID
		entry.Settings = map[string]string{}
		for _, setting := range inst.Settings {
			if setting.Persistence == sdk.PersistPreset {
				entry.Settings[setting.Key] = setting.Get().String()
			}
		}
		p.Modules = append(p.Modules, entry)
	}
	return s.presets.Save(p)
}

// Close stops a running session, ends every stream and disposes the
// registry.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if err := s.orchestrator.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	s.broadcaster.Close()
	s.lifecycle.Close()
	if err := s.registry.Dispose(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
