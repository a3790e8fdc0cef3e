// Package session runs focus sessions: it instantiates the modules of a
// preset, drives their lifecycle hooks and tears everything down again.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/metrics"
	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/secrets"
	"github.com/kingrea/focus/sdk"
)

const (
	DefaultValidateTimeout = 5 * time.Second
	DefaultStartTimeout    = 10 * time.Second
	DefaultStopTimeout     = 10 * time.Second
)

// Registry is the part of module.Registry the orchestrator needs.
type Registry interface {
	Definition(id string) (module.Definition, bool)
	CreateInstance(ctx context.Context, moduleID, instanceID string) (*module.Instance, error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTimeouts overrides the per-hook budgets. Non-positive values keep the
// defaults.
func WithTimeouts(validate, start, stop time.Duration) Option {
	return func(o *Orchestrator) {
		if validate > 0 {
			o.validateTimeout = validate
		}
		if start > 0 {
			o.startTimeout = start
		}
		if stop > 0 {
			o.stopTimeout = stop
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = logger.With().Str("component", "session").Logger()
	}
}

// WithPublisher adds lifecycle event receivers.
func WithPublisher(publishers ...Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = append(o.publisher, publishers...)
	}
}

// WithSleep replaces the start-delay wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator owns the single active session. State advances by
// compare-and-swap; no lock is held while module hooks run.
type Orchestrator struct {
	registry  Registry
	log       zerolog.Logger
	publisher Publishers
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	validateTimeout time.Duration
	startTimeout    time.Duration
	stopTimeout     time.Duration

	state  atomic.Int32
	active atomic.Pointer[ActiveSession]
	closed atomic.Bool
}

// New builds an idle orchestrator.
func New(registry Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:        registry,
		log:             zerolog.Nop(),
		sleep:           sleepContext,
		now:             time.Now,
		validateTimeout: DefaultValidateTimeout,
		startTimeout:    DefaultStartTimeout,
		stopTimeout:     DefaultStopTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Active returns the running session or nil.
func (o *Orchestrator) Active() *ActiveSession { return o.active.Load() }

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State   State
	Session *ActiveSession
}

func (o *Orchestrator) Status() Status {
	return Status{State: o.State(), Session: o.active.Load()}
}

// attempt tracks one preset entry while a session starts.
type attempt struct {
	entry preset.ConfiguredModule
	label string
	inst  *module.Instance
}

// Start instantiates every module of p in order and runs their validate and
// start hooks. Either every available module ends up running or none does.
func (o *Orchestrator) Start(ctx context.Context, p preset.Preset) (*ActiveSession, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	if state := o.State(); state != StateIdle {
		return nil, &AlreadyRunningError{State: state}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return nil, &AlreadyRunningError{State: o.State()}
	}
	if o.closed.Load() {
		o.state.Store(int32(StateIdle))
		return nil, ErrClosed
	}

	log := o.log.With().Str("preset_id", p.ID).Logger()
	log.Info().Int("modules", len(p.Modules)).Msg("starting session")

	var started []*attempt
	fail := func(a *attempt, phase Phase, cause error) (*ActiveSession, error) {
		se := newStartError(p.ID, a, phase, len(started), cause)
		if a.inst != nil {
			if err := a.inst.Close(); err != nil {
				se.Rollback = errors.Join(se.Rollback, err)
			}
		}
		se.Rollback = errors.Join(se.Rollback, o.rollback(ctx, started))
		o.state.Store(int32(StateIdle))
		metrics.RecordSession("failed")
		log.Warn().Err(se).Str("phase", string(phase)).Msg("session start rolled back")
		return nil, se
	}

	for _, entry := range p.Modules {
		a := &attempt{entry: entry, label: entry.Label()}
		if entry.StartDelay > 0 {
			if err := o.sleep(ctx, entry.StartDelay); err != nil {
				return fail(a, PhaseDelay, err)
			}
		}
		def, ok := o.registry.Definition(entry.ModuleID)
		if !ok {
			log.Warn().Str("module_id", entry.ModuleID).Str("instance_id", entry.InstanceID).Msg("module not in catalog, skipping")
			continue
		}
		a.label = labelFor(entry, def)
		inst, err := o.registry.CreateInstance(ctx, entry.ModuleID, entry.InstanceID)
		if err != nil {
			return fail(a, PhaseCreate, err)
		}
		a.inst = inst
		if err := o.configure(ctx, inst, entry); err != nil {
			return fail(a, PhaseConfigure, err)
		}
		if err := o.runHook(ctx, inst, a.label, PhaseValidate, o.validateTimeout, inst.Module.Validate); err != nil {
			return fail(a, PhaseValidate, err)
		}
		if err := o.runHook(ctx, inst, a.label, PhaseStart, o.startTimeout, inst.Module.Start); err != nil {
			return fail(a, PhaseStart, err)
		}
		started = append(started, a)
	}

	if len(started) == 0 {
		o.state.Store(int32(StateIdle))
		metrics.RecordSession("empty")
		return nil, &EmptySessionError{PresetID: p.ID}
	}

	if o.closed.Load() {
		err := o.rollback(ctx, started)
		o.state.Store(int32(StateIdle))
		metrics.RecordSession("failed")
		log.Warn().Err(err).Msg("orchestrator closed while starting, session rolled back")
		return nil, errors.Join(ErrClosed, err)
	}

	session := &ActiveSession{
		ID:        uuid.NewString(),
		Preset:    p.Clone(),
		Instances: make([]*module.Instance, 0, len(started)),
		ByID:      make(map[string]*module.Instance, len(started)),
		Labels:    make(map[string]string, len(started)),
		StartedAt: o.now(),
	}
	for _, a := range started {
		session.Instances = append(session.Instances, a.inst)
		session.ByID[a.inst.ID] = a.inst
		session.Labels[a.inst.ID] = a.label
	}
	o.active.Store(session)
	o.state.Store(int32(StateRunning))
	metrics.RecordSession("started")
	log.Info().Str("session_id", session.ID).Int("instances", len(session.Instances)).Msg("session running")

	o.publisher.Publish(ctx, Event{
		Type:       EventStarted,
		SessionID:  session.ID,
		PresetID:   p.ID,
		PresetName: p.Name,
		Instances:  session.Info(),
		At:         session.StartedAt,
		Session:    session,
	})
	return session, nil
}

// configure applies persisted settings from the preset and secret settings
// from the module's secret store.
func (o *Orchestrator) configure(ctx context.Context, inst *module.Instance, entry preset.ConfiguredModule) error {
	var problems sdk.ValidationErrors
	keys := make([]string, 0, len(entry.Settings))
	for key := range entry.Settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		setting, ok := inst.Setting(key)
		if !ok {
			o.log.Warn().Str("instance_id", inst.ID).Str("key", key).Msg("preset sets unknown setting")
			continue
		}
		if setting.Persistence == sdk.PersistSecret {
			o.log.Warn().Str("instance_id", inst.ID).Str("key", key).Msg("ignoring secret value stored in preset")
			continue
		}
		if err := setting.Apply(entry.Settings[key]); err != nil {
			problems = append(problems, asValidation(key, err))
		}
	}

	store := inst.Env().Secrets
	if store == nil {
		return problems.Err()
	}
	for _, setting := range inst.Settings {
		if setting.Persistence != sdk.PersistSecret {
			continue
		}
		value, err := store.Get(ctx, setting.Key)
		if err != nil {
			if !errors.Is(err, secrets.ErrSecretNotFound) {
				o.log.Warn().Err(err).Str("instance_id", inst.ID).Str("key", setting.Key).Msg("read secret setting")
			}
			continue
		}
		if err := setting.Apply(value); err != nil {
			problems = append(problems, asValidation(setting.Key, err))
		}
	}
	return problems.Err()
}

func asValidation(key string, err error) *sdk.ValidationError {
	var verr *sdk.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &sdk.ValidationError{Field: key, Message: err.Error()}
}

// rollback stops and disposes started modules in reverse order. It runs
// even when ctx is already cancelled.
func (o *Orchestrator) rollback(ctx context.Context, started []*attempt) error {
	rctx := context.WithoutCancel(ctx)
	var errs []error
	for idx := len(started) - 1; idx >= 0; idx-- {
		a := started[idx]
		if err := o.runHook(rctx, a.inst, a.label, PhaseStop, o.stopTimeout, a.inst.Module.Stop); err != nil {
			errs = append(errs, err)
		}
		if err := a.inst.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop runs every stop hook in reverse start order, then disposes every
// instance. Hook failures are collected; the orchestrator always ends idle.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return &NoActiveSessionError{State: o.State()}
	}
	session := o.active.Load()
	sctx := context.WithoutCancel(ctx)
	log := o.log.With().Str("session_id", session.ID).Logger()
	log.Info().Msg("stopping session")

	var errs []error
	for idx := len(session.Instances) - 1; idx >= 0; idx-- {
		inst := session.Instances[idx]
		if err := o.runHook(sctx, inst, session.Labels[inst.ID], PhaseStop, o.stopTimeout, inst.Module.Stop); err != nil {
			errs = append(errs, err)
		}
	}
	for idx := len(session.Instances) - 1; idx >= 0; idx-- {
		if err := session.Instances[idx].Close(); err != nil {
			log.Warn().Err(err).Str("instance_id", session.Instances[idx].ID).Msg("dispose failed")
			errs = append(errs, err)
		}
	}

	o.active.Store(nil)
	o.state.Store(int32(StateIdle))
	metrics.RecordSession("stopped")

	event := Event{
		Type:       EventStopped,
		SessionID:  session.ID,
		PresetID:   session.Preset.ID,
		PresetName: session.Preset.Name,
		Instances:  session.Info(),
		At:         o.now(),
		Session:    session,
	}
	for _, err := range errs {
		event.Errors = append(event.Errors, err.Error())
	}
	o.publisher.Publish(sctx, event)
	log.Info().Int("errors", len(errs)).Msg("session stopped")
	return errors.Join(errs...)
}

// Close stops a running session and refuses further starts. A start in
// progress is waited for; it either rolls back or is stopped here.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.closed.Store(true)
	if err := o.awaitSettled(ctx); err != nil {
		return err
	}
	if o.State() != StateRunning {
		return nil
	}
	err := o.Stop(ctx)
	if errors.Is(err, ErrNoActiveSession) {
		return nil
	}
	return err
}

// closePoll is how often Close re-checks a start or stop in progress.
const closePoll = 10 * time.Millisecond

func (o *Orchestrator) awaitSettled(ctx context.Context) error {
	ticker := time.NewTicker(closePoll)
	defer ticker.Stop()
	for {
		switch o.State() {
		case StateStarting, StateStopping:
		default:
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("session: close while %s: %w", o.State(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) instance(instanceID string) (*module.Instance, error) {
	session := o.active.Load()
	if session == nil || o.State() != StateRunning {
		return nil, &NoActiveSessionError{State: o.State()}
	}
	inst, ok := session.Instance(instanceID)
	if !ok {
		return nil, fmt.Errorf("session: %w: %s", ErrUnknownInstance, instanceID)
	}
	return inst, nil
}

// UpdateSetting parses raw according to the setting's kind and stores it on
// a running instance. Secret settings are also written to the module's
// secret store.
func (o *Orchestrator) UpdateSetting(ctx context.Context, instanceID, key, raw string) error {
	inst, err := o.instance(instanceID)
	if err != nil {
		return err
	}
	setting, ok := inst.Setting(key)
	if !ok {
		return fmt.Errorf("session: %s: %w: %s", instanceID, sdk.ErrUnknownSetting, key)
	}
	value, err := sdk.ParseValue(setting.Kind, raw)
	if err != nil {
		return &sdk.ValidationError{Field: key, Message: err.Error()}
	}
	return o.setValue(ctx, inst, setting, value)
}

// SetValue stores a typed value on a running instance.
func (o *Orchestrator) SetValue(ctx context.Context, instanceID, key string, value sdk.Value) error {
	inst, err := o.instance(instanceID)
	if err != nil {
		return err
	}
	setting, ok := inst.Setting(key)
	if !ok {
		return fmt.Errorf("session: %s: %w: %s", instanceID, sdk.ErrUnknownSetting, key)
	}
	return o.setValue(ctx, inst, setting, value)
}

func (o *Orchestrator) setValue(ctx context.Context, inst *module.Instance, setting *sdk.Setting, value sdk.Value) error {
	if setting.ReadOnly.Get() {
		return fmt.Errorf("session: %s: %w: %s", inst.ID, sdk.ErrReadOnly, setting.Key)
	}
	if setting.Persistence == sdk.PersistSecret {
		store := inst.Env().Secrets
		if store == nil {
			return fmt.Errorf("session: %s: no secret store for %s", inst.ID, setting.Key)
		}
		if value.Kind() != setting.Kind {
			return &sdk.ValidationError{Field: setting.Key, Message: fmt.Sprintf("expected %s value, got %s", setting.Kind, value.Kind())}
		}
		if err := store.Set(ctx, setting.Key, value.String()); err != nil {
			return fmt.Errorf("session: store secret %s: %w", setting.Key, err)
		}
	}
	return setting.Set(value)
}

// InvokeAction triggers an action exposed by a running instance. The call
// is bounded by the start budget.
func (o *Orchestrator) InvokeAction(ctx context.Context, instanceID, action string) error {
	inst, err := o.instance(instanceID)
	if err != nil {
		return err
	}
	invoker, ok := inst.Module.(sdk.Invoker)
	if !ok || !exposes(inst.Module.Actions(), action) {
		return fmt.Errorf("session: %s: %w: %s", instanceID, sdk.ErrUnknownAction, action)
	}
	label := inst.Definition.Name
	if session := o.active.Load(); session != nil && session.Labels[inst.ID] != "" {
		label = session.Labels[inst.ID]
	}
	return o.runHook(ctx, inst, label, PhaseAction, o.startTimeout, func(hctx context.Context) error {
		return invoker.Invoke(hctx, action)
	})
}

func exposes(actions []sdk.Action, key string) bool {
	for _, a := range actions {
		if a.Key == key {
			return true
		}
	}
	return false
}

func labelFor(entry preset.ConfiguredModule, def module.Definition) string {
	if entry.DisplayName != "" {
		return entry.DisplayName
	}
	if def.Name != "" {
		return def.Name
	}
	return entry.InstanceID
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
