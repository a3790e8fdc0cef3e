// internal/tui/app.go
//
// This is the terminal monitor for focus. It uses bubbletea, which follows
// The Elm Architecture:
//
// 1. Model: the App struct below
// 2. Update: reacts to keys, service results and live runtime events
// 3. View: renders the preset menu, the running session and the history log
//
// Live events arrive through the service's broadcast subscriptions; each one
// is turned into a message by a command that waits on the channel.

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/focus/internal/broadcast"
	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/logbook"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/service"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/sdk"
)

const boardRefreshInterval = 3 * time.Second

// Runtime is the part of service.Service the monitor drives.
type Runtime interface {
	ListPresets() ([]preset.Preset, error)
	StartSession(ctx context.Context, presetID string) (*session.ActiveSession, error)
	StopSession(ctx context.Context) error
	SessionStatus() service.StatusView
	InstanceSettings(instanceID string) ([]service.SettingView, error)
	InstanceActions(instanceID string) ([]sdk.Action, error)
	UpdateSettingRaw(ctx context.Context, instanceID, key, raw string) error
	InvokeAction(ctx context.Context, instanceID, action string) error
	SubscribeSettings(instanceID string) eventbridge.Subscription[broadcast.SettingUpdate]
	SubscribeSessions() eventbridge.Subscription[session.Event]
}

var _ Runtime = (*service.Service)(nil)

type boardFocus int

const (
	focusPresets boardFocus = iota
	focusInstances
	focusSettings
)

type presetsLoadedMsg struct {
	items []list.Item
	err   error
}

type statusRefreshMsg struct {
	status service.StatusView
}

type instanceLoadedMsg struct {
	instanceID string
	settings   []service.SettingView
	actions    []sdk.Action
	err        error
}

type sessionEventMsg struct {
	event session.Event
	ok    bool
}

type settingUpdateMsg struct {
	update broadcast.SettingUpdate
	ok     bool
}

// operationMsg reports the result of a start, stop, update or action.
type operationMsg struct {
	what string
	err  error
}

type presetItem struct {
	id    string
	title string
	desc  string
}

func (i presetItem) Title() string       { return i.title }
func (i presetItem) Description() string { return i.desc }
func (i presetItem) FilterValue() string { return i.id }

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the tail of the session history below the board.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// App is the monitor model. In bubbletea, this holds ALL your state.
type App struct {
	runtime Runtime
	logbook *logbook.Logbook

	presetMenu list.Model
	input      textinput.Model
	editing    bool

	settingsSub eventbridge.Subscription[broadcast.SettingUpdate]
	sessionsSub eventbridge.Subscription[session.Event]

	status      service.StatusView
	focus       boardFocus
	instanceSel int
	settingSel  int
	instanceID  string
	settings    []service.SettingView
	actions     []sdk.Action

	statusMsg string
	width     int
	height    int
}

// NewApp builds the monitor and subscribes to live runtime events. Close
// releases the subscriptions.
func NewApp(runtime Runtime, opts ...AppOption) *App {
	menu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "◎ PRESETS"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)

	input := textinput.New()
	input.Prompt = "› "
	input.CharLimit = 256

	app := &App{
		runtime:     runtime,
		presetMenu:  menu,
		input:       input,
		settingsSub: runtime.SubscribeSettings(eventbridge.Wildcard),
		sessionsSub: runtime.SubscribeSessions(),
		status:      runtime.SessionStatus(),
		focus:       focusPresets,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Close releases the live subscriptions.
func (a *App) Close() {
	a.settingsSub.Close()
	a.sessionsSub.Close()
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.loadPresets(),
		a.fetchStatus(),
		a.waitForSessionEvent(),
		a.waitForSettingUpdate(),
	)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.presetMenu.SetSize(max(0, msg.Width/2-6), max(0, msg.Height-12))
		return a, nil

	case presetsLoadedMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Some presets could not be read: %v", msg.err)
		}
		a.presetMenu.SetItems(msg.items)
		return a, nil

	case statusRefreshMsg:
		a.applyStatus(msg.status)
		return a, tea.Batch(a.loadSelectedInstance(), a.scheduleStatusRefresh())

	case sessionEventMsg:
		if !msg.ok {
			return a, nil
		}
		a.logProgress(msg.event)
		a.applyStatus(a.runtime.SessionStatus())
		return a, tea.Batch(a.loadSelectedInstance(), a.waitForSessionEvent())

	case settingUpdateMsg:
		if !msg.ok {
			return a, nil
		}
		a.applyUpdate(msg.update)
		return a, a.waitForSettingUpdate()

	case instanceLoadedMsg:
		if msg.instanceID != a.selectedInstanceID() {
			return a, nil
		}
		if msg.err != nil {
			a.statusMsg = msg.err.Error()
			return a, nil
		}
		a.instanceID = msg.instanceID
		a.settings = msg.settings
		a.actions = msg.actions
		if a.settingSel >= len(a.settings) {
			a.settingSel = max(0, len(a.settings)-1)
		}
		return a, nil

	case operationMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
		} else {
			a.statusMsg = msg.what + " done"
		}
		a.applyStatus(a.runtime.SessionStatus())
		return a, a.loadSelectedInstance()

	case tea.KeyMsg:
		if a.editing {
			return a.updateEditor(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			a.statusMsg = "Refreshing..."
			return a, tea.Batch(a.loadPresets(), a.fetchStatus())
		case "s":
			return a, a.stopSession()
		case "tab":
			a.cycleFocus()
			return a, a.loadSelectedInstance()
		case "up", "k":
			if a.moveSelection(-1) {
				return a, a.loadSelectedInstance()
			}
		case "down", "j":
			if a.moveSelection(1) {
				return a, a.loadSelectedInstance()
			}
		case "enter":
			switch a.focus {
			case focusPresets:
				return a, a.startSelectedPreset()
			case focusSettings:
				return a, a.beginEdit()
			}
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			if a.focus != focusPresets {
				return a, a.invokeAction(int(msg.String()[0] - '1'))
			}
		}
	}

	if a.focus == focusPresets {
		var cmd tea.Cmd
		a.presetMenu, cmd = a.presetMenu.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.editing = false
		a.input.Blur()
		a.statusMsg = ""
		return a, nil
	case "enter":
		a.editing = false
		a.input.Blur()
		return a, a.submitEdit(a.input.Value())
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) applyStatus(status service.StatusView) {
	a.status = status
	if len(status.Instances) == 0 {
		a.instanceSel = 0
		a.instanceID = ""
		a.settings = nil
		a.actions = nil
		if a.focus != focusPresets {
			a.focus = focusPresets
		}
		return
	}
	if a.instanceSel >= len(status.Instances) {
		a.instanceSel = len(status.Instances) - 1
	}
}

// applyUpdate patches the cached settings of the selected instance.
func (a *App) applyUpdate(update broadcast.SettingUpdate) {
	if update.InstanceID != a.instanceID {
		return
	}
	for idx := range a.settings {
		view := &a.settings[idx]
		if view.Key != update.Key {
			continue
		}
		switch update.Property {
		case broadcast.PropertyValue:
			if view.Persistence != sdk.PersistSecret {
				view.Value = update.Value
			}
		case broadcast.PropertyLabel:
			view.Label = update.Value.Str()
		case broadcast.PropertyVisible:
			view.Visible = update.Value.Bool()
		case broadcast.PropertyReadOnly:
			view.ReadOnly = update.Value.Bool()
		case broadcast.PropertyChoices:
			view.Choices = update.Value.Choices()
		}
		return
	}
}

func (a *App) cycleFocus() {
	switch a.focus {
	case focusPresets:
		if len(a.status.Instances) > 0 {
			a.focus = focusInstances
		}
	case focusInstances:
		if len(a.settings) > 0 {
			a.focus = focusSettings
		} else {
			a.focus = focusPresets
		}
	default:
		a.focus = focusPresets
	}
}

// moveSelection reports whether the selected instance changed.
func (a *App) moveSelection(delta int) bool {
	switch a.focus {
	case focusInstances:
		next := a.instanceSel + delta
		if next < 0 || next >= len(a.status.Instances) {
			return false
		}
		a.instanceSel = next
		a.settingSel = 0
		return true
	case focusSettings:
		next := a.settingSel + delta
		if next >= 0 && next < len(a.settings) {
			a.settingSel = next
		}
	}
	return false
}

func (a *App) selectedInstanceID() string {
	if a.instanceSel < 0 || a.instanceSel >= len(a.status.Instances) {
		return ""
	}
	return a.status.Instances[a.instanceSel].InstanceID
}

func (a *App) logProgress(event session.Event) {
	switch event.Type {
	case session.EventStarted:
		a.statusMsg = fmt.Sprintf("Session started · %s", presetLabel(event.PresetName, event.PresetID))
	case session.EventStopped:
		a.statusMsg = "Session stopped"
		if len(event.Errors) > 0 {
			a.statusMsg += fmt.Sprintf(" with %d teardown error(s)", len(event.Errors))
		}
	}
}

func (a *App) loadPresets() tea.Cmd {
	return func() tea.Msg {
		presets, err := a.runtime.ListPresets()
		items := make([]list.Item, 0, len(presets))
		for _, p := range presets {
			items = append(items, presetItem{
				id:    p.ID,
				title: presetLabel(p.Name, p.ID),
				desc:  describeModules(p),
			})
		}
		return presetsLoadedMsg{items: items, err: err}
	}
}

func (a *App) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		return statusRefreshMsg{status: a.runtime.SessionStatus()}
	}
}

func (a *App) scheduleStatusRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return statusRefreshMsg{status: a.runtime.SessionStatus()}
	})
}

func (a *App) waitForSessionEvent() tea.Cmd {
	events := a.sessionsSub.Events
	return func() tea.Msg {
		event, ok := <-events
		return sessionEventMsg{event: event, ok: ok}
	}
}

func (a *App) waitForSettingUpdate() tea.Cmd {
	updates := a.settingsSub.Events
	return func() tea.Msg {
		update, ok := <-updates
		return settingUpdateMsg{update: update, ok: ok}
	}
}

func (a *App) loadSelectedInstance() tea.Cmd {
	instanceID := a.selectedInstanceID()
	if instanceID == "" {
		return nil
	}
	return func() tea.Msg {
		settings, err := a.runtime.InstanceSettings(instanceID)
		if err != nil {
			return instanceLoadedMsg{instanceID: instanceID, err: err}
		}
		actions, err := a.runtime.InstanceActions(instanceID)
		return instanceLoadedMsg{instanceID: instanceID, settings: settings, actions: actions, err: err}
	}
}

func (a *App) startSelectedPreset() tea.Cmd {
	item, ok := a.presetMenu.SelectedItem().(presetItem)
	if !ok {
		a.statusMsg = "No preset selected"
		return nil
	}
	a.statusMsg = fmt.Sprintf("Starting %s...", item.title)
	return func() tea.Msg {
		_, err := a.runtime.StartSession(context.Background(), item.id)
		return operationMsg{what: "Start " + item.title, err: err}
	}
}

func (a *App) stopSession() tea.Cmd {
	a.statusMsg = "Stopping session..."
	return func() tea.Msg {
		return operationMsg{what: "Stop", err: a.runtime.StopSession(context.Background())}
	}
}

func (a *App) beginEdit() tea.Cmd {
	if a.settingSel >= len(a.settings) {
		return nil
	}
	view := a.settings[a.settingSel]
	if view.ReadOnly {
		a.statusMsg = fmt.Sprintf("%s is read-only", view.Label)
		return nil
	}
	a.editing = true
	a.input.SetValue("")
	if view.Persistence != sdk.PersistSecret {
		a.input.SetValue(view.Value.String())
	}
	a.input.Placeholder = string(view.Kind)
	a.statusMsg = fmt.Sprintf("Editing %s · Enter → save    Esc → cancel", view.Label)
	return a.input.Focus()
}

func (a *App) submitEdit(raw string) tea.Cmd {
	if a.settingSel >= len(a.settings) {
		return nil
	}
	instanceID, key := a.instanceID, a.settings[a.settingSel].Key
	return func() tea.Msg {
		err := a.runtime.UpdateSettingRaw(context.Background(), instanceID, key, strings.TrimSpace(raw))
		return operationMsg{what: "Update " + key, err: err}
	}
}

func (a *App) invokeAction(idx int) tea.Cmd {
	if idx < 0 || idx >= len(a.actions) {
		return nil
	}
	instanceID, action := a.instanceID, a.actions[idx]
	a.statusMsg = fmt.Sprintf("Running %s...", action.Label)
	return func() tea.Msg {
		err := a.runtime.InvokeAction(context.Background(), instanceID, action.Key)
		return operationMsg{what: action.Label, err: err}
	}
}

func presetLabel(name, id string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return id
}

func describeModules(p preset.Preset) string {
	if len(p.Modules) == 0 {
		return "No modules"
	}
	labels := make([]string, 0, len(p.Modules))
	for _, entry := range p.Modules {
		labels = append(labels, entry.Label())
	}
	return strings.Join(labels, " · ")
}
