package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/focus/internal/service"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/sdk"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).MarginTop(1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	readOnlyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).Italic(true)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	activeBox     = boxStyle.BorderForeground(lipgloss.Color("#5B8DEF"))

	stateStyles = map[session.State]lipgloss.Style{
		session.StateIdle:     lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Bold(true),
		session.StateStarting: lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
		session.StateRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		session.StateStopping: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	leftWidth := max(30, width/2-2)
	rightWidth := max(30, width-leftWidth-4)

	left := a.presetMenu.View()
	if len(a.presetMenu.Items()) == 0 {
		left = lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Presets"), mutedStyle.Render("No presets saved yet."))
	}
	leftBox := boxFor(a.focus == focusPresets).Width(leftWidth).Render(left)
	rightBox := boxFor(a.focus != focusPresets).Width(rightWidth).Render(a.renderSessionPanel(rightWidth - 4))

	sections := []string{
		headerStyle.Render("◎ FOCUS"),
		lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox),
	}
	if a.editing {
		sections = append(sections, a.input.View())
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	sections = append(sections,
		hintStyle.Render("Enter → start/edit    Tab → focus    s → stop    1-9 → action    r → refresh    q → quit"),
		mutedStyle.Render(a.statusMsg),
	)
	return strings.Join(sections, "\n")
}

func boxFor(active bool) lipgloss.Style {
	if active {
		return activeBox
	}
	return boxStyle
}

func (a *App) renderSessionPanel(width int) string {
	state := a.status.State
	style, ok := stateStyles[state]
	if !ok {
		style = mutedStyle
	}
	lines := []string{titleStyle.Render("Session") + "  " + style.Render(strings.ToUpper(state.String()))}
	if len(a.status.Instances) == 0 {
		lines = append(lines, mutedStyle.Render("Nothing running. Pick a preset and press Enter."))
		return strings.Join(lines, "\n")
	}
	header := presetLabel(a.status.PresetName, a.status.PresetID)
	if a.status.StartedAt != nil {
		header += fmt.Sprintf(" · running %s", humanizeDuration(time.Since(*a.status.StartedAt)))
	}
	lines = append(lines, header, "")
	for idx, inst := range a.status.Instances {
		label := fmt.Sprintf("%s (%s)", inst.Label, inst.Module)
		if idx == a.instanceSel {
			marker := "  "
			if a.focus == focusInstances {
				marker = "› "
			}
			lines = append(lines, selectedStyle.Render(marker+label))
			continue
		}
		lines = append(lines, "  "+label)
	}
	if len(a.settings) > 0 {
		lines = append(lines, "", titleStyle.Render("Settings"))
		for idx, view := range a.settings {
			lines = append(lines, a.renderSetting(view, idx == a.settingSel && a.focus == focusSettings, width))
		}
	}
	if len(a.actions) > 0 {
		lines = append(lines, "", titleStyle.Render("Actions"))
		for idx, action := range a.actions {
			lines = append(lines, fmt.Sprintf("  %d  %s", idx+1, action.Label))
		}
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderSetting(view service.SettingView, selected bool, width int) string {
	if !view.Visible {
		return mutedStyle.Render("  " + view.Label + " (hidden)")
	}
	value := view.Value.String()
	switch {
	case view.Persistence == sdk.PersistSecret:
		value = "••••••"
	case len(view.Choices) > 0:
		value = fmt.Sprintf("%s  [%s]", value, strings.Join(view.Choices, ", "))
	}
	line := fmt.Sprintf("%s: %s", view.Label, value)
	if len(line) > width && width > 3 {
		line = line[:width-3] + "..."
	}
	switch {
	case selected:
		return selectedStyle.Render("› " + line)
	case view.ReadOnly:
		return readOnlyStyle.Render("  " + line)
	}
	return "  " + line
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := titleStyle.Render(fmt.Sprintf("HISTORY · %s", fileName))
	body := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Render(strings.Join(lines, "\n"))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
