package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxlab/agentcore/internal/execlog"
)

// stepState tracks what the log has told us about one step.
type stepState struct {
	id     string
	agent  string
	status string
}

// StepPaneModel renders per-step status derived from the execution log
// stream. It keeps steps in the order they first appear, which is the
// plan's dispatch order.
type StepPaneModel struct {
	steps   []*stepState
	byID    map[string]*stepState
	width   int
	height  int
	focused bool
}

// NewStepPaneModel creates an empty step pane.
func NewStepPaneModel() StepPaneModel {
	return StepPaneModel{byID: make(map[string]*stepState)}
}

// Update folds one log entry into the step table.
func (m StepPaneModel) Update(msg tea.Msg) (StepPaneModel, tea.Cmd) {
	entry, ok := msg.(execlog.Entry)
	if !ok || entry.StepID == "" {
		return m, nil
	}

	s, exists := m.byID[entry.StepID]
	if !exists {
		s = &stepState{id: entry.StepID}
		m.byID[entry.StepID] = s
		m.steps = append(m.steps, s)
	}

	switch entry.Event {
	case execlog.EventDispatched:
		s.status = "running"
		// Detail is "agentType -> workerName".
		if idx := strings.Index(entry.Detail, " -> "); idx > 0 {
			s.agent = entry.Detail[:idx]
		}
	case execlog.EventSucceeded:
		s.status = "succeeded"
	case execlog.EventFailed, execlog.EventRetried, execlog.EventReassigned:
		s.status = "recovering"
	case execlog.EventAborted:
		s.status = "failed"
	case execlog.EventSkipped:
		s.status = "skipped"
	}

	return m, nil
}

// View renders the step table.
func (m StepPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Steps")
	b.WriteString(title)
	b.WriteString("\n\n")

	if len(m.steps) == 0 {
		b.WriteString(StyleStatusPending.Render("waiting for dispatch..."))
		b.WriteString("\n")
	}

	for _, s := range m.steps {
		style := StyleStatusPending
		switch s.status {
		case "running", "recovering":
			style = StyleStatusRunning
		case "succeeded":
			style = StyleStatusSucceeded
		case "failed":
			style = StyleStatusFailed
		}
		b.WriteString(fmt.Sprintf("%-12s %s\n", s.agent, style.Render(s.status)))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *StepPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *StepPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
