package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxlab/agentcore/internal/execlog"
)

// LogPaneModel renders the raw execution log stream in a scrolling
// viewport, newest entries at the bottom.
type LogPaneModel struct {
	vp      viewport.Model
	lines   []string
	width   int
	height  int
	focused bool
	follow  bool // stick to the bottom while new entries arrive
}

// NewLogPaneModel creates an empty log pane.
func NewLogPaneModel() LogPaneModel {
	return LogPaneModel{
		vp:     viewport.New(0, 0),
		follow: true,
	}
}

// Update folds log entries and key events into the pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case execlog.Entry:
		m.lines = append(m.lines, formatEntry(msg))
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		if m.follow {
			m.vp.GotoBottom()
		}

	case tea.KeyMsg:
		if !m.focused {
			return m, nil
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			m.vp.ScrollDown(1)
			m.follow = m.vp.AtBottom()
		case KeyK, KeyUp:
			m.vp.ScrollUp(1)
			m.follow = false
		}
	}

	return m, nil
}

// formatEntry renders one log entry as a display line.
func formatEntry(e execlog.Entry) string {
	step := e.StepID
	if len(step) > 8 {
		step = step[:8]
	}
	if step == "" {
		step = "plan"
	}

	line := fmt.Sprintf("%s %4d %-8s %-11s %s",
		e.Time.Format("15:04:05"), e.Seq, step, e.Event, e.Detail)

	switch e.Event {
	case execlog.EventSucceeded, execlog.EventValidated:
		return StyleStatusSucceeded.Render(line)
	case execlog.EventFailed, execlog.EventRejected, execlog.EventAborted:
		return StyleStatusFailed.Render(line)
	case execlog.EventRetried, execlog.EventReassigned:
		return StyleStatusRunning.Render(line)
	}
	return line
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	title := StyleTitle.Render("Execution Log")
	content := title + "\n" + m.vp.View()

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane and viewport dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.vp.Width = w - 4
	m.vp.Height = h - 4
	m.vp.SetContent(strings.Join(m.lines, "\n"))
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
