// Package tui renders a live view of one plan's execution by consuming
// the execution log stream. It is a pure log consumer: the
// orchestration core never depends on it.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/voxlab/agentcore/internal/execlog"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneSteps PaneID = iota
	PaneLog
)

// logClosedMsg signals that the execution log stream ended.
type logClosedMsg struct{}

// Model is the root Bubble Tea model for the viewer.
type Model struct {
	stepPane    StepPaneModel
	logPane     LogPaneModel
	focusedPane PaneID
	entrySub    <-chan execlog.Entry
	width       int
	height      int
	quitting    bool
	finished    bool
}

// New creates a viewer model over a log subscription. Use
// Log.Subscribe(0, ...) or Supervisor.Follow to obtain the channel.
func New(entries <-chan execlog.Entry) Model {
	m := Model{
		stepPane:    NewStepPaneModel(),
		logPane:     NewLogPaneModel(),
		focusedPane: PaneLog,
		entrySub:    entries,
	}
	m.logPane.SetFocused(true)
	return m
}

// Init returns the initial command: wait for the first log entry.
func (m Model) Init() tea.Cmd {
	return waitForEntry(m.entrySub)
}

// waitForEntry returns a command that waits for the next log entry.
func waitForEntry(sub <-chan execlog.Entry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-sub
		if !ok {
			return logClosedMsg{}
		}
		return entry
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.stepPane.SetFocused(m.focusedPane == PaneSteps)
			m.logPane.SetFocused(m.focusedPane == PaneLog)

		default:
			var cmd tea.Cmd
			m.logPane, cmd = m.logPane.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case execlog.Entry:
		var cmd tea.Cmd
		m.stepPane, cmd = m.stepPane.Update(msg)
		cmds = append(cmds, cmd)
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)
		if msg.Event == execlog.EventPlanFinished {
			m.finished = true
		}
		cmds = append(cmds, waitForEntry(m.entrySub))

	case logClosedMsg:
		m.finished = true
	}

	return m, tea.Batch(cmds...)
}

// layout splits the window: steps on the left third, log on the rest.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	stepWidth := m.width / 3
	paneHeight := m.height - 1 // keep one row for the help bar
	m.stepPane.SetSize(stepWidth, paneHeight)
	m.logPane.SetSize(m.width-stepWidth, paneHeight)
}

// View renders the viewer.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "loading..."
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top, m.stepPane.View(), m.logPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, panes, HelpView())
}

// Finished reports whether the plan's log stream has ended.
func (m Model) Finished() bool {
	return m.finished
}
