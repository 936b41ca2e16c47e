package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/runoshun/magicbin/internal/domain"
)

// headerHeight is the number of lines above the task list.
const headerHeight = 2

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case MsgTasksUpdated:
		m.applyUpdates(msg.Updates)
		m.layout()
		return m, tea.Batch(m.waitForUpdates(), m.refreshOutput(false))

	case MsgFeedClosed:
		m.feedClosed = true
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, nil

	case MsgOutputLoaded:
		if task := m.SelectedTask(); task != nil && task.ID == msg.TaskID {
			atBottom := m.output.AtBottom() || m.outputFor != msg.TaskID
			m.outputFor = msg.TaskID
			m.output.SetContent(string(msg.Output))
			if atBottom {
				m.output.GotoBottom()
			}
		}
		return m, nil

	case MsgActionDone:
		m.err = msg.Err
		return m, m.refreshOutput(true)

	case MsgTick:
		if m.feedClosed {
			return m, nil
		}
		return m, tea.Batch(tick(), m.refreshOutput(true))
	}

	return m, nil
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, m.refreshOutput(false)

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
		return m, m.refreshOutput(false)

	case key.Matches(msg, m.keys.ScrollUp):
		m.output.HalfPageUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.output.HalfPageDown()
		return m, nil

	case key.Matches(msg, m.keys.RebootAll):
		return m, m.namespaceAction(domain.NamespaceActionReboot)

	case key.Matches(msg, m.keys.StopAll):
		return m, m.namespaceAction(domain.NamespaceActionStop)
	}

	task := m.SelectedTask()
	if task == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Reboot):
		return m, m.taskAction(task.ID, domain.TaskActionReboot)
	case key.Matches(msg, m.keys.Stop):
		return m, m.taskAction(task.ID, domain.TaskActionStop)
	case key.Matches(msg, m.keys.Clear):
		return m, m.taskAction(task.ID, domain.TaskActionClear)
	}
	return m, nil
}

// refreshOutput reloads the output pane when the selection changed, or
// always when force is set.
func (m *Model) refreshOutput(force bool) tea.Cmd {
	task := m.SelectedTask()
	if task == nil {
		return nil
	}
	if !force && task.ID == m.outputFor {
		return nil
	}
	return m.loadOutput(task.ID)
}

// layout sizes the output pane to the space left below the task list.
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	footer := 1
	if m.help.ShowAll {
		footer = 5
	}
	// header, task rows, output title and border, footer
	used := headerHeight + len(m.tasks) + 2 + footer
	m.output.Width = max(m.width-2, 0)
	m.output.Height = max(m.height-used, 3)
}
