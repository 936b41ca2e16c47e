package tui

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/runoshun/magicbin/internal/domain"
)

// OutputLines is the number of output lines fetched for the selected task.
const OutputLines = 200

// refreshInterval is how often the output pane is reloaded.
const refreshInterval = time.Second

// Model is the main bubbletea model for the TUI.
type Model struct {
	// Dependencies (pointers first for alignment)
	daemon  domain.Daemon
	ctx     context.Context
	cancel  context.CancelFunc
	updates chan []domain.TaskUpdate
	err     error

	// State
	namespace string
	tasks     []domain.TaskInfo

	// Components
	keys   KeyMap
	styles Styles
	help   help.Model
	output viewport.Model

	// Numeric state (smaller types last)
	cursor     int
	width      int
	height     int
	outputFor  string
	feedClosed bool
}

// New creates a board of the tasks of namespace.
func New(daemon domain.Daemon, namespace string) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	return &Model{
		daemon:    daemon,
		ctx:       ctx,
		cancel:    cancel,
		updates:   make(chan []domain.TaskUpdate, 16),
		namespace: namespace,
		keys:      DefaultKeyMap(),
		styles:    DefaultStyles(),
		help:      help.New(),
		output:    viewport.New(0, 0),
	}
}

// Init initializes the model and returns the initial command.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.watch(),
		m.waitForUpdates(),
		tick(),
	)
}

// Close stops the task feed.
func (m *Model) Close() {
	m.cancel()
}

// watch runs the task feed, forwarding batches to the updates channel.
func (m *Model) watch() tea.Cmd {
	return func() tea.Msg {
		err := m.daemon.WatchTasks(m.ctx, m.namespace, "", func(updates []domain.TaskUpdate) error {
			select {
			case m.updates <- updates:
				return nil
			case <-m.ctx.Done():
				return m.ctx.Err()
			}
		})
		if m.ctx.Err() != nil {
			err = nil
		}
		return MsgFeedClosed{Err: err}
	}
}

// waitForUpdates delivers the next batch of the task feed.
func (m *Model) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		select {
		case updates := <-m.updates:
			return MsgTasksUpdated{Updates: updates}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return MsgTick{} })
}

// loadOutput fetches the recent output of a task.
func (m *Model) loadOutput(taskID string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.daemon.Tail(m.ctx, m.namespace, taskID, OutputLines)
		if err != nil {
			return MsgActionDone{Err: err}
		}
		return MsgOutputLoaded{TaskID: taskID, Output: out}
	}
}

// taskAction applies an action to a task.
func (m *Model) taskAction(taskID string, action domain.TaskAction) tea.Cmd {
	return func() tea.Msg {
		return MsgActionDone{Err: m.daemon.ApplyTaskAction(m.ctx, m.namespace, taskID, action)}
	}
}

// namespaceAction applies an action to the namespace.
func (m *Model) namespaceAction(action domain.NamespaceAction) tea.Cmd {
	return func() tea.Msg {
		return MsgActionDone{Err: m.daemon.ApplyNamespaceAction(m.ctx, m.namespace, action)}
	}
}

// SelectedTask returns the currently selected task, or nil if none.
func (m *Model) SelectedTask() *domain.TaskInfo {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return nil
	}
	return &m.tasks[m.cursor]
}

// Tasks returns the tasks currently shown.
func (m *Model) Tasks() []domain.TaskInfo {
	return m.tasks
}

// applyUpdates merges a feed batch into the task list, keeping it sorted by
// id and the cursor on the same task when possible.
func (m *Model) applyUpdates(updates []domain.TaskUpdate) {
	var selected string
	if task := m.SelectedTask(); task != nil {
		selected = task.ID
	}

	for _, u := range updates {
		i := slices.IndexFunc(m.tasks, func(t domain.TaskInfo) bool { return t.ID == u.Pointer.ID })
		switch {
		case u.Entity == nil && i >= 0:
			m.tasks = slices.Delete(m.tasks, i, i+1)
		case u.Entity == nil:
		case i >= 0:
			m.tasks[i] = *u.Entity
		default:
			m.tasks = append(m.tasks, *u.Entity)
		}
	}
	slices.SortFunc(m.tasks, func(a, b domain.TaskInfo) int { return strings.Compare(a.ID, b.ID) })

	if i := slices.IndexFunc(m.tasks, func(t domain.TaskInfo) bool { return t.ID == selected }); i >= 0 {
		m.cursor = i
	}
	m.cursor = min(m.cursor, max(len(m.tasks)-1, 0))
}
