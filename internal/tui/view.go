package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/runoshun/magicbin/internal/domain"
)

// rowPrefixWidth is the width of the cursor, the status badge and the
// app padding preceding a task id.
const rowPrefixWidth = 2 + 9 + 1 + 2

// View renders the TUI.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.viewTaskList())
	b.WriteString(m.viewOutput())
	b.WriteString("\n")
	b.WriteString(m.viewFooter())

	return m.styles.App.Render(b.String())
}

// viewHeader renders the namespace line and the last error.
func (m *Model) viewHeader() string {
	header := m.styles.Header.Render("mb top") + " " + m.styles.HeaderMuted.Render(m.namespace)
	switch {
	case m.err != nil:
		header += "  " + m.styles.ErrorMsg.Render("Error: "+m.err.Error())
	case m.feedClosed:
		header += "  " + m.styles.ErrorMsg.Render("disconnected from daemon")
	}
	return header + "\n"
}

// viewTaskList renders one row per task.
func (m *Model) viewTaskList() string {
	if len(m.tasks) == 0 {
		return m.styles.HeaderMuted.Render("No tasks.") + "\n"
	}

	width := 0
	for _, t := range m.tasks {
		width = max(width, runewidth.StringWidth(t.ID))
	}
	maxNameLen := m.width - rowPrefixWidth - width - 2

	var b strings.Builder
	for i, t := range m.tasks {
		cursor := "  "
		style := m.styles.TaskNormal
		if i == m.cursor {
			cursor = m.styles.Cursor.Render("> ")
			style = m.styles.TaskSelected
		}
		line := runewidth.FillRight(t.ID, width)
		if t.Name != "" && t.Name != t.ID && maxNameLen > 3 {
			name := t.Name
			if runewidth.StringWidth(name) > maxNameLen {
				name = runewidth.Truncate(name, maxNameLen, "...")
			}
			line += "  " + name
		}
		b.WriteString(cursor)
		b.WriteString(StatusBadge(t.Status))
		b.WriteString(" ")
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// StatusBadge renders a status padded to the widest status.
func StatusBadge(status domain.Status) string {
	return StatusStyle(status).Render(fmt.Sprintf("%-9s", status.Display()))
}

// viewOutput renders the output pane of the selected task.
func (m *Model) viewOutput() string {
	task := m.SelectedTask()
	if task == nil {
		return ""
	}
	title := m.styles.OutputTitle.Render("output of " + task.ID)
	return "\n" + title + "\n" + m.styles.Output.Render(m.output.View())
}

// viewFooter renders the key help.
func (m *Model) viewFooter() string {
	return m.styles.Footer.Render(m.help.View(m.keys))
}
