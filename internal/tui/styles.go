// Package tui implements the live task board behind `mb top`.
package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/runoshun/magicbin/internal/domain"
)

// Colors defines the color palette for the TUI.
var Colors = struct {
	Primary   lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Active    lipgloss.Color
	Selected  lipgloss.Color
	Border    lipgloss.Color
	Cancelled lipgloss.Color
}{
	Primary:   lipgloss.Color("#6C5CE7"), // Purple
	Muted:     lipgloss.Color("#636E72"), // Gray
	Error:     lipgloss.Color("#D63031"), // Red
	Success:   lipgloss.Color("#00B894"), // Green
	Warning:   lipgloss.Color("#FDCB6E"), // Yellow
	Active:    lipgloss.Color("#74B9FF"), // Light blue
	Selected:  lipgloss.Color("#FFEAA7"), // Pale yellow
	Border:    lipgloss.Color("#636E72"),
	Cancelled: lipgloss.Color("#B2BEC3"), // Light gray
}

// statusColors maps every status to its badge color.
var statusColors = map[domain.Status]lipgloss.Color{
	domain.StatusPending:   Colors.Muted,
	domain.StatusStarting:  Colors.Warning,
	domain.StatusRunning:   Colors.Active,
	domain.StatusStopping:  Colors.Warning,
	domain.StatusSuccess:   Colors.Success,
	domain.StatusFailed:    Colors.Error,
	domain.StatusCancelled: Colors.Cancelled,
}

// StatusStyle returns the style a status is rendered with.
func StatusStyle(status domain.Status) lipgloss.Style {
	color, ok := statusColors[status]
	if !ok {
		color = Colors.Muted
	}
	return lipgloss.NewStyle().Foreground(color).Bold(status == domain.StatusFailed)
}

// Styles contains all the lipgloss styles for the TUI.
type Styles struct {
	App          lipgloss.Style
	Header       lipgloss.Style
	HeaderMuted  lipgloss.Style
	TaskNormal   lipgloss.Style
	TaskSelected lipgloss.Style
	Cursor       lipgloss.Style
	OutputTitle  lipgloss.Style
	Output       lipgloss.Style
	ErrorMsg     lipgloss.Style
	Footer       lipgloss.Style
}

// DefaultStyles returns the default styles for the TUI.
func DefaultStyles() Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Padding(0, 1),

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(Colors.Primary),

		HeaderMuted: lipgloss.NewStyle().
			Foreground(Colors.Muted),

		TaskNormal: lipgloss.NewStyle(),

		TaskSelected: lipgloss.NewStyle().
			Bold(true).
			Foreground(Colors.Selected),

		Cursor: lipgloss.NewStyle().
			Foreground(Colors.Selected),

		OutputTitle: lipgloss.NewStyle().
			Foreground(Colors.Muted).
			Italic(true),

		Output: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(Colors.Border),

		ErrorMsg: lipgloss.NewStyle().
			Foreground(Colors.Error),

		Footer: lipgloss.NewStyle().
			Foreground(Colors.Muted),
	}
}
