package executor

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/runoshun/magicbin/internal/domain"
)

// Task output is stored and replayed to terminals later, so banners are
// always colored regardless of the daemon's own stdout.
var fenceRenderer = func() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.TrueColor)
	return r
}()

var (
	promptStyle  = fenceRenderer.NewStyle().Foreground(lipgloss.Color("#40E0D0"))
	cwdStyle     = fenceRenderer.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	successStyle = fenceRenderer.NewStyle().Foreground(lipgloss.Color("#8FBC8F"))
	failureStyle = fenceRenderer.NewStyle().Foreground(lipgloss.Color("#F08080"))
)

// promptBanner renders "<timestamp> <cwd> $ <shell>" followed by a blank line.
func promptBanner(now time.Time, cwd, shell string) string {
	return promptStyle.Render(now.Format("2006-01-02 15:04:05")) +
		" " +
		cwdStyle.Render(domain.ShortenHome(cwd)) +
		promptStyle.Render(" $ ") +
		shell + "\n\n"
}

// exitBanner renders the success or failure line written after a run.
func exitBanner(code int) string {
	if code == 0 {
		return "\n" + successStyle.Render("Process exited successfully") + "\n\n"
	}
	return "\n" + failureStyle.Render(fmt.Sprintf("Process failed with exit code %d", code)) + "\n\n"
}
