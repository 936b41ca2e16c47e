// Package cli provides the command-line interface for magicbin.
package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/runoshun/magicbin/internal/app"
	"github.com/runoshun/magicbin/internal/tui"
	"github.com/spf13/cobra"
)

// Command group IDs.
const (
	groupSetup  = "setup"
	groupTask   = "task"
	groupDaemon = "daemon"
)

// launchTUIFunc runs the task board, allowing it to be mocked in tests.
var launchTUIFunc = launchTUI

// NewRootCommand creates the root command for magicbin.
// It receives the container for dependency injection and version for display.
func NewRootCommand(c *app.Container, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "mb",
		Short: "Local process supervisor",
		Long: `magicbin runs the long-lived processes of your projects.

Each project declares its tasks in a magicbin.toml file. The daemon keeps
them running, restarts them when they exit or when the file changes, and
starts dependent tasks once the tasks they depend on are up.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip if container is nil (e.g. in tests)
			if c == nil {
				return nil
			}
			for _, w := range c.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s: %s\n", c.Config.SettingsPath, w)
			}
			return nil
		},
	}

	// Define command groups
	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
		&cobra.Group{ID: groupTask, Title: "Task Management:"},
		&cobra.Group{ID: groupDaemon, Title: "Daemon:"},
	)

	// Setup commands
	initCmd := newInitCommand(c)
	initCmd.GroupID = groupSetup

	syncCmd := newSyncCommand(c)
	syncCmd.GroupID = groupSetup

	configCmd := newConfigCommand(c)
	configCmd.GroupID = groupSetup

	// Task management commands
	listCmd := newListCommand(c)
	listCmd.GroupID = groupTask

	startCmd := newStartCommand(c)
	startCmd.GroupID = groupTask

	stopCmd := newStopCommand(c)
	stopCmd.GroupID = groupTask

	tailCmd := newTailCommand(c)
	tailCmd.GroupID = groupTask

	confirmCmd := newConfirmCommand(c)
	confirmCmd.GroupID = groupTask

	topCmd := newTopCommand(c)
	topCmd.GroupID = groupTask

	// Daemon commands
	daemonCmd := newDaemonCommand(c)
	daemonCmd.GroupID = groupDaemon

	root.AddCommand(
		initCmd,
		syncCmd,
		configCmd,
		listCmd,
		startCmd,
		stopCmd,
		tailCmd,
		confirmCmd,
		topCmd,
		daemonCmd,
	)

	return root
}

// launchTUI runs the task board of namespace until the user quits.
func launchTUI(c *app.Container, namespace string) error {
	model := tui.New(c.Daemon, namespace)
	defer model.Close()
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
