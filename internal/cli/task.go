package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/runoshun/magicbin/internal/app"
	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/tui"
	"github.com/runoshun/magicbin/internal/usecase"
	"github.com/spf13/cobra"
)

// DefaultTailLines is the number of lines `mb tail` prints by default.
const DefaultTailLines = 100

// newListCommand creates the list command.
func newListCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long: `Display the tasks of the current namespace.

Output format is tab-separated with columns:
  ID, NAME, STATUS`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ListTasksUseCase().Execute(cmd.Context(), usecase.ListTasksInput{
				Dir: c.Config.WorkDir,
			})
			if err != nil {
				return err
			}

			printNamespace(cmd.OutOrStdout(), out.Namespace)
			printTaskList(cmd.OutOrStdout(), out.Tasks)
			return nil
		},
	}
}

// printNamespace prints the namespace header of the task list.
func printNamespace(w io.Writer, ns *domain.NamespaceInfo) {
	title := lipgloss.NewStyle().Bold(true).Render(ns.Name)
	state := "watching " + domain.ShortenHome(ns.ConfigPath)
	if !ns.Watched {
		state = "not watching"
	}
	_, _ = fmt.Fprintf(w, "%s (%s)\n", title, state)
	if ns.Description != nil && *ns.Description != "" {
		_, _ = fmt.Fprintln(w, *ns.Description)
	}
	_, _ = fmt.Fprintln(w)
}

// printTaskList prints tasks in tabular form. The colored status comes last
// so escape sequences never skew the columns.
func printTaskList(w io.Writer, tasks []domain.TaskInfo) {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(w, "No tasks.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer func() { _ = tw.Flush() }()

	// Header
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATUS")

	// Rows
	for _, task := range tasks {
		name := task.Name
		if name == "" {
			name = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", task.ID, name, tui.StatusStyle(task.Status).Render(task.Status.Display()))
	}
}

// newStartCommand creates the start command.
func newStartCommand(c *app.Container) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "start <task>",
		Short: "Start a task and wait until it runs",
		Long: `Start a task unless it is already active, then wait until it is running.

A task is active while it is starting or running. Use --force to restart an
active task.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.StartTaskUseCase().Execute(cmd.Context(), usecase.StartTaskInput{
				Dir:    c.Config.WorkDir,
				TaskID: args[0],
				Force:  force,
			})
			if err != nil {
				return err
			}

			if !out.Started {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s is already %s\n", out.Task.ID, out.Task.Status)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s is running\n", out.Task.ID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Restart the task even if it is active")

	return cmd
}

// newStopCommand creates the stop command.
func newStopCommand(c *app.Container) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stop [task]",
		Short: "Stop a task and wait until it exits",
		Long: `Stop a task, or every task of the namespace with --all, and wait until
the processes have exited.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("specify either a task or --all")
			}
			in := usecase.StopTaskInput{Dir: c.Config.WorkDir, All: all}
			if len(args) == 1 {
				in.TaskID = args[0]
			}

			out, err := c.StopTaskUseCase().Execute(cmd.Context(), in)
			if err != nil {
				return err
			}

			switch {
			case len(out.Stopped) > 0:
				for _, id := range out.Stopped {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", id)
				}
			case all:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No active tasks in %s\n", out.Namespace)
			default:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s is not running\n", in.TaskID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Stop every task of the namespace")

	return cmd
}

// newTailCommand creates the tail command.
func newTailCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Lines  int
		Follow bool
	}

	cmd := &cobra.Command{
		Use:   "tail <task>",
		Short: "Print the output of a task",
		Long: `Print the last lines of a task's output.

With --follow, keep printing output as the task produces it until
interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Lines < 0 {
				return fmt.Errorf("invalid line count: %d", opts.Lines)
			}
			return c.TailTaskUseCase().Execute(cmd.Context(), usecase.TailTaskInput{
				Out:    cmd.OutOrStdout(),
				Dir:    c.Config.WorkDir,
				TaskID: args[0],
				Lines:  opts.Lines,
				Follow: opts.Follow,
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", DefaultTailLines, "Number of lines to print")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Keep printing new output")

	return cmd
}

// newConfirmCommand creates the confirm command.
func newConfirmCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm",
		Short: "Report that the current task is ready",
		Long: `Report to the daemon that the task running this command is ready.

Tasks with confirmation_mode = "modern" stay starting until they run
` + "`mb confirm`" + `. The task is identified by the ` + domain.TokenEnv + ` environment
variable the daemon sets for every task process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ConfirmTaskUseCase().Execute(cmd.Context(), usecase.ConfirmTaskInput{
				Token: c.Getenv(domain.TokenEnv),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Confirmed %s/%s\n", out.Namespace, out.TaskID)
			return nil
		},
	}
}

// newTopCommand creates the top command.
func newTopCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Show a live board of the namespace's tasks",
		Long: `Show a live board of the tasks of the current namespace with the output
of the selected task.

Keys: r reboot, s stop, c clear output, R reboot all, S stop all, q quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ListTasksUseCase().Execute(cmd.Context(), usecase.ListTasksInput{
				Dir: c.Config.WorkDir,
			})
			if err != nil {
				return err
			}
			return launchTUIFunc(c, out.Namespace.ID)
		},
	}
}
