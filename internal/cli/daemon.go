package cli

import (
	"github.com/runoshun/magicbin/internal/app"
	"github.com/spf13/cobra"
)

// newDaemonCommand creates the daemon command.
func newDaemonCommand(c *app.Container) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the daemon in the foreground",
		Long: `Run the magicbin daemon in the foreground until interrupted.

The daemon listens on the address configured in the settings file
(default 127.0.0.1:6890, overridden by MAGICBIN_ADDR). Logs are written to
the state directory and, unless --quiet is set, to stderr.

Namespaces synced into an earlier daemon are loaded again on start, as
long as their configuration file still exists.

On interrupt every task is stopped before the daemon exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			foreground := cmd.ErrOrStderr()
			if quiet {
				foreground = nil
			}
			d, err := c.NewDaemon(foreground)
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only write logs to the log file")

	return cmd
}
