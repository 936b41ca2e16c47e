package cli

import (
	"fmt"
	"net/url"

	"github.com/runoshun/magicbin/internal/app"
	"github.com/runoshun/magicbin/internal/usecase"
	"github.com/spf13/cobra"
)

// newSyncCommand creates the sync command.
func newSyncCommand(c *app.Container) *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load the current configuration into the daemon",
		Long: `Find the magicbin configuration governing the current directory and
ask the daemon to reconcile its namespace against it.

New tasks are created, removed tasks are stopped, and tasks whose
configuration changed are restarted. The daemon keeps watching the file
and syncs again whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.SyncNamespaceUseCase().Execute(cmd.Context(), usecase.SyncNamespaceInput{
				Dir: c.Config.WorkDir,
			})
			if err != nil {
				return err
			}

			for _, w := range out.Result.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
			}
			ns := out.Result.Namespace
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Synced namespace %s (%d tasks) from %s\n", ns.ID, ns.TaskCount, out.Config.Path)
			if open {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), namespaceURL(c, ns.ID))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "Print the daemon URL of the namespace")

	return cmd
}

// namespaceURL returns the daemon URL serving a namespace.
func namespaceURL(c *app.Container, namespace string) string {
	base := "http://" + c.Config.Settings.Listen
	if c.Client != nil {
		base = c.Client.URL()
	}
	return base + "/api/namespaces/" + url.PathEscape(namespace)
}
