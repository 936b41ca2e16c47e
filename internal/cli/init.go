package cli

import (
	"fmt"

	"github.com/runoshun/magicbin/internal/app"
	"github.com/runoshun/magicbin/internal/usecase"
	"github.com/spf13/cobra"
)

// newInitCommand creates the init command.
func newInitCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "init [namespace]",
		Short: "Create a magicbin.toml in the current directory",
		Long: `Create a magicbin.toml template in the current directory.

The namespace defaults to the name of the directory.

Error conditions:
- A magicbin.toml already exists: "config file already exists"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := usecase.InitConfigInput{Dir: c.Config.WorkDir}
			if len(args) == 1 {
				in.Namespace = args[0]
			}

			out, err := c.InitConfigUseCase().Execute(cmd.Context(), in)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", out.Path)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Run `mb sync` to load it into the daemon.")
			return nil
		},
	}
}
