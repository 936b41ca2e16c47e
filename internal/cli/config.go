package cli

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/runoshun/magicbin/internal/app"
	"github.com/runoshun/magicbin/internal/domain"
	"github.com/spf13/cobra"
)

// effectiveSettings mirrors the settings file layout.
type effectiveSettings struct {
	Daemon struct {
		Listen   string `toml:"listen"`
		StateDir string `toml:"state_dir"`
	} `toml:"daemon"`
	Log struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"log"`
}

// newConfigCommand creates the config command.
func newConfigCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the effective daemon settings",
		Long: `Display the daemon settings after merging defaults, the settings file
and the environment (MAGICBIN_ADDR, MAGICBIN_LOG_LEVEL).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := c.Config.Settings

			var out effectiveSettings
			out.Daemon.Listen = s.Listen
			out.Daemon.StateDir = s.StateDir
			out.Log.Level = s.LogLevel
			if s.StateDir != "" {
				out.Log.File = domain.DaemonLogPath(s.StateDir)
			}

			data, err := toml.Marshal(out)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}

			w := cmd.OutOrStdout()
			if c.Config.SettingsPath != "" {
				_, _ = fmt.Fprintf(w, "# %s\n", c.Config.SettingsPath)
			}
			_, _ = w.Write(data)
			return nil
		},
	}
}
