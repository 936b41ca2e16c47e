package cli

import (
	"bytes"
	"testing"

	"github.com/runoshun/magicbin/internal/app"
	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/testutil"
	"github.com/spf13/cobra"
)

// newTestContainer creates an app.Container with mock dependencies.
func newTestContainer(daemon *testutil.MockDaemon) *app.Container {
	finder := &testutil.MockConfigFinder{Config: &domain.Config{
		Namespace: "web",
		Path:      "/work/web/magicbin.toml",
	}}
	return app.NewWithDeps(
		app.Config{
			WorkDir:      "/work/web",
			SettingsPath: "/home/test/.config/magicbin/config.toml",
			Settings: domain.Settings{
				Listen:   domain.DefaultListen,
				LogLevel: "info",
				StateDir: "/home/test/.local/state/magicbin",
			},
		},
		finder,
		daemon,
		&testutil.MockConfigInitializer{},
		nil,
	)
}

// run executes cmd with args and returns stdout and stderr.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
