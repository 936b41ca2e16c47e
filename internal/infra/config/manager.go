package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/runoshun/magicbin/internal/domain"
)

// InitTemplate renders the scaffold written by `mb init` for a namespace.
func InitTemplate(namespace string) string {
	var b strings.Builder
	b.WriteString("# magicbin namespace configuration\n")
	fmt.Fprintf(&b, "namespace = %q\n", namespace)
	b.WriteString("# description = \"What this project runs\"\n")
	b.WriteString("# description_file = \"README.md\"\n")
	b.WriteString("\n")
	b.WriteString("[tasks.hello]\n")
	b.WriteString("shell = \"echo hello from magicbin\"\n")
	b.WriteString("# cwd = \".\"\n")
	b.WriteString("# fence = true\n")
	b.WriteString("# back_buffer_rows = 100\n")
	b.WriteString("# reboot_interval = 1000   # milliseconds, false disables automatic reboots\n")
	b.WriteString("reboot_on_success = false\n")
	b.WriteString("# reboot_on_failure = true\n")
	b.WriteString("# depends_on = [\"other\"]\n")
	b.WriteString("# confirmation_mode = { type = \"grep\", pattern = \"listening\" }\n")
	return b.String()
}

// Ensure Manager implements domain.ConfigInitializer.
var _ domain.ConfigInitializer = (*Manager)(nil)

// Manager creates namespace configuration files.
type Manager struct{}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Init creates a namespace config file in dir with the default template.
// An empty namespace defaults to the directory name.
func (m *Manager) Init(dir, namespace string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(abs, domain.ConfigFileName)

	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return path, domain.ErrConfigExists
	}

	if namespace == "" {
		namespace = filepath.Base(abs)
	}
	if namespace == "/" || namespace == "." {
		namespace = "default"
	}

	return path, os.WriteFile(path, []byte(InitTemplate(namespace)), 0600)
}
