package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/runoshun/magicbin/internal/domain"
)

// Environment variables overriding the settings file.
const (
	EnvListen   = "MAGICBIN_ADDR"
	EnvLogLevel = "MAGICBIN_LOG_LEVEL"
)

// Ensure SettingsLoader implements domain.SettingsLoader.
var _ domain.SettingsLoader = (*SettingsLoader)(nil)

// SettingsLoader loads the daemon settings from the global config directory.
type SettingsLoader struct {
	getenv        func(string) string
	globalConfDir string // Path to global config directory (e.g., ~/.config/magicbin)
	stateDir      string // Path to the daemon state directory
	warnings      []string
}

// NewSettingsLoader creates a new SettingsLoader.
func NewSettingsLoader() *SettingsLoader {
	return &SettingsLoader{
		globalConfDir: defaultGlobalConfigDir(),
		stateDir:      defaultStateDir(),
		getenv:        os.Getenv,
	}
}

// NewSettingsLoaderWithDirs creates a SettingsLoader with custom directories and environment.
// This is useful for testing.
func NewSettingsLoaderWithDirs(globalConfDir, stateDir string, getenv func(string) string) *SettingsLoader {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	return &SettingsLoader{
		globalConfDir: globalConfDir,
		stateDir:      stateDir,
		getenv:        getenv,
	}
}

// defaultGlobalConfigDir returns the default global config directory.
func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return domain.GlobalConfigDir(configHome)
}

// defaultStateDir returns the default daemon state directory.
func defaultStateDir() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return domain.StateDir(stateHome)
}

// Path returns the settings file path, or "" when no global directory is available.
func (l *SettingsLoader) Path() string {
	if l.globalConfDir == "" {
		return ""
	}
	return filepath.Join(l.globalConfDir, domain.SettingsFileName)
}

// Warnings returns the unknown keys found by the last Load.
func (l *SettingsLoader) Warnings() []string {
	return l.warnings
}

// Load returns the merged settings (defaults <- file <- environment).
func (l *SettingsLoader) Load() (*domain.Settings, error) {
	settings := &domain.Settings{
		Listen:   domain.DefaultListen,
		LogLevel: "info",
		StateDir: l.stateDir,
	}
	l.warnings = nil

	if path := l.Path(); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // reading the user's own settings file
		switch {
		case err == nil:
			if err := l.apply(settings, data); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidConfig, path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	if v := l.getenv(EnvListen); v != "" {
		settings.Listen = v
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		settings.LogLevel = v
	}
	return settings, nil
}

func (l *SettingsLoader) apply(settings *domain.Settings, data []byte) error {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return err
	}

	for section, value := range raw {
		m, ok := value.(map[string]any)
		switch section {
		case "daemon":
			if !ok {
				return errors.New("[daemon] must be a table")
			}
			for k, v := range m {
				switch k {
				case "listen":
					if s, ok := v.(string); ok {
						settings.Listen = s
					}
				case "state_dir":
					if s, ok := v.(string); ok {
						settings.StateDir = s
					}
				default:
					l.warnings = append(l.warnings, fmt.Sprintf("unknown key in [daemon]: %s", k))
				}
			}
		case "log":
			if !ok {
				return errors.New("[log] must be a table")
			}
			for k, v := range m {
				switch k {
				case "level":
					if s, ok := v.(string); ok {
						settings.LogLevel = s
					}
				default:
					l.warnings = append(l.warnings, fmt.Sprintf("unknown key in [log]: %s", k))
				}
			}
		default:
			l.warnings = append(l.warnings, fmt.Sprintf("unknown section: %s", section))
		}
	}
	sort.Strings(l.warnings)
	return nil
}
