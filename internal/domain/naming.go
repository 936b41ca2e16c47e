package domain

import (
	"path/filepath"
	"strings"
)

// DefaultListen is the address the daemon listens on unless configured otherwise.
const DefaultListen = "127.0.0.1:6890"

// SettingsFileName is the daemon settings file name inside the global config directory.
const SettingsFileName = "config.toml"

// GlobalConfigDir returns the global magicbin directory under configHome.
// Typically ~/.config/magicbin.
func GlobalConfigDir(configHome string) string {
	return filepath.Join(configHome, "magicbin")
}

// StateDir returns the directory holding daemon state under stateHome.
// Typically ~/.local/state/magicbin.
func StateDir(stateHome string) string {
	return filepath.Join(stateHome, "magicbin")
}

// DaemonLogPath returns the path of the daemon log file.
func DaemonLogPath(stateDir string) string {
	return filepath.Join(stateDir, "logs", "mb.log")
}

// ShortenHome abbreviates a home-directory prefix of path with "~".
// /home/<user>/x, /Users/<user>/x and /root/x become ~<user>/x and ~root/x.
func ShortenHome(path string) string {
	for _, prefix := range []string{"/home/", "/Users/"} {
		if strings.HasPrefix(path, prefix) {
			return "~" + strings.TrimPrefix(path, prefix)
		}
	}
	if path == "/root" || strings.HasPrefix(path, "/root/") {
		return "~" + strings.TrimPrefix(path, "/")
	}
	return path
}

// RegistryPath returns the path of the file remembering synced namespaces.
func RegistryPath(stateDir string) string {
	return filepath.Join(stateDir, "namespaces.json")
}
