package domain

import (
	"regexp"
	"time"
)

// Config file names, in lookup order.
const (
	ConfigFileName     = "magicbin.toml"
	ConfigFileNameYAML = "magicbin.yaml"
	ConfigFileNameYML  = "magicbin.yml"
)

// ConfigFileNames returns every file name recognized as a namespace configuration.
func ConfigFileNames() []string {
	return []string{ConfigFileName, ConfigFileNameYAML, ConfigFileNameYML}
}

// Task defaults applied when a setting is absent from the configuration.
const (
	DefaultBackBufferRows  = 100
	DefaultRebootInterval  = time.Second
	DefaultRebootOnSuccess = true
	DefaultRebootOnFailure = true
	DefaultFence           = true
)

// Config is a validated namespace configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Tasks           map[string]TaskConfig // Declared tasks keyed by id
	Namespace       string                // Namespace the tasks belong to
	Description     *string               // Inline description; nil when unset, which differs from ""
	DescriptionFile string                // Description file, relative to the config directory (optional)
	Path            string                // Absolute path of the file this config was read from
	Warnings        []string              // Non-fatal problems found while loading
}

// ExecutorKind discriminates the executor variants a task can run under.
type ExecutorKind string

// Executor kinds.
const (
	ExecutorShell ExecutorKind = "shell"
)

// TaskConfig is the configuration of a single task.
// Exactly one variant pointer matching Kind is set.
type TaskConfig struct {
	Shell *ShellTask
	Kind  ExecutorKind
	TaskSettings
}

// ShellTask runs a command line through the system shell.
type ShellTask struct {
	Shell string // Command line
	Cwd   string // Absolute working directory
	Fence bool   // Decorate output with a prompt banner and an exit banner
}

// TaskSettings holds the settings shared by every executor kind.
type TaskSettings struct {
	RebootInterval   *time.Duration // Delay before an automatic reboot; nil disables automatic reboots
	ConfirmationMode ConfirmationMode
	Name             string   // Display name (defaults to the task id)
	DependsOn        []string // Ids of tasks that must be running first
	BackBufferRows   int      // Number of output lines retained
	RebootOnSuccess  bool
	RebootOnFailure  bool
}

// DefaultTaskSettings returns the settings used when a task declares none.
func DefaultTaskSettings() TaskSettings {
	interval := DefaultRebootInterval
	return TaskSettings{
		RebootInterval:   &interval,
		ConfirmationMode: ConfirmationMode{Type: ConfirmationNone},
		BackBufferRows:   DefaultBackBufferRows,
		RebootOnSuccess:  DefaultRebootOnSuccess,
		RebootOnFailure:  DefaultRebootOnFailure,
	}
}

// NewShellTaskConfig returns a shell task configuration with default settings.
func NewShellTaskConfig(shell, cwd string) TaskConfig {
	return TaskConfig{
		Kind:         ExecutorShell,
		Shell:        &ShellTask{Shell: shell, Cwd: cwd, Fence: DefaultFence},
		TaskSettings: DefaultTaskSettings(),
	}
}

// ConfirmationType selects how a task confirms it is ready.
type ConfirmationType string

// Confirmation types.
const (
	ConfirmationNone   ConfirmationType = "none"   // Running as soon as the process booted
	ConfirmationModern ConfirmationType = "modern" // Running once the process reports in with its token
	ConfirmationGrep   ConfirmationType = "grep"   // Running once an output line matches Pattern
)

// ConfirmationMode gates the transition from starting to running.
type ConfirmationMode struct {
	Pattern *regexp.Regexp // Only set for ConfirmationGrep
	Type    ConfirmationType
}

// String returns the configuration form of the mode.
func (m ConfirmationMode) String() string {
	if m.Type == ConfirmationGrep && m.Pattern != nil {
		return "grep:" + m.Pattern.String()
	}
	if m.Type == "" {
		return string(ConfirmationNone)
	}
	return string(m.Type)
}
