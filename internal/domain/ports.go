package domain

import "context"

// ConfigOpener reads and validates a namespace configuration file.
type ConfigOpener interface {
	// Open loads the configuration stored at path.
	Open(path string) (*Config, error)
}

// ConfigFinder locates the namespace configuration governing a directory.
type ConfigFinder interface {
	// Find walks up from dir and loads the first configuration file found.
	// Returns ErrConfigNotFound if none exists.
	Find(dir string) (*Config, error)
}

// Settings holds the daemon-level settings.
type Settings struct {
	Listen   string // Address the daemon listens on
	LogLevel string // Log level: debug, info, warn, error
	StateDir string // Directory holding daemon logs
}

// SettingsLoader loads daemon-level settings.
type SettingsLoader interface {
	// Load returns the merged settings (defaults <- file <- environment).
	Load() (*Settings, error)
}

// Daemon is the client-side view of a running daemon.
type Daemon interface {
	// Sync asks the daemon to open the configuration at path and reconcile its namespace.
	Sync(ctx context.Context, path string) (*SyncResult, error)
	// Namespace returns a namespace, or nil if the daemon does not know it.
	Namespace(ctx context.Context, namespace string) (*NamespaceInfo, error)
	// Tasks returns the tasks of a namespace.
	Tasks(ctx context.Context, namespace string) ([]TaskInfo, error)
	// Task returns a task, or nil if it does not exist.
	Task(ctx context.Context, namespace, taskID string) (*TaskInfo, error)
	// Tail returns the last lines of a task's output.
	Tail(ctx context.Context, namespace, taskID string, lines int) ([]byte, error)
	// ApplyNamespaceAction runs an action on a namespace.
	ApplyNamespaceAction(ctx context.Context, namespace string, action NamespaceAction) error
	// ApplyTaskAction runs an action on a task.
	ApplyTaskAction(ctx context.Context, namespace, taskID string, action TaskAction) error
	// Confirm resolves the pending confirmation of the task identified by token.
	Confirm(ctx context.Context, token string) error
	// WatchTasks calls fn with batches of task updates until ctx is done or fn fails.
	// An empty taskID watches every task of the namespace.
	WatchTasks(ctx context.Context, namespace, taskID string, fn func([]TaskUpdate) error) error
	// WatchBuffer calls fn with chunks of task output until ctx is done or fn fails.
	WatchBuffer(ctx context.Context, namespace, taskID string, fn func([]byte) error) error
}

// ConfigInitializer scaffolds namespace configuration files.
type ConfigInitializer interface {
	// Init writes a template configuration in dir and returns its path.
	// An empty namespace defaults to the directory name.
	// Returns ErrConfigExists if dir already has one.
	Init(dir, namespace string) (string, error)
}

// Registration records the configuration file a namespace was synced from.
type Registration struct {
	Namespace  string `json:"namespace"`
	ConfigPath string `json:"configPath"`
}

// NamespaceRegistry remembers which configuration files were synced into
// the daemon so a restarted daemon can load them again.
type NamespaceRegistry interface {
	// Remember records that namespace was synced from configPath.
	Remember(namespace, configPath string) error
	// Forget drops the record of namespace. Forgetting an unknown namespace is a no-op.
	Forget(namespace string) error
	// Registrations returns every record, sorted by namespace.
	Registrations() ([]Registration, error)
}
