// Package domain contains core business entities and interfaces.
package domain

// TaskInfo is the externally visible state of a task.
type TaskInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// NamespaceInfo is the externally visible state of a namespace.
// Fields are ordered to minimize memory padding.
type NamespaceInfo struct {
	Description *string `json:"description"` // nil when no description is configured
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ConfigPath  string  `json:"configPath"`
	TaskCount   int     `json:"taskCount"`
	Watched     bool    `json:"watched"`
}

// TaskAction is a command applied to a single task.
type TaskAction string

// Task actions.
const (
	TaskActionReboot TaskAction = "REBOOT"
	TaskActionStop   TaskAction = "STOP"
	TaskActionClear  TaskAction = "CLEAR"
)

// NamespaceAction is a command applied to a whole namespace.
type NamespaceAction string

// Namespace actions.
const (
	NamespaceActionWatch   NamespaceAction = "WATCH"
	NamespaceActionUnwatch NamespaceAction = "UNWATCH"
	NamespaceActionReboot  NamespaceAction = "REBOOT"
	NamespaceActionStop    NamespaceAction = "STOP"
)
