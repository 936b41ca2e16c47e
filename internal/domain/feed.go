package domain

// Pointer identifies the entity of an update.
type Pointer struct {
	ID string `json:"id"`
}

// NamespaceUpdate is one element of a namespace feed batch.
// Entity is nil when the namespace no longer exists.
type NamespaceUpdate struct {
	Entity  *NamespaceInfo `json:"entity"`
	Pointer Pointer        `json:"pointer"`
}

// TaskUpdate is one element of a task feed batch.
// Entity is nil when the task no longer exists.
type TaskUpdate struct {
	Entity  *TaskInfo `json:"entity"`
	Pointer Pointer   `json:"pointer"`
}

// SyncResult reports a namespace after a configuration sync.
type SyncResult struct {
	Namespace NamespaceInfo `json:"namespace"`
	Warnings  []string      `json:"warnings"`
}
