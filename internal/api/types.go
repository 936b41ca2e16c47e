// Package api exposes the daemon over HTTP: JSON queries and mutations
// under /api and live update feeds over websockets.
package api

import (
	"github.com/runoshun/magicbin/internal/domain"
)

// SyncRequest asks the daemon to open a configuration file and reconcile
// its namespace.
type SyncRequest struct {
	Path string `json:"path" binding:"required"`
}

// SyncResponse reports the synced namespace.
type SyncResponse = domain.SyncResult

// NamespaceActionRequest carries a namespace action.
type NamespaceActionRequest struct {
	Action domain.NamespaceAction `json:"action" binding:"required"`
}

// TaskActionRequest carries a task action.
type TaskActionRequest struct {
	Action domain.TaskAction `json:"action" binding:"required"`
}

// ConfirmRequest identifies the task to confirm, either by token or by
// namespace and task id.
type ConfirmRequest struct {
	Token     string `json:"token,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

// BufferFrame is one websocket message of a buffer feed. Buffer is
// base64-encoded on the wire.
type BufferFrame struct {
	Buffer []byte `json:"buffer"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
