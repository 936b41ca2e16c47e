package domain

import "errors"

// Domain errors.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrNamespaceNotFound = errors.New("namespace not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrConfigNotFound    = errors.New("no magicbin configuration file found")
	ErrConfigExists      = errors.New("config file already exists")
	ErrInvalidToken      = errors.New("invalid task token")
	ErrUnknownAction     = errors.New("unknown action")
	ErrUnknownExecutor   = errors.New("no executor matches the task configuration")
	ErrDaemonUnavailable = errors.New("magicbin daemon is not running")
)
