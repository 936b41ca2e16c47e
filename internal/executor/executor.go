// Package executor owns the OS child processes backing tasks.
package executor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/runoshun/magicbin/internal/domain"
)

// AbortGrace is how long Abort waits after SIGTERM before sending SIGKILL.
const AbortGrace = 5 * time.Second

// Executor is the live handle to one run of a task's process.
type Executor interface {
	// Accept reports whether this run can keep going under cfg without a relaunch.
	Accept(cfg domain.TaskConfig) bool
	// Booted is closed once the process has been spawned.
	// It is never closed if spawning failed.
	Booted() <-chan struct{}
	// Done is closed exactly once when the run is over, whatever the cause.
	Done() <-chan struct{}
	// ExitCode returns the exit code of the run. Only valid after Done is closed.
	ExitCode() int
	// Running reports whether the run is still in progress.
	Running() bool
	// Abort stops the run and returns a channel closed once the process has exited.
	// Calling it again returns the same channel.
	Abort() <-chan struct{}
}

// Options carries what an executor needs besides the task configuration.
// Fields are ordered to minimize memory padding.
type Options struct {
	// Output receives merged stdout/stderr chunks. Calls never overlap.
	Output   func(chunk []byte)
	Registry *Registry
	Logger   *slog.Logger
	Token    string
	// Grace overrides AbortGrace when positive.
	Grace time.Duration
}

// Factory creates an executor for a task configuration.
type Factory func(cfg domain.TaskConfig, opts Options) (Executor, error)

// New creates and starts the executor variant selected by cfg.Kind.
func New(cfg domain.TaskConfig, opts Options) (Executor, error) {
	switch cfg.Kind {
	case domain.ExecutorShell:
		if cfg.Shell == nil {
			return nil, fmt.Errorf("%w: shell task without a command", domain.ErrInvalidConfig)
		}
		return NewShell(*cfg.Shell, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownExecutor, cfg.Kind)
	}
}

// Ensure New satisfies Factory.
var _ Factory = New
