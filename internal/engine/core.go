// Package engine supervises tasks: the per-task state machine, the
// namespace controllers reconciling them against configuration, and the
// live feeds observing both.
//
// Tasks and controllers are only touched from the Core's loop goroutine.
// Code running elsewhere reaches them through Core.Call or Core.Post.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/executor"
	"github.com/runoshun/magicbin/internal/fanout"
)

// TaskEvent is emitted whenever a task is updated.
type TaskEvent struct {
	Namespace string
	TaskID    string
	Status    domain.Status // Status after the update
	// Transition is set when the update is a status change.
	Transition bool
}

// LogEvent carries the lines a task's buffer completed in one write.
type LogEvent struct {
	Namespace string
	TaskID    string
	Lines     [][]byte
}

// WatchFunc starts watching path and calls onChange, from any goroutine,
// whenever the file changes.
type WatchFunc func(path string, onChange func()) (io.Closer, error)

// Options configures a Core. Zero values fall back to working defaults,
// except Watch: without it namespaces are never watched.
// Fields are ordered to minimize memory padding.
type Options struct {
	Executors executor.Factory
	Registry  *executor.Registry
	Opener    domain.ConfigOpener
	Watch     WatchFunc
	Logger    *slog.Logger
	// AbortGrace overrides executor.AbortGrace when positive.
	AbortGrace time.Duration
}

// Core is the process-wide engine context: the controller registry, the
// three update signals, and the loop serializing every mutation.
// Fields are ordered to minimize memory padding.
type Core struct {
	loop             *Loop
	controllers      map[string]*Controller
	namespaceUpdated *fanout.Signal[string]
	taskUpdated      *fanout.Signal[TaskEvent]
	taskLogFlushed   *fanout.Signal[LogEvent]
	executors        executor.Factory
	registry         *executor.Registry
	opener           domain.ConfigOpener
	watch            WatchFunc
	logger           *slog.Logger
	abortGrace       time.Duration
}

// NewCore creates a Core. Run must be called for it to process anything.
func NewCore(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	executors := opts.Executors
	if executors == nil {
		executors = executor.New
	}
	registry := opts.Registry
	if registry == nil {
		registry = executor.NewRegistry()
	}

	return &Core{
		loop:             NewLoop(logger),
		controllers:      make(map[string]*Controller),
		namespaceUpdated: fanout.NewSignal[string](),
		taskUpdated:      fanout.NewSignal[TaskEvent](),
		taskLogFlushed:   fanout.NewSignal[LogEvent](),
		executors:        executors,
		registry:         registry,
		opener:           opts.Opener,
		watch:            opts.Watch,
		logger:           logger,
		abortGrace:       opts.AbortGrace,
	}
}

// Run processes engine events until ctx is done.
func (c *Core) Run(ctx context.Context) error {
	return c.loop.Run(ctx)
}

// Stopped is closed once Run has returned.
func (c *Core) Stopped() <-chan struct{} {
	return c.loop.Stopped()
}

// Post queues fn on the engine loop.
func (c *Core) Post(fn func()) {
	c.loop.Post(fn)
}

// Call runs fn on the engine loop and returns its error.
func (c *Core) Call(ctx context.Context, fn func() error) error {
	var err error
	if loopErr := c.loop.Call(ctx, func() { err = fn() }); loopErr != nil {
		return loopErr
	}
	return err
}

// NamespaceUpdated is emitted with the namespace id on every namespace change.
func (c *Core) NamespaceUpdated() *fanout.Signal[string] { return c.namespaceUpdated }

// TaskUpdated is emitted on every task change.
func (c *Core) TaskUpdated() *fanout.Signal[TaskEvent] { return c.taskUpdated }

// TaskLogFlushed is emitted whenever a task completes output lines.
func (c *Core) TaskLogFlushed() *fanout.Signal[LogEvent] { return c.taskLogFlushed }

// Registry returns the registry of live process groups.
func (c *Core) Registry() *executor.Registry { return c.registry }

// Upsert returns the controller of namespace, creating it on first use.
func (c *Core) Upsert(namespace string) *Controller {
	ctrl, ok := c.controllers[namespace]
	if !ok {
		ctrl = newController(c, namespace)
		c.controllers[namespace] = ctrl
		c.logger.Debug("namespace created", "namespace", namespace)
		c.namespaceUpdated.Emit(namespace)
	}
	return ctrl
}

// Controller returns the controller of namespace.
func (c *Core) Controller(namespace string) (*Controller, error) {
	ctrl, ok := c.controllers[namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNamespaceNotFound, namespace)
	}
	return ctrl, nil
}

// TryController returns the controller of namespace, or nil.
func (c *Core) TryController(namespace string) *Controller {
	return c.controllers[namespace]
}

// Namespaces returns the known namespace ids, sorted.
func (c *Core) Namespaces() []string {
	names := make([]string, 0, len(c.controllers))
	for name := range c.controllers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SyncConfig reconciles the namespace named by cfg against it.
func (c *Core) SyncConfig(cfg *domain.Config) *Controller {
	ctrl := c.Upsert(cfg.Namespace)
	ctrl.Sync(cfg)
	return ctrl
}

// Confirm resolves the pending confirmation of a task.
func (c *Core) Confirm(namespace, taskID string) error {
	ctrl, err := c.Controller(namespace)
	if err != nil {
		return err
	}
	task, err := ctrl.Task(taskID)
	if err != nil {
		return err
	}
	task.Confirm()
	return nil
}

// Shutdown stops every task and waits for their processes to exit until
// ctx is done, then kills whatever process group is left.
func (c *Core) Shutdown(ctx context.Context) {
	err := c.loop.Call(ctx, func() {
		for _, name := range c.Namespaces() {
			ctrl := c.controllers[name]
			ctrl.Watch(false)
			ctrl.StopAll()
		}
	})
	if err != nil {
		c.logger.Warn("stop tasks on shutdown", "error", err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for c.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			if n := c.registry.KillAll(); n > 0 {
				c.logger.Warn("killed leftover process groups", "count", n)
			}
			return
		case <-ticker.C:
		}
	}
}
