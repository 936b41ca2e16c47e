package engine

import (
	"log/slog"
	"slices"
	"time"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/executor"
	"github.com/runoshun/magicbin/internal/logbuffer"
)

// StopOptions selects what happens once a stop settles.
type StopOptions struct {
	// Config relaunches the task under this configuration. Takes precedence over Reboot.
	Config *domain.TaskConfig
	// Reboot relaunches the task under its current configuration.
	Reboot bool
}

// Task is one supervised unit of work. It owns at most one live executor
// at a time and the buffer holding its output.
//
// A Task refers to its siblings by namespace id through the Core, never
// through a pointer to its Controller.
// Fields are ordered to minimize memory padding.
type Task struct {
	core        *Core
	buffer      *logbuffer.Buffer
	current     executor.Executor
	config      *domain.TaskConfig // executor configuration used by Reboot
	onStop      *domain.TaskConfig // relaunch recorded by Stop
	rebootTimer *time.Timer
	confirm     func()
	cancelGrep  func()
	logger      *slog.Logger
	namespace   string
	id          string
	name        string
	status      domain.Status
	settings    domain.TaskSettings
	isBooted    bool
	isConfirmed bool
	disposed    bool // removed from its controller; its late updates reach nobody
}

func newTask(core *Core, namespace, id string) *Task {
	t := &Task{
		core:      core,
		namespace: namespace,
		id:        id,
		name:      id,
		status:    domain.StatusCancelled,
		settings:  domain.DefaultTaskSettings(),
		buffer:    logbuffer.New(domain.DefaultBackBufferRows),
		logger:    core.logger.With("namespace", namespace, "task", id),
	}
	t.buffer.OnFlush(func(lines [][]byte) {
		core.taskLogFlushed.Emit(LogEvent{Namespace: namespace, TaskID: id, Lines: lines})
	})
	return t
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// Status returns the current status.
func (t *Task) Status() domain.Status { return t.status }

// Info returns the externally visible state of the task.
func (t *Task) Info() domain.TaskInfo {
	return domain.TaskInfo{ID: t.id, Name: t.name, Status: t.status}
}

// DependsOn reports whether the task depends on the task id.
func (t *Task) DependsOn(id string) bool {
	return slices.Contains(t.settings.DependsOn, id)
}

// Sync applies a new configuration. The process is relaunched, once any
// previous run has fully exited, unless the current run accepts cfg and is
// still running.
func (t *Task) Sync(cfg domain.TaskConfig) {
	t.logger.Debug("syncing task configuration")

	t.name = cfg.Name
	if t.name == "" {
		t.name = t.id
	}
	t.settings = cfg.TaskSettings
	t.buffer.SetRows(cfg.BackBufferRows)
	t.notify(false)

	t.cancelRebootTimer()

	if t.current != nil && t.current.Accept(cfg) && t.current.Running() {
		t.config = &cfg
		return
	}
	if t.current != nil && !t.current.Accept(cfg) {
		t.logger.Debug("executor rejects the new configuration; stopping it")
	}
	t.Stop(StopOptions{Config: &cfg})
}

// Reboot (re)starts the task. An active run is stopped first and the
// relaunch happens once it has exited.
func (t *Task) Reboot() {
	if !t.status.IsCompleted() {
		t.Stop(StopOptions{Reboot: true})
		return
	}

	if t.status == domain.StatusStopping {
		if t.onStop == nil {
			t.onStop = t.config
		}
		return
	}

	if t.config == nil {
		return
	}

	t.cancelRebootTimer()

	if unmet := t.unmetDependencies(); len(unmet) > 0 {
		t.logger.Debug("dependencies unmet", "dependencies", unmet)
		t.setStatus(domain.StatusPending)
		return
	}

	ex, err := t.core.executors(*t.config, executor.Options{
		Token:    domain.CreateToken(t.namespace, t.id),
		Output:   t.output,
		Registry: t.core.registry,
		Logger:   t.logger,
		Grace:    t.core.abortGrace,
	})
	if err != nil {
		t.logger.Error("reboot failed", "error", err)
		t.setStatus(domain.StatusCancelled)
		return
	}

	t.current = ex
	t.isBooted, t.isConfirmed = false, false
	t.setStatus(domain.StatusStarting)
	t.waitForConfirmation(func() {
		if t.current == ex {
			t.isConfirmed = true
			t.promote()
		}
	})
	go t.track(ex)
}

// output runs on executor goroutines.
func (t *Task) output(chunk []byte) {
	t.core.loop.Post(func() {
		_, _ = t.buffer.Write(chunk)
	})
}

// track forwards the boot and exit of ex to the loop, boot first.
// A run that booted and exited before track looks at it still reports its boot.
func (t *Task) track(ex executor.Executor) {
	select {
	case <-ex.Booted():
		t.core.loop.Post(func() { t.booted(ex) })
		<-ex.Done()
	case <-ex.Done():
		select {
		case <-ex.Booted():
			t.core.loop.Post(func() { t.booted(ex) })
		default:
		}
	}
	t.core.loop.Post(func() { t.exited(ex) })
}

func (t *Task) booted(ex executor.Executor) {
	if t.current != ex {
		return
	}
	t.isBooted = true
	t.promote()
}

// promote moves a starting task to running once its current run has both
// booted and been confirmed.
func (t *Task) promote() {
	if t.isBooted && t.isConfirmed && t.status == domain.StatusStarting {
		t.setStatus(domain.StatusRunning)
	}
}

func (t *Task) exited(ex executor.Executor) {
	if t.current != ex {
		return
	}
	t.resetConfirmation()
	if ex.ExitCode() == 0 {
		t.setStatus(domain.StatusSuccess)
	} else {
		t.setStatus(domain.StatusFailed)
	}
}

// waitForConfirmation calls resolve once the configured confirmation mode
// is satisfied. Output matched before the process reports its boot counts.
func (t *Task) waitForConfirmation(resolve func()) {
	t.resetConfirmation()

	mode := t.settings.ConfirmationMode
	if mode.Type == domain.ConfirmationNone || mode.Type == "" {
		resolve()
		return
	}

	t.confirm = func() {
		t.resetConfirmation()
		resolve()
	}

	if mode.Type == domain.ConfirmationGrep && mode.Pattern != nil {
		pattern := mode.Pattern
		var remove func()
		remove = t.buffer.OnFlush(func(lines [][]byte) {
			for _, line := range lines {
				if pattern.Match(line) {
					remove()
					if t.confirm != nil {
						t.confirm()
					}
					return
				}
			}
		})
		t.cancelGrep = remove
	}
}

func (t *Task) resetConfirmation() {
	if t.cancelGrep != nil {
		t.cancelGrep()
		t.cancelGrep = nil
	}
	t.confirm = nil
}

// Confirm resolves a pending confirmation wait. It is a no-op when none is pending.
func (t *Task) Confirm() {
	if t.confirm != nil {
		t.confirm()
	}
}

// Stop stops the task and records what to do once the stop settles.
// While a stop is already in flight only the recorded action changes.
func (t *Task) Stop(opts StopOptions) {
	switch {
	case opts.Config != nil:
		t.onStop = opts.Config
	case opts.Reboot:
		t.onStop = t.config
	default:
		t.onStop = nil
	}

	if t.status == domain.StatusStopping {
		return
	}

	if t.status.IsCompleted() {
		t.cancelRebootTimer()
		if t.status == domain.StatusPending {
			t.setStatus(domain.StatusCancelled)
		}
		t.applyOnStop()
		return
	}

	ex := t.current
	if ex == nil {
		t.logger.Error("active task without an executor", "status", t.status)
		return
	}

	t.current = nil
	t.resetConfirmation()
	t.setStatus(domain.StatusStopping)

	aborted := ex.Abort()
	go func() {
		<-aborted
		t.core.loop.Post(func() {
			t.setStatus(domain.StatusCancelled)
			if !t.disposed {
				t.applyOnStop()
			}
		})
	}()
}

func (t *Task) applyOnStop() {
	if t.onStop == nil {
		return
	}
	t.config = t.onStop
	t.onStop = nil
	t.Reboot()
}

// Clear discards the retained output lines.
func (t *Task) Clear() {
	t.buffer.Clear()
}

// Tail returns the last n retained output lines, oldest first.
func (t *Task) Tail(n int) [][]byte {
	return t.buffer.Read(n)
}

func (t *Task) setStatus(status domain.Status) {
	if !t.status.CanTransitionTo(status) {
		t.logger.Error("invalid status transition", "from", t.status, "to", status)
	}
	t.logger.Debug("status changed", "from", t.status, "to", status)
	t.status = status
	if t.disposed {
		return
	}
	t.notify(true)

	if status == domain.StatusRunning {
		for _, dep := range t.dependents() {
			dep.Reboot()
		}
	}

	if status.IsCompleted() {
		for _, dep := range t.dependents() {
			dep.Stop(StopOptions{})
		}
	}

	if (status == domain.StatusSuccess && t.settings.RebootOnSuccess) ||
		(status == domain.StatusFailed && t.settings.RebootOnFailure) {
		t.scheduleForReboot()
	}
}

func (t *Task) notify(transition bool) {
	t.core.taskUpdated.Emit(TaskEvent{
		Namespace:  t.namespace,
		TaskID:     t.id,
		Status:     t.status,
		Transition: transition,
	})
}

// scheduleForReboot arms the reboot timer unless one is already armed or
// automatic reboots are disabled.
func (t *Task) scheduleForReboot() {
	if t.rebootTimer != nil || t.settings.RebootInterval == nil {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(*t.settings.RebootInterval, func() {
		t.core.loop.Post(func() {
			if t.rebootTimer != timer {
				return
			}
			t.rebootTimer = nil
			t.Reboot()
		})
	})
	t.rebootTimer = timer
	t.logger.Debug("reboot scheduled", "interval", *t.settings.RebootInterval)
}

func (t *Task) cancelRebootTimer() {
	if t.rebootTimer != nil {
		t.rebootTimer.Stop()
		t.rebootTimer = nil
	}
}

func (t *Task) dependents() []*Task {
	ctrl := t.core.TryController(t.namespace)
	if ctrl == nil {
		return nil
	}
	var out []*Task
	for _, task := range ctrl.Tasks() {
		if task.DependsOn(t.id) {
			out = append(out, task)
		}
	}
	return out
}

func (t *Task) unmetDependencies() []string {
	ctrl := t.core.TryController(t.namespace)
	var unmet []string
	for _, id := range t.settings.DependsOn {
		var dep *Task
		if ctrl != nil {
			dep = ctrl.TryTask(id)
		}
		if dep == nil || dep.status != domain.StatusRunning {
			unmet = append(unmet, id)
		}
	}
	return unmet
}

// dispose stops the task for good and detaches its buffer listeners.
// The stop cascades to dependents once; anything the task does afterwards,
// such as settling its abort, is invisible to the namespace, which may
// already own a new task under the same id.
func (t *Task) dispose() {
	t.Stop(StopOptions{})
	t.disposed = true
	t.onStop = nil
	t.cancelRebootTimer()
	t.buffer.End()
}
