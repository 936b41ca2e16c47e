package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/magicbin/internal/domain"
)

// StartTaskInput contains the parameters for starting a task.
type StartTaskInput struct {
	Dir    string // Directory the configuration is searched from
	TaskID string // Task to start
	Force  bool   // Restart the task even if it is already active
}

// StartTaskOutput contains the result of starting a task.
type StartTaskOutput struct {
	Task    *domain.TaskInfo // Task state once the command settled
	Started bool             // False when the task was already active
}

// StartTask is the use case for starting a task and waiting until it runs.
type StartTask struct {
	finder domain.ConfigFinder
	daemon domain.Daemon
}

// NewStartTask creates a new StartTask use case.
func NewStartTask(finder domain.ConfigFinder, daemon domain.Daemon) *StartTask {
	return &StartTask{finder: finder, daemon: daemon}
}

// Execute reboots the task unless it is already active and Force is
// unset, then waits for it to be running.
func (uc *StartTask) Execute(ctx context.Context, in StartTaskInput) (*StartTaskOutput, error) {
	cfg, err := findNamespace(uc.finder, in.Dir)
	if err != nil {
		return nil, err
	}

	task, err := getTask(ctx, uc.daemon, cfg.Namespace, in.TaskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsCompleted() && !in.Force {
		return &StartTaskOutput{Task: task, Started: false}, nil
	}

	final, err := awaitAfter(ctx, uc.daemon, cfg.Namespace, in.TaskID, func() error {
		return uc.daemon.ApplyTaskAction(ctx, cfg.Namespace, in.TaskID, domain.TaskActionReboot)
	}, func(status domain.Status) (bool, error) {
		switch status {
		case domain.StatusRunning:
			return true, nil
		case domain.StatusSuccess, domain.StatusFailed:
			return false, fmt.Errorf("task %s %s before running", in.TaskID, status.Display())
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	return &StartTaskOutput{Task: final, Started: true}, nil
}

// awaitAfter watches a task, runs action once the watch is established,
// and returns the first later state accepted by done.
func awaitAfter(
	ctx context.Context,
	daemon domain.Daemon,
	namespace, taskID string,
	action func() error,
	done func(domain.Status) (bool, error),
) (*domain.TaskInfo, error) {
	var final *domain.TaskInfo
	acted := false

	err := daemon.WatchTasks(ctx, namespace, taskID, func(updates []domain.TaskUpdate) error {
		if !acted {
			acted = true
			return action()
		}
		for _, u := range updates {
			if u.Entity == nil {
				return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
			}
			ok, err := done(u.Entity.Status)
			if err != nil {
				return err
			}
			if ok {
				final = u.Entity
				return errDone
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, errDone):
		return final, nil
	case err != nil:
		return nil, err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("wait for task %s: %w", taskID, ctx.Err())
	default:
		return nil, fmt.Errorf("wait for task %s: %w", taskID, domain.ErrDaemonUnavailable)
	}
}
