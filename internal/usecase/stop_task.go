package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/magicbin/internal/domain"
)

// StopTaskInput contains the parameters for stopping tasks.
type StopTaskInput struct {
	Dir    string // Directory the configuration is searched from
	TaskID string // Task to stop (ignored when All is set)
	All    bool   // Stop every task of the namespace
}

// StopTaskOutput contains the result of stopping tasks.
type StopTaskOutput struct {
	Namespace string
	Stopped   []string // Tasks that were active and are now stopped
}

// StopTask is the use case for stopping tasks and waiting until they exit.
type StopTask struct {
	finder domain.ConfigFinder
	daemon domain.Daemon
}

// NewStopTask creates a new StopTask use case.
func NewStopTask(finder domain.ConfigFinder, daemon domain.Daemon) *StopTask {
	return &StopTask{finder: finder, daemon: daemon}
}

// settled reports whether a task has nothing left to stop.
func settled(s domain.Status) bool {
	switch s {
	case domain.StatusCancelled, domain.StatusSuccess, domain.StatusFailed:
		return true
	}
	return false
}

// Execute stops the task (or every task) and waits for the processes to exit.
func (uc *StopTask) Execute(ctx context.Context, in StopTaskInput) (*StopTaskOutput, error) {
	cfg, err := findNamespace(uc.finder, in.Dir)
	if err != nil {
		return nil, err
	}
	out := &StopTaskOutput{Namespace: cfg.Namespace, Stopped: []string{}}

	if in.All {
		stopped, err := uc.stopAll(ctx, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		out.Stopped = stopped
		return out, nil
	}

	task, err := getTask(ctx, uc.daemon, cfg.Namespace, in.TaskID)
	if err != nil {
		return nil, err
	}
	if settled(task.Status) {
		return out, nil
	}

	_, err = awaitAfter(ctx, uc.daemon, cfg.Namespace, in.TaskID, func() error {
		return uc.daemon.ApplyTaskAction(ctx, cfg.Namespace, in.TaskID, domain.TaskActionStop)
	}, func(status domain.Status) (bool, error) {
		return settled(status), nil
	})
	if err != nil {
		return nil, err
	}
	out.Stopped = append(out.Stopped, in.TaskID)
	return out, nil
}

func (uc *StopTask) stopAll(ctx context.Context, namespace string) ([]string, error) {
	ns, err := uc.daemon.Namespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("get namespace: %w", err)
	}
	if ns == nil {
		return nil, ErrNotSynced
	}

	pending := map[string]bool{}
	var stopped []string
	acted := false

	err = uc.daemon.WatchTasks(ctx, namespace, "", func(updates []domain.TaskUpdate) error {
		for _, u := range updates {
			switch {
			case u.Entity == nil:
				delete(pending, u.Pointer.ID)
			case !settled(u.Entity.Status):
				if !acted {
					stopped = append(stopped, u.Pointer.ID)
				}
				pending[u.Pointer.ID] = true
			default:
				delete(pending, u.Pointer.ID)
			}
		}
		if !acted {
			acted = true
			if len(pending) == 0 {
				return errDone
			}
			return uc.daemon.ApplyNamespaceAction(ctx, namespace, domain.NamespaceActionStop)
		}
		if len(pending) == 0 {
			return errDone
		}
		return nil
	})

	switch {
	case errors.Is(err, errDone):
		if stopped == nil {
			stopped = []string{}
		}
		return stopped, nil
	case err != nil:
		return nil, err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("wait for namespace %s: %w", namespace, ctx.Err())
	default:
		return nil, fmt.Errorf("wait for namespace %s: %w", namespace, domain.ErrDaemonUnavailable)
	}
}
