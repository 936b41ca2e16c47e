// Package usecase contains the application use cases.
package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/magicbin/internal/domain"
)

// ErrNotSynced is returned when the daemon does not know the namespace of
// the current configuration yet.
var ErrNotSynced = fmt.Errorf("%w: run `mb sync` first", domain.ErrNamespaceNotFound)

// findNamespace locates the configuration governing dir and returns its namespace.
func findNamespace(finder domain.ConfigFinder, dir string) (*domain.Config, error) {
	cfg, err := finder.Find(dir)
	if err != nil {
		return nil, fmt.Errorf("find config: %w", err)
	}
	return cfg, nil
}

// getTask returns the task, distinguishing an unsynced namespace from an
// unknown task.
func getTask(ctx context.Context, daemon domain.Daemon, namespace, taskID string) (*domain.TaskInfo, error) {
	task, err := daemon.Task(ctx, namespace, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task != nil {
		return task, nil
	}

	ns, err := daemon.Namespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("get namespace: %w", err)
	}
	if ns == nil {
		return nil, ErrNotSynced
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
}

// errDone ends a watch once the awaited state is reached.
var errDone = fmt.Errorf("done")
