package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/magicbin/internal/domain"
)

// ListTasksInput contains the parameters for listing tasks.
type ListTasksInput struct {
	Dir string // Directory the configuration is searched from
}

// ListTasksOutput contains the result of listing tasks.
type ListTasksOutput struct {
	Namespace *domain.NamespaceInfo
	Tasks     []domain.TaskInfo
}

// ListTasks is the use case for listing the tasks of the current namespace.
type ListTasks struct {
	finder domain.ConfigFinder
	daemon domain.Daemon
}

// NewListTasks creates a new ListTasks use case.
func NewListTasks(finder domain.ConfigFinder, daemon domain.Daemon) *ListTasks {
	return &ListTasks{finder: finder, daemon: daemon}
}

// Execute lists the tasks known to the daemon for the current namespace.
func (uc *ListTasks) Execute(ctx context.Context, in ListTasksInput) (*ListTasksOutput, error) {
	cfg, err := findNamespace(uc.finder, in.Dir)
	if err != nil {
		return nil, err
	}

	ns, err := uc.daemon.Namespace(ctx, cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("get namespace: %w", err)
	}
	if ns == nil {
		return nil, ErrNotSynced
	}

	tasks, err := uc.daemon.Tasks(ctx, cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return &ListTasksOutput{Namespace: ns, Tasks: tasks}, nil
}
