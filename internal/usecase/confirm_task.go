package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/magicbin/internal/domain"
)

// ErrNoToken is returned when confirm runs outside of a task.
var ErrNoToken = errors.New(domain.TokenEnv + " is not set; confirm must run inside a magicbin task")

// ConfirmTaskInput contains the parameters for confirming a task.
type ConfirmTaskInput struct {
	Token string // Task token, usually read from the environment
}

// ConfirmTaskOutput identifies the confirmed task.
type ConfirmTaskOutput struct {
	Namespace string
	TaskID    string
}

// ConfirmTask is the use case for a task process reporting that it is ready.
type ConfirmTask struct {
	daemon domain.Daemon
}

// NewConfirmTask creates a new ConfirmTask use case.
func NewConfirmTask(daemon domain.Daemon) *ConfirmTask {
	return &ConfirmTask{daemon: daemon}
}

// Execute confirms the task identified by the token.
func (uc *ConfirmTask) Execute(ctx context.Context, in ConfirmTaskInput) (*ConfirmTaskOutput, error) {
	if in.Token == "" {
		return nil, ErrNoToken
	}
	namespace, taskID, err := domain.ParseToken(in.Token)
	if err != nil {
		return nil, err
	}
	if err := uc.daemon.Confirm(ctx, in.Token); err != nil {
		return nil, fmt.Errorf("confirm %s/%s: %w", namespace, taskID, err)
	}
	return &ConfirmTaskOutput{Namespace: namespace, TaskID: taskID}, nil
}
