package tui

import "github.com/runoshun/magicbin/internal/domain"

// Msg is the sealed interface for all TUI messages.
//
// go-sumtype:decl Msg
type Msg interface {
	sealed()
}

// MsgTasksUpdated carries a batch from the task feed.
type MsgTasksUpdated struct {
	Updates []domain.TaskUpdate
}

func (MsgTasksUpdated) sealed() {}

// MsgFeedClosed is sent when the task feed ends.
type MsgFeedClosed struct {
	Err error
}

func (MsgFeedClosed) sealed() {}

// MsgOutputLoaded is sent with the recent output of a task.
type MsgOutputLoaded struct {
	TaskID string
	Output []byte
}

func (MsgOutputLoaded) sealed() {}

// MsgActionDone is sent once an action was applied.
type MsgActionDone struct {
	Err error
}

func (MsgActionDone) sealed() {}

// MsgTick refreshes the output pane.
type MsgTick struct{}

func (MsgTick) sealed() {}
