package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/runoshun/magicbin/internal/domain"
)

// SnapshotLines is the number of lines a buffer feed starts with.
const SnapshotLines = 100

// TailTaskInput contains the parameters for printing task output.
type TailTaskInput struct {
	Out    io.Writer // Destination of the output
	Dir    string    // Directory the configuration is searched from
	TaskID string
	Lines  int  // Number of trailing lines to print first
	Follow bool // Keep printing output as it is produced
}

// TailTask is the use case for printing the output of a task.
type TailTask struct {
	finder domain.ConfigFinder
	daemon domain.Daemon
}

// NewTailTask creates a new TailTask use case.
func NewTailTask(finder domain.ConfigFinder, daemon domain.Daemon) *TailTask {
	return &TailTask{finder: finder, daemon: daemon}
}

// Execute prints the last lines of the task, then follows it until ctx is
// done when Follow is set.
func (uc *TailTask) Execute(ctx context.Context, in TailTaskInput) error {
	cfg, err := findNamespace(uc.finder, in.Dir)
	if err != nil {
		return err
	}
	if _, err := getTask(ctx, uc.daemon, cfg.Namespace, in.TaskID); err != nil {
		return err
	}

	if !in.Follow || in.Lines > SnapshotLines {
		out, err := uc.daemon.Tail(ctx, cfg.Namespace, in.TaskID, in.Lines)
		if err != nil {
			return fmt.Errorf("tail task: %w", err)
		}
		if _, err := in.Out.Write(out); err != nil {
			return err
		}
		if !in.Follow {
			return nil
		}
	}

	first := true
	return uc.daemon.WatchBuffer(ctx, cfg.Namespace, in.TaskID, func(chunk []byte) error {
		if first {
			first = false
			if in.Lines > SnapshotLines {
				return nil
			}
			chunk = lastLines(chunk, in.Lines)
		}
		_, err := in.Out.Write(chunk)
		return err
	})
}

// lastLines returns the last n newline-terminated lines of chunk.
func lastLines(chunk []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	lines := bytes.SplitAfter(chunk, []byte("\n"))
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return bytes.Join(lines, nil)
}
