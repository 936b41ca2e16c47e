package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runoshun/magicbin/internal/domain"
)

const abortNotice = "The child process didn't exit cleanly after the timeout; sending a SIGKILL to abort it forcefully.\n"

// pipeDrainDelay bounds how long a finished run waits for descendants
// still holding its output pipe.
const pipeDrainDelay = time.Second

// Shell runs a command line through sh in its own process group.
// Fields are ordered to minimize memory padding.
type Shell struct {
	cmd      *exec.Cmd
	output   func([]byte)
	registry *Registry
	logger   *slog.Logger
	booted   chan struct{}
	done     chan struct{}
	aborted  chan struct{}
	task     domain.ShellTask
	regID    string
	grace    time.Duration
	outMu    sync.Mutex
	abort    sync.Once
	exitCode atomic.Int32
	running  atomic.Bool
}

// Ensure Shell implements Executor.
var _ Executor = (*Shell)(nil)

// NewShell spawns task.Shell and returns its handle.
// Spawn failures are reported through the output stream with exit code 1.
func NewShell(task domain.ShellTask, opts Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = AbortGrace
	}

	s := &Shell{
		task:     task,
		output:   opts.Output,
		registry: opts.Registry,
		logger:   logger,
		grace:    grace,
		booted:   make(chan struct{}),
		done:     make(chan struct{}),
		aborted:  make(chan struct{}),
	}
	s.running.Store(true)
	s.start(opts.Token)
	return s
}

func (s *Shell) start(token string) {
	if s.task.Fence {
		s.emit([]byte(promptBanner(time.Now(), s.task.Cwd, s.task.Shell)))
	}

	// #nosec G204 - the command line comes from the user's own task configuration
	cmd := exec.Command("sh", "-c", s.task.Shell)
	cmd.Dir = s.task.Cwd
	cmd.Env = taskEnv(os.Environ(), token)
	cmd.SysProcAttr = sysProcAttr()
	out := &outputWriter{s: s}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = pipeDrainDelay

	if err := cmd.Start(); err != nil {
		s.logger.Warn("spawn failed", "shell", s.task.Shell, "error", err)
		s.emit([]byte(fmt.Sprintf("%v\n", err)))
		s.finish(1)
		return
	}

	s.cmd = cmd
	s.regID = s.registry.add(cmd.Process.Pid)
	close(s.booted)

	go s.wait()
}

func (s *Shell) wait() {
	err := s.cmd.Wait()
	s.registry.remove(s.regID)

	code := exitCode(s.cmd.ProcessState, err)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		s.logger.Debug("wait returned", "shell", s.task.Shell, "error", err)
	}

	if s.task.Fence {
		s.emit([]byte(exitBanner(code)))
	}
	s.finish(code)
}

func (s *Shell) finish(code int) {
	s.exitCode.Store(int32(code)) //nolint:gosec // exit codes fit in int32
	s.running.Store(false)
	close(s.done)
}

// exitCode maps a finished process to its exit code.
// Death by signal and unknown states count as 1.
func exitCode(state *os.ProcessState, err error) int {
	if state == nil {
		if err != nil {
			return 1
		}
		return 0
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return 1
}

func (s *Shell) emit(chunk []byte) {
	if s.output == nil {
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	s.output(chunk)
}

// Accept keeps the run alive when the command line is unchanged.
func (s *Shell) Accept(cfg domain.TaskConfig) bool {
	return cfg.Kind == domain.ExecutorShell && cfg.Shell != nil && cfg.Shell.Shell == s.task.Shell
}

// Booted implements Executor.
func (s *Shell) Booted() <-chan struct{} { return s.booted }

// Done implements Executor.
func (s *Shell) Done() <-chan struct{} { return s.done }

// ExitCode implements Executor.
func (s *Shell) ExitCode() int { return int(s.exitCode.Load()) }

// Running implements Executor.
func (s *Shell) Running() bool { return s.running.Load() }

// Abort sends SIGTERM to the process group, escalating to SIGKILL once the
// grace period elapses.
func (s *Shell) Abort() <-chan struct{} {
	s.abort.Do(func() { go s.runAbort() })
	return s.aborted
}

func (s *Shell) runAbort() {
	defer close(s.aborted)

	if s.cmd == nil {
		<-s.done
		return
	}

	select {
	case <-s.done:
		return
	default:
	}

	pid := s.cmd.Process.Pid
	if err := terminateGroup(pid); err != nil {
		s.logger.Debug("terminate process group", "pid", pid, "error", err)
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		s.emit([]byte(abortNotice))
		if err := killGroup(pid); err != nil {
			s.logger.Debug("kill process group", "pid", pid, "error", err)
		}
		<-s.done
	}
}

// outputWriter funnels both child streams into the executor output.
// A single pointer is shared by Stdout and Stderr so exec uses one pipe.
type outputWriter struct {
	s *Shell
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.s.emit(append([]byte(nil), p...))
	return len(p), nil
}

// taskEnv builds the environment of a task process.
func taskEnv(base []string, token string) []string {
	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		switch name {
		case domain.DaemonEnv, domain.TokenEnv, "FORCE_COLOR":
			continue
		}
		env = append(env, kv)
	}
	return append(env, domain.TokenEnv+"="+token, "FORCE_COLOR=3")
}
