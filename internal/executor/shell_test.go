//go:build unix

package executor

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/magicbin/internal/domain"
)

type capture struct {
	buf strings.Builder
	mu  sync.Mutex
}

func (c *capture) write(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(p)
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func waitClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatal(msg)
	}
}

func shellTask(t *testing.T, shell string, fence bool) domain.ShellTask {
	t.Helper()
	return domain.ShellTask{Shell: shell, Cwd: t.TempDir(), Fence: fence}
}

func TestShell_SuccessMergesOutput(t *testing.T) {
	out := &capture{}
	s := NewShell(shellTask(t, "echo out; echo err 1>&2", false), Options{Output: out.write})

	waitClosed(t, s.Booted(), "not booted")
	waitClosed(t, s.Done(), "not done")

	assert.Equal(t, 0, s.ExitCode())
	assert.False(t, s.Running())
	assert.Contains(t, out.String(), "out\n")
	assert.Contains(t, out.String(), "err\n")
}

func TestShell_ExitCode(t *testing.T) {
	s := NewShell(shellTask(t, "exit 3", false), Options{})

	waitClosed(t, s.Done(), "not done")

	assert.Equal(t, 3, s.ExitCode())
}

func TestShell_Fence(t *testing.T) {
	out := &capture{}
	s := NewShell(shellTask(t, "exit 2", true), Options{Output: out.write})
	waitClosed(t, s.Done(), "not done")

	got := out.String()
	assert.Contains(t, got, " $ ")
	assert.Contains(t, got, "exit 2\n\n")
	assert.Contains(t, got, "Process failed with exit code 2")

	out = &capture{}
	s = NewShell(shellTask(t, "true", true), Options{Output: out.write})
	waitClosed(t, s.Done(), "not done")
	assert.Contains(t, out.String(), "Process exited successfully")
}

func TestShell_Env(t *testing.T) {
	t.Setenv(domain.DaemonEnv, "1")
	out := &capture{}
	s := NewShell(shellTask(t, `echo "token=$MAGICBIN_TOKEN daemon=${MAGICBIN_DAEMON:-unset} color=$FORCE_COLOR"`, false),
		Options{Output: out.write, Token: "abc"})
	waitClosed(t, s.Done(), "not done")

	assert.Contains(t, out.String(), "token=abc daemon=unset color=3")
}

func TestShell_Cwd(t *testing.T) {
	task := shellTask(t, "pwd", false)
	out := &capture{}
	s := NewShell(task, Options{Output: out.write})
	waitClosed(t, s.Done(), "not done")

	resolved, err := filepath.EvalSymlinks(task.Cwd)
	require.NoError(t, err)
	assert.Contains(t, out.String(), resolved)
}

func TestShell_SpawnFailure(t *testing.T) {
	out := &capture{}
	task := domain.ShellTask{Shell: "true", Cwd: filepath.Join(t.TempDir(), "missing")}
	s := NewShell(task, Options{Output: out.write})

	waitClosed(t, s.Done(), "not done")

	assert.Equal(t, 1, s.ExitCode())
	assert.False(t, s.Running())
	assert.NotEmpty(t, out.String())
	select {
	case <-s.Booted():
		t.Fatal("booted must stay open after a spawn failure")
	default:
	}
	waitClosed(t, s.Abort(), "abort of a failed run must resolve")
}

func TestShell_AbortGraceful(t *testing.T) {
	reg := NewRegistry()
	s := NewShell(shellTask(t, "sleep 30", false), Options{Registry: reg})
	waitClosed(t, s.Booted(), "not booted")
	assert.Equal(t, 1, reg.Len())

	aborted := s.Abort()
	assert.Equal(t, aborted, s.Abort(), "abort returns the same channel")

	waitClosed(t, aborted, "abort did not resolve")
	select {
	case <-s.Done():
	default:
		t.Fatal("done must be closed before abort resolves")
	}
	assert.Equal(t, 1, s.ExitCode())
	assert.Equal(t, 0, reg.Len())
}

func TestShell_AbortEscalatesToKill(t *testing.T) {
	out := &capture{}
	marker := filepath.Join(t.TempDir(), "ready")
	s := NewShell(shellTask(t, `trap "" TERM; touch `+marker+`; while true; do sleep 0.1; done`, false),
		Options{Output: out.write, Grace: 200 * time.Millisecond})

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	waitClosed(t, s.Abort(), "abort did not resolve")

	assert.Contains(t, out.String(), "sending a SIGKILL")
	assert.False(t, s.Running())
}

func TestShell_AbortAfterExit(t *testing.T) {
	s := NewShell(shellTask(t, "true", false), Options{})
	waitClosed(t, s.Done(), "not done")

	waitClosed(t, s.Abort(), "abort after exit did not resolve")
}

func TestShell_Accept(t *testing.T) {
	s := NewShell(shellTask(t, "true", false), Options{})
	waitClosed(t, s.Done(), "not done")

	assert.True(t, s.Accept(domain.NewShellTaskConfig("true", "/elsewhere")))
	assert.False(t, s.Accept(domain.NewShellTaskConfig("false", "/")))
	assert.False(t, s.Accept(domain.TaskConfig{Kind: domain.ExecutorShell}))
}

func TestRegistry_KillAll(t *testing.T) {
	reg := NewRegistry()
	s := NewShell(shellTask(t, "sleep 30", false), Options{Registry: reg})
	waitClosed(t, s.Booted(), "not booted")

	assert.Equal(t, 1, reg.KillAll())
	waitClosed(t, s.Done(), "kill did not end the run")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_Nil(t *testing.T) {
	var reg *Registry
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, reg.KillAll())
}
