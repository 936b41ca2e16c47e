package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/testutil"
)

const (
	testNamespace  = "web"
	testConfigPath = "/srv/web/magicbin.toml"
	waitFor        = 2 * time.Second
	tick           = 5 * time.Millisecond
)

func newTestCore(t *testing.T, factory *testutil.MockExecutorFactory, opts ...func(*Options)) *Core {
	t.Helper()

	o := Options{Executors: factory.New}
	for _, opt := range opts {
		opt(&o)
	}
	core := NewCore(o)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = core.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return core
}

// onLoop runs fn on the engine loop and waits for it.
func onLoop(t *testing.T, core *Core, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, core.Call(ctx, func() error {
		fn()
		return nil
	}))
}

func taskStatus(t *testing.T, core *Core, id string) domain.Status {
	t.Helper()
	var status domain.Status
	onLoop(t, core, func() {
		if ctrl := core.TryController(testNamespace); ctrl != nil {
			if task := ctrl.TryTask(id); task != nil {
				status = task.Status()
			}
		}
	})
	return status
}

func requireStatus(t *testing.T, core *Core, id string, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return taskStatus(t, core, id) == want
	}, waitFor, tick, "task %s never reached %s (last: %s)", id, want, taskStatus(t, core, id))
}

func requireExecutors(t *testing.T, factory *testutil.MockExecutorFactory, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return factory.Count() == n }, waitFor, tick,
		"expected %d executors, got %d", n, factory.Count())
}

// shellTask returns a task configuration without automatic reboots.
func shellTask(shell string, mutate ...func(*domain.TaskConfig)) domain.TaskConfig {
	cfg := domain.NewShellTaskConfig(shell, "/srv/web")
	cfg.RebootInterval = nil
	for _, m := range mutate {
		m(&cfg)
	}
	return cfg
}

func dependsOn(ids ...string) func(*domain.TaskConfig) {
	return func(cfg *domain.TaskConfig) { cfg.DependsOn = ids }
}

func namespaceConfig(tasks map[string]domain.TaskConfig) *domain.Config {
	return &domain.Config{
		Namespace: testNamespace,
		Path:      testConfigPath,
		Tasks:     tasks,
	}
}

func syncConfig(t *testing.T, core *Core, cfg *domain.Config) {
	t.Helper()
	onLoop(t, core, func() { core.SyncConfig(cfg) })
}

func task(t *testing.T, core *Core, id string) *Task {
	t.Helper()
	var task *Task
	onLoop(t, core, func() {
		ctrl, err := core.Controller(testNamespace)
		require.NoError(t, err)
		task, err = ctrl.Task(id)
		require.NoError(t, err)
	})
	return task
}
