package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/testutil"
)

func TestController_SyncDropsUndeclaredTasks(t *testing.T) {
	factory := &testutil.MockExecutorFactory{AutoBoot: true}
	core := newTestCore(t, factory)

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{
		"a": shellTask("db"),
		"b": shellTask("worker"),
	}))
	requireStatus(t, core, "b", domain.StatusRunning)
	worker := factory.For("worker")

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{
		"a": shellTask("db"),
	}))

	onLoop(t, core, func() {
		ctrl, err := core.Controller(testNamespace)
		require.NoError(t, err)
		assert.Equal(t, 1, ctrl.Info().TaskCount)
		assert.Nil(t, ctrl.TryTask("b"))
		_, err = ctrl.Task("b")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
	assert.Equal(t, 1, worker.Aborts())
}

func TestController_RemovedTaskDoesNotDisturbItsSuccessor(t *testing.T) {
	factory := &testutil.MockExecutorFactory{AutoBoot: true, HoldAbort: true}
	core := newTestCore(t, factory)

	worker := shellTask("worker", dependsOn("a"))
	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{"a": shellTask("db"), "b": worker}))
	requireStatus(t, core, "b", domain.StatusRunning)
	oldDB := factory.For("db")
	oldWorker := factory.For("worker")

	// Removing a stops b; both aborts are held.
	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{"b": worker}))
	requireStatus(t, core, "b", domain.StatusStopping)
	oldWorker.ReleaseAbort()
	requireStatus(t, core, "b", domain.StatusPending)

	// a comes back while its previous process is still exiting.
	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{"a": shellTask("db"), "b": worker}))
	requireStatus(t, core, "a", domain.StatusRunning)
	requireStatus(t, core, "b", domain.StatusRunning)

	oldDB.ReleaseAbort()

	assert.Never(t, func() bool {
		return taskStatus(t, core, "a") != domain.StatusRunning || taskStatus(t, core, "b") != domain.StatusRunning
	}, 100*time.Millisecond, tick)
}

func TestController_TasksSorted(t *testing.T) {
	factory := &testutil.MockExecutorFactory{}
	core := newTestCore(t, factory)

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{
		"zeta":  shellTask("z"),
		"alpha": shellTask("a"),
		"mid":   shellTask("m"),
	}))

	onLoop(t, core, func() {
		ctrl := core.TryController(testNamespace)
		var ids []string
		for _, info := range ctrl.TaskInfos() {
			ids = append(ids, info.ID)
		}
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
	})
}

func TestController_Description(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Web"), 0o600))

	tests := []struct {
		name string
		cfg  domain.Config
		want *string
	}{
		{"none", domain.Config{}, nil},
		{"inline", domain.Config{Description: ptr("dev stack")}, ptr("dev stack")},
		{"empty inline", domain.Config{Description: ptr("")}, ptr("")},
		{"file", domain.Config{DescriptionFile: "README.md"}, ptr("# Web")},
		{"missing file", domain.Config{DescriptionFile: "MISSING.md"}, ptr(descriptionReadError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := newTestCore(t, &testutil.MockExecutorFactory{})
			cfg := tt.cfg
			cfg.Namespace = testNamespace
			cfg.Path = filepath.Join(dir, domain.ConfigFileName)

			onLoop(t, core, func() {
				info := core.SyncConfig(&cfg).Info()
				assert.Equal(t, tt.want, info.Description)
				assert.Equal(t, cfg.Path, info.ConfigPath)
				assert.Equal(t, testNamespace, info.Name)
			})
		})
	}
}

func ptr(s string) *string { return &s }

func TestCore_Registry(t *testing.T) {
	core := newTestCore(t, &testutil.MockExecutorFactory{})

	var updates []string
	core.NamespaceUpdated().Add(func(ns string) { updates = append(updates, ns) })

	onLoop(t, core, func() {
		first := core.Upsert("b")
		assert.Same(t, first, core.Upsert("b"))
		core.Upsert("a")

		assert.Equal(t, []string{"a", "b"}, core.Namespaces())
		assert.Nil(t, core.TryController("c"))
		_, err := core.Controller("c")
		assert.ErrorIs(t, err, domain.ErrNamespaceNotFound)

		assert.Equal(t, []string{"b", "a"}, updates, "one notification per created namespace")
	})
}

func TestController_WatchReloadsConfig(t *testing.T) {
	factory := &testutil.MockExecutorFactory{}
	opener := &testutil.MockConfigOpener{}
	watcher := &testutil.MockWatcher{}
	core := newTestCore(t, factory, func(o *Options) {
		o.Opener = opener
		o.Watch = watcher.Watch
	})

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{"a": shellTask("db")}))
	assert.Equal(t, 1, watcher.Active(testConfigPath))

	opener.Set(testConfigPath, namespaceConfig(map[string]domain.TaskConfig{
		"a": shellTask("db"),
		"b": shellTask("worker"),
	}))
	watcher.Trigger(testConfigPath)

	require.Eventually(t, func() bool {
		var n int
		onLoop(t, core, func() { n = core.TryController(testNamespace).Info().TaskCount })
		return n == 2
	}, waitFor, tick)
	assert.Equal(t, 1, watcher.Active(testConfigPath), "re-sync replaces the watch")
}

func TestController_WatchIgnoresBrokenConfig(t *testing.T) {
	opener := &testutil.MockConfigOpener{Err: domain.ErrInvalidConfig}
	watcher := &testutil.MockWatcher{}
	core := newTestCore(t, &testutil.MockExecutorFactory{}, func(o *Options) {
		o.Opener = opener
		o.Watch = watcher.Watch
	})

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{"a": shellTask("db")}))
	watcher.Trigger(testConfigPath)

	onLoop(t, core, func() {})
	onLoop(t, core, func() {
		assert.Equal(t, 1, core.TryController(testNamespace).Info().TaskCount)
	})
}

func TestController_Unwatch(t *testing.T) {
	watcher := &testutil.MockWatcher{}
	core := newTestCore(t, &testutil.MockExecutorFactory{}, func(o *Options) {
		o.Watch = watcher.Watch
	})

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{"a": shellTask("db")}))

	var notified int
	core.NamespaceUpdated().Add(func(string) { notified++ })

	onLoop(t, core, func() {
		ctrl := core.TryController(testNamespace)
		require.NoError(t, ctrl.Apply(domain.NamespaceActionUnwatch))
		assert.False(t, ctrl.Info().Watched)
		assert.Equal(t, 1, notified)
	})
	assert.Equal(t, 0, watcher.Active(testConfigPath))

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{"a": shellTask("db")}))
	assert.Equal(t, 0, watcher.Active(testConfigPath), "sync keeps the watch flag")

	onLoop(t, core, func() {
		require.NoError(t, core.TryController(testNamespace).Apply(domain.NamespaceActionWatch))
	})
	assert.Equal(t, 1, watcher.Active(testConfigPath))
}

func TestController_WatchDescriptionFile(t *testing.T) {
	dir := t.TempDir()
	descPath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(descPath, []byte("v1"), 0o600))

	watcher := &testutil.MockWatcher{}
	core := newTestCore(t, &testutil.MockExecutorFactory{}, func(o *Options) {
		o.Watch = watcher.Watch
	})

	cfg := namespaceConfig(map[string]domain.TaskConfig{})
	cfg.Path = filepath.Join(dir, domain.ConfigFileName)
	cfg.DescriptionFile = "README.md"
	syncConfig(t, core, cfg)
	require.Equal(t, 1, watcher.Active(descPath))

	require.NoError(t, os.WriteFile(descPath, []byte("v2"), 0o600))
	watcher.Trigger(descPath)

	require.Eventually(t, func() bool {
		var desc string
		onLoop(t, core, func() { desc = *core.TryController(testNamespace).Info().Description })
		return desc == "v2"
	}, waitFor, tick)

	// A failed read keeps the previous description.
	require.NoError(t, os.Remove(descPath))
	watcher.Trigger(descPath)
	onLoop(t, core, func() {
		assert.Equal(t, "v2", *core.TryController(testNamespace).Info().Description)
	})
}

func TestController_Actions(t *testing.T) {
	factory := &testutil.MockExecutorFactory{AutoBoot: true}
	core := newTestCore(t, factory)

	syncConfig(t, core, namespaceConfig(map[string]domain.TaskConfig{
		"a": shellTask("db"),
		"b": shellTask("worker"),
	}))
	requireStatus(t, core, "a", domain.StatusRunning)
	requireStatus(t, core, "b", domain.StatusRunning)

	onLoop(t, core, func() {
		require.NoError(t, core.TryController(testNamespace).Apply(domain.NamespaceActionStop))
	})
	requireStatus(t, core, "a", domain.StatusCancelled)
	requireStatus(t, core, "b", domain.StatusCancelled)

	onLoop(t, core, func() {
		require.NoError(t, core.TryController(testNamespace).Apply(domain.NamespaceActionReboot))
	})
	requireStatus(t, core, "a", domain.StatusRunning)
	requireStatus(t, core, "b", domain.StatusRunning)

	onLoop(t, core, func() {
		ctrl := core.TryController(testNamespace)
		assert.ErrorIs(t, ctrl.Apply("EXPLODE"), domain.ErrUnknownAction)
		assert.ErrorIs(t, ctrl.ApplyTask("a", "EXPLODE"), domain.ErrUnknownAction)
		assert.ErrorIs(t, ctrl.ApplyTask("zzz", domain.TaskActionStop), domain.ErrTaskNotFound)
		require.NoError(t, ctrl.ApplyTask("a", domain.TaskActionStop))
	})
	requireStatus(t, core, "a", domain.StatusCancelled)
}
