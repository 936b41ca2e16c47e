package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/magicbin/internal/api"
	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/engine"
	"github.com/runoshun/magicbin/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testNamespace  = "web"
	testConfigPath = "/srv/web/magicbin.toml"
	waitFor        = 2 * time.Second
	tick           = 5 * time.Millisecond
)

type fixture struct {
	client  *Client
	factory *testutil.MockExecutorFactory
	opener  *testutil.MockConfigOpener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		factory: &testutil.MockExecutorFactory{AutoBoot: true},
		opener:  &testutil.MockConfigOpener{},
	}
	core := engine.NewCore(engine.Options{Executors: f.factory.New, Opener: f.opener})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = core.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(api.NewRouter(core, f.opener, nil, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	c, err := New(srv.URL)
	require.NoError(t, err)
	f.client = c
	return f
}

func shellTask(shell string, mutate ...func(*domain.TaskConfig)) domain.TaskConfig {
	cfg := domain.NewShellTaskConfig(shell, "/srv/web")
	cfg.RebootInterval = nil
	for _, m := range mutate {
		m(&cfg)
	}
	return cfg
}

func (f *fixture) sync(t *testing.T, tasks map[string]domain.TaskConfig) *domain.SyncResult {
	t.Helper()
	f.opener.Set(testConfigPath, &domain.Config{Namespace: testNamespace, Path: testConfigPath, Tasks: tasks})
	res, err := f.client.Sync(context.Background(), testConfigPath)
	require.NoError(t, err)
	return res
}

func (f *fixture) requireStatus(t *testing.T, id string, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, err := f.client.Task(context.Background(), testNamespace, id)
		return err == nil && info != nil && info.Status == want
	}, waitFor, tick)
}

func TestNew(t *testing.T) {
	c, err := New("127.0.0.1:6890")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:6890", c.URL())
	assert.Equal(t, "ws://127.0.0.1:6890/api/ws/namespaces", c.resolve("/api/ws/namespaces", "ws"))

	c, err = New("https://daemon.example")
	require.NoError(t, err)
	assert.Equal(t, "wss://daemon.example/api/ws/namespaces", c.resolve("/api/ws/namespaces", "ws"))
}

func TestClient_Queries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.client.Health(ctx))

	ns, err := f.client.Namespace(ctx, testNamespace)
	require.NoError(t, err)
	assert.Nil(t, ns)

	res := f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve")})
	assert.Equal(t, testNamespace, res.Namespace.ID)
	assert.Empty(t, res.Warnings)

	ns, err = f.client.Namespace(ctx, testNamespace)
	require.NoError(t, err)
	require.NotNil(t, ns)
	assert.Equal(t, 1, ns.TaskCount)

	tasks, err := f.client.Tasks(ctx, testNamespace)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "server", tasks[0].ID)

	task, err := f.client.Task(ctx, testNamespace, "nope")
	require.NoError(t, err)
	assert.Nil(t, task)

	_, err = f.client.Tasks(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNamespaceNotFound)
}

func TestClient_ActionsAndTail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve")})
	f.requireStatus(t, "server", domain.StatusRunning)

	f.factory.Last().Write("hello\nworld\n")
	require.Eventually(t, func() bool {
		out, err := f.client.Tail(ctx, testNamespace, "server", 1)
		return err == nil && string(out) == "world\n"
	}, waitFor, tick)

	require.NoError(t, f.client.ApplyTaskAction(ctx, testNamespace, "server", domain.TaskActionStop))
	f.requireStatus(t, "server", domain.StatusCancelled)

	require.NoError(t, f.client.ApplyNamespaceAction(ctx, testNamespace, domain.NamespaceActionReboot))
	f.requireStatus(t, "server", domain.StatusRunning)

	err := f.client.ApplyTaskAction(ctx, testNamespace, "server", "EXPLODE")
	assert.ErrorIs(t, err, domain.ErrUnknownAction)

	err = f.client.ApplyTaskAction(ctx, testNamespace, "nope", domain.TaskActionStop)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	err = f.client.ApplyNamespaceAction(ctx, "nope", domain.NamespaceActionStop)
	assert.ErrorIs(t, err, domain.ErrNamespaceNotFound)
}

func TestClient_Confirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve", func(c *domain.TaskConfig) {
		c.ConfirmationMode = domain.ConfirmationMode{Type: domain.ConfirmationModern}
	})})
	f.requireStatus(t, "server", domain.StatusStarting)

	require.NoError(t, f.client.Confirm(ctx, domain.CreateToken(testNamespace, "server")))
	f.requireStatus(t, "server", domain.StatusRunning)

	assert.ErrorIs(t, f.client.Confirm(ctx, "!!"), domain.ErrInvalidToken)
}

func TestClient_SyncErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Sync(context.Background(), "/missing/magicbin.toml")
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)

	f.opener.Err = fmt.Errorf("%w: Namespace: required", domain.ErrInvalidConfig)
	_, err = f.client.Sync(context.Background(), testConfigPath)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.ErrorContains(t, err, "Namespace: required")
}

func TestClient_WatchTasks(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve")})
	f.requireStatus(t, "server", domain.StatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errStop := errors.New("stop")
	var seen []domain.Status
	err := f.client.WatchTasks(ctx, testNamespace, "server", func(updates []domain.TaskUpdate) error {
		if len(seen) == 0 {
			go func() {
				_ = f.client.ApplyTaskAction(context.Background(), testNamespace, "server", domain.TaskActionStop)
			}()
		}
		for _, u := range updates {
			if u.Entity == nil {
				continue
			}
			seen = append(seen, u.Entity.Status)
			if u.Entity.Status == domain.StatusCancelled {
				return errStop
			}
		}
		return nil
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, domain.StatusRunning, seen[0])
	assert.Equal(t, domain.StatusCancelled, seen[len(seen)-1])
}

func TestClient_WatchBuffer(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve")})
	f.requireStatus(t, "server", domain.StatusRunning)
	ex := f.factory.Last()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var chunks []string
	err := f.client.WatchBuffer(ctx, testNamespace, "server", func(chunk []byte) error {
		chunks = append(chunks, string(chunk))
		if len(chunks) == 1 {
			ex.Write("live\n")
			return nil
		}
		cancel()
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"", "live\n"}, chunks)
}

func TestClient_WatchNamespaces(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []domain.NamespaceUpdate
	err := f.client.WatchNamespaces(ctx, testNamespace, func(updates []domain.NamespaceUpdate) error {
		got = updates
		cancel()
		return nil
	})
	assert.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testNamespace, got[0].Pointer.ID)
}

func TestClient_Unavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := New(addr)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Health(context.Background()), domain.ErrDaemonUnavailable)
	err = c.WatchTasks(context.Background(), testNamespace, "", func([]domain.TaskUpdate) error { return nil })
	assert.ErrorIs(t, err, domain.ErrDaemonUnavailable)
}
