package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/engine"
	"github.com/runoshun/magicbin/internal/fanout"
)

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestSync_CreatesNamespaceAndStartsTasks(t *testing.T) {
	f := newFixture(t)
	f.opener.Set(testConfigPath, &domain.Config{
		Namespace: testNamespace,
		Path:      testConfigPath,
		Tasks:     map[string]domain.TaskConfig{"server": shellTask("serve")},
		Warnings:  []string{"unknown key: colour"},
	})

	w := f.do(t, http.MethodPost, "/api/sync", SyncRequest{Path: testConfigPath})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[SyncResponse](t, w)
	assert.Equal(t, testNamespace, resp.Namespace.ID)
	assert.Equal(t, testConfigPath, resp.Namespace.ConfigPath)
	assert.Equal(t, 1, resp.Namespace.TaskCount)
	assert.Equal(t, []string{"unknown key: colour"}, resp.Warnings)
	assert.Equal(t, testConfigPath, f.registry.Path(testNamespace))

	f.requireStatus(t, "server", domain.StatusRunning)
}

func TestSync_Errors(t *testing.T) {
	f := newFixture(t)

	t.Run("missing path", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/sync", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown config", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/sync", SyncRequest{Path: "/nowhere/magicbin.toml"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[ErrorResponse](t, w).Error, "configuration file")
	})

	t.Run("invalid config", func(t *testing.T) {
		f.opener.Err = fmt.Errorf("%w: tasks.a.shell: required", domain.ErrInvalidConfig)
		defer func() { f.opener.Err = nil }()

		w := f.do(t, http.MethodPost, "/api/sync", SyncRequest{Path: testConfigPath})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decode[ErrorResponse](t, w).Error, "tasks.a.shell")
	})

	assert.Empty(t, f.registry.Paths, "failed syncs are not remembered")
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{
		"server": shellTask("serve", func(c *domain.TaskConfig) { c.Name = "Dev server" }),
		"db":     shellTask("postgres"),
	})

	t.Run("list namespaces", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/namespaces", nil)
		require.Equal(t, http.StatusOK, w.Code)
		infos := decode[[]domain.NamespaceInfo](t, w)
		require.Len(t, infos, 1)
		assert.Equal(t, testNamespace, infos[0].ID)
		assert.Equal(t, 2, infos[0].TaskCount)
		assert.Nil(t, infos[0].Description)
	})

	t.Run("get namespace", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/namespaces/"+testNamespace, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testNamespace, decode[domain.NamespaceInfo](t, w).ID)
	})

	t.Run("unknown namespace is null", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/namespaces/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "null", w.Body.String())
	})

	t.Run("list tasks", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/namespaces/"+testNamespace+"/tasks", nil)
		require.Equal(t, http.StatusOK, w.Code)
		infos := decode[[]domain.TaskInfo](t, w)
		require.Len(t, infos, 2)
		assert.Equal(t, "db", infos[0].ID)
		assert.Equal(t, "server", infos[1].ID)
		assert.Equal(t, "Dev server", infos[1].Name)
	})

	t.Run("list tasks of unknown namespace", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/namespaces/nope/tasks", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown task is null", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/namespaces/"+testNamespace+"/tasks/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "null", w.Body.String())
	})
}

func TestTailTask(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve")})
	f.requireStatus(t, "server", domain.StatusRunning)

	f.factory.Last().Write("one\ntwo\nthree\n")

	path := "/api/namespaces/" + testNamespace + "/tasks/server/tail"
	require.Eventually(t, func() bool {
		return f.do(t, http.MethodGet, path, nil).Body.String() == "one\ntwo\nthree\n"
	}, waitFor, tick)

	w := f.do(t, http.MethodGet, path+"?lines=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "two\nthree\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = f.do(t, http.MethodGet, path+"?lines=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/namespaces/"+testNamespace+"/tasks/nope/tail", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskActions(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve")})
	f.requireStatus(t, "server", domain.StatusRunning)
	path := "/api/namespaces/" + testNamespace + "/tasks/server/actions"

	w := f.do(t, http.MethodPost, path, TaskActionRequest{Action: domain.TaskActionStop})
	assert.Equal(t, http.StatusNoContent, w.Code)
	f.requireStatus(t, "server", domain.StatusCancelled)

	w = f.do(t, http.MethodPost, path, TaskActionRequest{Action: domain.TaskActionReboot})
	assert.Equal(t, http.StatusNoContent, w.Code)
	f.requireStatus(t, "server", domain.StatusRunning)
	assert.Equal(t, 2, f.factory.Count())

	w = f.do(t, http.MethodPost, path, TaskActionRequest{Action: domain.TaskActionClear})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodPost, path, TaskActionRequest{Action: "EXPLODE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, path, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/namespaces/"+testNamespace+"/tasks/nope/actions", TaskActionRequest{Action: domain.TaskActionStop})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskActions_AbandonedRequestKeepsItsTarget(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{"a": shellTask("a"), "b": shellTask("b")})
	f.requireStatus(t, "a", domain.StatusRunning)
	f.requireStatus(t, "b", domain.StatusRunning)

	// Hold the loop so the action is still queued when its request ends.
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()
	f.core.Post(func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/namespaces/"+testNamespace+"/tasks/a/actions",
		jsonBody(t, TaskActionRequest{Action: domain.TaskActionStop})).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// A later request naming another task, answered without the loop.
	w = f.do(t, http.MethodGet, "/api/namespaces/"+testNamespace+"/tasks/b/tail?lines=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unblock()
	f.requireStatus(t, "a", domain.StatusCancelled)
	assert.Equal(t, domain.StatusRunning, f.taskStatus(t, "b"))
}

func TestNamespaceActions(t *testing.T) {
	f := newFixture(t)
	f.sync(t, map[string]domain.TaskConfig{
		"a": shellTask("a"),
		"b": shellTask("b"),
	})
	f.requireStatus(t, "a", domain.StatusRunning)
	f.requireStatus(t, "b", domain.StatusRunning)
	path := "/api/namespaces/" + testNamespace + "/actions"

	w := f.do(t, http.MethodPost, path, NamespaceActionRequest{Action: domain.NamespaceActionStop})
	assert.Equal(t, http.StatusNoContent, w.Code)
	f.requireStatus(t, "a", domain.StatusCancelled)
	f.requireStatus(t, "b", domain.StatusCancelled)

	w = f.do(t, http.MethodPost, path, NamespaceActionRequest{Action: domain.NamespaceActionUnwatch})
	assert.Equal(t, http.StatusNoContent, w.Code)
	info := decode[domain.NamespaceInfo](t, f.do(t, http.MethodGet, "/api/namespaces/"+testNamespace, nil))
	assert.False(t, info.Watched)

	w = f.do(t, http.MethodPost, path, NamespaceActionRequest{Action: domain.NamespaceActionReboot})
	assert.Equal(t, http.StatusNoContent, w.Code)
	f.requireStatus(t, "a", domain.StatusRunning)

	w = f.do(t, http.MethodPost, path, NamespaceActionRequest{Action: "DANCE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/namespaces/nope/actions", NamespaceActionRequest{Action: domain.NamespaceActionStop})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirm(t *testing.T) {
	modern := func(c *domain.TaskConfig) {
		c.ConfirmationMode = domain.ConfirmationMode{Type: domain.ConfirmationModern}
	}

	t.Run("by token", func(t *testing.T) {
		f := newFixture(t)
		f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve", modern)})
		f.requireStatus(t, "server", domain.StatusStarting)

		w := f.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Token: domain.CreateToken(testNamespace, "server")})
		assert.Equal(t, http.StatusNoContent, w.Code)
		f.requireStatus(t, "server", domain.StatusRunning)
	})

	t.Run("by ids", func(t *testing.T) {
		f := newFixture(t)
		f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve", modern)})
		f.requireStatus(t, "server", domain.StatusStarting)

		w := f.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Namespace: testNamespace, TaskID: "server"})
		assert.Equal(t, http.StatusNoContent, w.Code)
		f.requireStatus(t, "server", domain.StatusRunning)
	})

	t.Run("errors", func(t *testing.T) {
		f := newFixture(t)
		f.sync(t, map[string]domain.TaskConfig{"server": shellTask("serve", modern)})

		w := f.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Token: "%%%"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = f.do(t, http.MethodPost, "/api/confirm", ConfirmRequest{Token: domain.CreateToken(testNamespace, "nope")})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrTaskNotFound), http.StatusNotFound},
		{domain.ErrNamespaceNotFound, http.StatusNotFound},
		{domain.ErrInvalidConfig, http.StatusBadRequest},
		{domain.ErrConfigNotFound, http.StatusBadRequest},
		{domain.ErrUnknownAction, http.StatusBadRequest},
		{domain.ErrInvalidToken, http.StatusBadRequest},
		{fanout.ErrCancelled, http.StatusServiceUnavailable},
		{engine.ErrLoopStopped, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Regexp(t, regexp.MustCompile(`magicbin_live_processes \d+`), w.Body.String())
}
