package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/engine"
	"github.com/runoshun/magicbin/internal/infra/metrics"
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
	core     *engine.Core
	factory  *testutil.MockExecutorFactory
	opener   *testutil.MockConfigOpener
	registry *testutil.MockNamespaceRegistry
	metrics  *metrics.Metrics
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		factory:  &testutil.MockExecutorFactory{AutoBoot: true},
		opener:   &testutil.MockConfigOpener{},
		registry: testutil.NewMockNamespaceRegistry(),
	}
	f.core = engine.NewCore(engine.Options{Executors: f.factory.New, Opener: f.opener})
	f.metrics = metrics.New(f.core.Registry().Len)
	f.router = NewRouter(f.core, f.opener, f.metrics, nil, WithRegistry(f.registry))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.core.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
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

// sync registers cfg with the opener and syncs it through the API.
func (f *fixture) sync(t *testing.T, tasks map[string]domain.TaskConfig) {
	t.Helper()
	f.opener.Set(testConfigPath, &domain.Config{
		Namespace: testNamespace,
		Path:      testConfigPath,
		Tasks:     tasks,
	})
	w := f.do(t, http.MethodPost, "/api/sync", SyncRequest{Path: testConfigPath})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) taskStatus(t *testing.T, id string) domain.Status {
	t.Helper()
	w := f.do(t, http.MethodGet, "/api/namespaces/"+testNamespace+"/tasks/"+id, nil)
	if w.Code != http.StatusOK {
		return ""
	}
	var info domain.TaskInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	return info.Status
}

func (f *fixture) requireStatus(t *testing.T, id string, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return f.taskStatus(t, id) == want }, waitFor, tick,
		"task %s never reached %s", id, want)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return &buf
}
