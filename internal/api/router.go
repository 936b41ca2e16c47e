package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/engine"
	"github.com/runoshun/magicbin/internal/fanout"
	"github.com/runoshun/magicbin/internal/infra/metrics"
)

// DefaultTailLines is the number of lines returned by the tail query
// when none is requested.
const DefaultTailLines = 100

// callTimeout bounds how long a request waits for the engine loop.
const callTimeout = 10 * time.Second

// Handlers serves the daemon API.
type Handlers struct {
	core     *engine.Core
	opener   domain.ConfigOpener
	registry domain.NamespaceRegistry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// RouterOption configures optional router dependencies.
type RouterOption func(*Handlers)

// WithRegistry records every synced namespace in registry.
func WithRegistry(registry domain.NamespaceRegistry) RouterOption {
	return func(h *Handlers) {
		h.registry = registry
	}
}

// NewRouter builds the gin engine serving the daemon API. m may be nil.
func NewRouter(core *engine.Core, opener domain.ConfigOpener, m *metrics.Metrics, logger *slog.Logger, opts ...RouterOption) *gin.Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handlers{core: core, opener: opener, metrics: m, logger: logger}
	for _, opt := range opts {
		opt(h)
	}

	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())

	router.GET("/health", h.Health)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/api")
	{
		api.POST("/sync", h.Sync)
		api.POST("/confirm", h.Confirm)

		namespaces := api.Group("/namespaces")
		{
			namespaces.GET("", h.ListNamespaces)
			namespaces.GET("/:ns", h.GetNamespace)
			namespaces.POST("/:ns/actions", h.ApplyNamespaceAction)
			namespaces.GET("/:ns/tasks", h.ListTasks)
			namespaces.GET("/:ns/tasks/:task", h.GetTask)
			namespaces.GET("/:ns/tasks/:task/tail", h.TailTask)
			namespaces.POST("/:ns/tasks/:task/actions", h.ApplyTaskAction)
		}

		ws := api.Group("/ws")
		{
			ws.GET("/namespaces", h.WatchNamespaces)
			ws.GET("/namespaces/:ns/tasks", h.WatchTasks)
			ws.GET("/namespaces/:ns/tasks/:task/buffer", h.WatchBuffer)
		}
	}

	return router
}

func (h *Handlers) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// call runs fn on the engine loop on behalf of a request.
// fn may still run after call returns when the request ends first, so it
// must not touch c.
func (h *Handlers) call(c *gin.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), callTimeout)
	defer cancel()
	return h.core.Call(ctx, fn)
}

// fail writes the error response matching err.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNamespaceNotFound), errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrConfigNotFound),
		errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, fanout.ErrCancelled), errors.Is(err, engine.ErrLoopStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Health reports that the daemon is serving.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListNamespaces returns every namespace.
func (h *Handlers) ListNamespaces(c *gin.Context) {
	var infos []domain.NamespaceInfo
	err := h.call(c, func() error {
		infos = make([]domain.NamespaceInfo, 0)
		for _, ns := range h.core.Namespaces() {
			if ctrl := h.core.TryController(ns); ctrl != nil {
				infos = append(infos, ctrl.Info())
			}
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

// GetNamespace returns one namespace, or null with 404.
func (h *Handlers) GetNamespace(c *gin.Context) {
	ns := c.Param("ns")
	var info *domain.NamespaceInfo
	err := h.call(c, func() error {
		if ctrl := h.core.TryController(ns); ctrl != nil {
			i := ctrl.Info()
			info = &i
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, nil)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ListTasks returns the tasks of a namespace.
func (h *Handlers) ListTasks(c *gin.Context) {
	ns := c.Param("ns")
	var infos []domain.TaskInfo
	err := h.call(c, func() error {
		ctrl, err := h.core.Controller(ns)
		if err != nil {
			return err
		}
		infos = ctrl.TaskInfos()
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

// GetTask returns one task, or null with 404.
func (h *Handlers) GetTask(c *gin.Context) {
	ns, id := c.Param("ns"), c.Param("task")
	var info *domain.TaskInfo
	err := h.call(c, func() error {
		if ctrl := h.core.TryController(ns); ctrl != nil {
			if task := ctrl.TryTask(id); task != nil {
				i := task.Info()
				info = &i
			}
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, nil)
		return
	}
	c.JSON(http.StatusOK, info)
}

// TailTask returns the last retained output lines of a task as text.
func (h *Handlers) TailTask(c *gin.Context) {
	lines := DefaultTailLines
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "lines must be a non-negative integer"})
			return
		}
		lines = n
	}

	ns, id := c.Param("ns"), c.Param("task")
	var out []byte
	err := h.call(c, func() error {
		ctrl, err := h.core.Controller(ns)
		if err != nil {
			return err
		}
		task, err := ctrl.Task(id)
		if err != nil {
			return err
		}
		for _, line := range task.Tail(lines) {
			out = append(out, line...)
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", out)
}

// Sync opens the configuration file at the requested path and reconciles
// its namespace.
func (h *Handlers) Sync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if h.opener == nil {
		h.fail(c, errors.New("daemon has no configuration loader"))
		return
	}

	cfg, err := h.opener.Open(req.Path)
	if err != nil {
		h.fail(c, err)
		return
	}
	for _, w := range cfg.Warnings {
		h.logger.Warn("configuration warning", "namespace", cfg.Namespace, "path", cfg.Path, "warning", w)
	}

	var info domain.NamespaceInfo
	err = h.call(c, func() error {
		info = h.core.SyncConfig(cfg).Info()
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("namespace synced", "namespace", cfg.Namespace, "tasks", len(cfg.Tasks))
	if h.registry != nil {
		if err := h.registry.Remember(cfg.Namespace, cfg.Path); err != nil {
			h.logger.Warn("remember namespace", "namespace", cfg.Namespace, "error", err)
		}
	}

	warnings := cfg.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	c.JSON(http.StatusOK, SyncResponse{Namespace: info, Warnings: warnings})
}

// ApplyNamespaceAction runs an action on every task of a namespace.
func (h *Handlers) ApplyNamespaceAction(c *gin.Context) {
	var req NamespaceActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ns := c.Param("ns")
	err := h.call(c, func() error {
		ctrl, err := h.core.Controller(ns)
		if err != nil {
			return err
		}
		return ctrl.Apply(req.Action)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ApplyTaskAction runs an action on one task.
func (h *Handlers) ApplyTaskAction(c *gin.Context) {
	var req TaskActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ns, id := c.Param("ns"), c.Param("task")
	err := h.call(c, func() error {
		ctrl, err := h.core.Controller(ns)
		if err != nil {
			return err
		}
		return ctrl.ApplyTask(id, req.Action)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Confirm resolves the pending confirmation of a task.
func (h *Handlers) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	namespace, taskID := req.Namespace, req.TaskID
	if req.Token != "" {
		var err error
		namespace, taskID, err = domain.ParseToken(req.Token)
		if err != nil {
			h.fail(c, err)
			return
		}
	}
	if namespace == "" || taskID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "token or namespace and taskId are required"})
		return
	}

	err := h.call(c, func() error {
		return h.core.Confirm(namespace, taskID)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
