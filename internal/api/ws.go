package api

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/runoshun/magicbin/internal/engine"
	"github.com/runoshun/magicbin/internal/infra/metrics"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     checkOrigin,
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// checkOrigin accepts non-browser clients, same-host pages and loopback pages.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// WatchNamespaces streams namespace updates. The optional namespace query
// parameter restricts the feed to one namespace.
func (h *Handlers) WatchNamespaces(c *gin.Context) {
	filter := c.Query("namespace")
	h.serveFeed(c, metrics.FeedNamespaces, func(ctx context.Context, send func(any) error) error {
		return h.core.NamespaceFeed(ctx, filter, func(updates []engine.NamespaceUpdate) error {
			return send(updates)
		})
	})
}

// WatchTasks streams task updates of a namespace. The optional task query
// parameter restricts the feed to one task.
func (h *Handlers) WatchTasks(c *gin.Context) {
	namespace, taskID := c.Param("ns"), c.Query("task")
	h.serveFeed(c, metrics.FeedTasks, func(ctx context.Context, send func(any) error) error {
		return h.core.TaskFeed(ctx, namespace, taskID, func(updates []engine.TaskUpdate) error {
			return send(updates)
		})
	})
}

// WatchBuffer streams the output of a task.
func (h *Handlers) WatchBuffer(c *gin.Context) {
	namespace, taskID := c.Param("ns"), c.Param("task")
	h.serveFeed(c, metrics.FeedBuffer, func(ctx context.Context, send func(any) error) error {
		return h.core.BufferFeed(ctx, namespace, taskID, func(chunk []byte) error {
			return send(BufferFrame{Buffer: chunk})
		})
	})
}

// serveFeed upgrades the connection and pumps a feed into it until the
// peer disconnects or the request context ends.
func (h *Handlers) serveFeed(c *gin.Context, feed string, run func(ctx context.Context, send func(any) error) error) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "feed", feed, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	id := uuid.NewString()
	logger := h.logger.With("subscription", id, "feed", feed)
	logger.Debug("subscription opened", "path", c.Request.URL.Path)
	if h.metrics != nil {
		defer h.metrics.Subscribed(feed)()
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The peer never sends data frames; reading only detects the disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(v)
	}

	err = run(ctx, send)
	if err != nil {
		logger.Debug("subscription failed", "error", err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	logger.Debug("subscription closed")
}
