package client

import (
	"context"
	"errors"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/runoshun/magicbin/internal/api"
	"github.com/runoshun/magicbin/internal/domain"
)

// WatchNamespaces calls fn with batches of namespace updates. An empty
// filter watches every namespace.
func (c *Client) WatchNamespaces(ctx context.Context, filter string, fn func([]domain.NamespaceUpdate) error) error {
	path := "/api/ws/namespaces"
	if filter != "" {
		path += "?namespace=" + url.QueryEscape(filter)
	}
	return watch(ctx, c, path, fn)
}

// WatchTasks implements domain.Daemon.
func (c *Client) WatchTasks(ctx context.Context, namespace, taskID string, fn func([]domain.TaskUpdate) error) error {
	path := "/api/ws/namespaces/" + url.PathEscape(namespace) + "/tasks"
	if taskID != "" {
		path += "?task=" + url.QueryEscape(taskID)
	}
	return watch(ctx, c, path, fn)
}

// WatchBuffer implements domain.Daemon.
func (c *Client) WatchBuffer(ctx context.Context, namespace, taskID string, fn func([]byte) error) error {
	path := "/api/ws/namespaces/" + url.PathEscape(namespace) + "/tasks/" + url.PathEscape(taskID) + "/buffer"
	return watch(ctx, c, path, func(frame api.BufferFrame) error {
		return fn(frame.Buffer)
	})
}

// watch reads JSON frames from a feed until ctx is done, fn fails or the
// daemon closes the feed.
func watch[T any](ctx context.Context, c *Client, path string, fn func(T) error) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.resolve(path, "ws"), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return unavailable(err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var frame T
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return domain.ErrDaemonUnavailable
			}
			return unavailable(err)
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
