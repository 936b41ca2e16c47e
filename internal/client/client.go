// Package client talks to a running magicbin daemon over HTTP and websockets.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/runoshun/magicbin/internal/api"
	"github.com/runoshun/magicbin/internal/domain"
)

// Ensure Client implements domain.Daemon.
var _ domain.Daemon = (*Client)(nil)

// Client is an API client for the daemon.
type Client struct {
	http    *http.Client
	dialer  *websocket.Dialer
	baseURL *url.URL
}

// New creates a Client for the daemon listening on addr (host:port or URL).
func New(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse daemon address: %w", err)
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		baseURL: u,
	}, nil
}

// URL returns the daemon base URL.
func (c *Client) URL() string {
	return c.baseURL.String()
}

// Health reports whether the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Sync implements domain.Daemon.
func (c *Client) Sync(ctx context.Context, path string) (*domain.SyncResult, error) {
	var out domain.SyncResult
	if err := c.do(ctx, http.MethodPost, "/api/sync", api.SyncRequest{Path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Namespace implements domain.Daemon.
func (c *Client) Namespace(ctx context.Context, namespace string) (*domain.NamespaceInfo, error) {
	var out *domain.NamespaceInfo
	err := c.do(ctx, http.MethodGet, "/api/namespaces/"+url.PathEscape(namespace), nil, &out)
	if errors.Is(err, domain.ErrNamespaceNotFound) {
		return nil, nil
	}
	return out, err
}

// Tasks implements domain.Daemon.
func (c *Client) Tasks(ctx context.Context, namespace string) ([]domain.TaskInfo, error) {
	var out []domain.TaskInfo
	if err := c.do(ctx, http.MethodGet, taskPath(namespace, ""), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Task implements domain.Daemon.
func (c *Client) Task(ctx context.Context, namespace, taskID string) (*domain.TaskInfo, error) {
	var out *domain.TaskInfo
	err := c.do(ctx, http.MethodGet, taskPath(namespace, taskID), nil, &out)
	if errors.Is(err, domain.ErrNamespaceNotFound) || errors.Is(err, domain.ErrTaskNotFound) {
		return nil, nil
	}
	return out, err
}

// Tail implements domain.Daemon.
func (c *Client) Tail(ctx context.Context, namespace, taskID string, lines int) ([]byte, error) {
	path := taskPath(namespace, taskID) + "/tail?lines=" + strconv.Itoa(lines)
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, path, nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ApplyNamespaceAction implements domain.Daemon.
func (c *Client) ApplyNamespaceAction(ctx context.Context, namespace string, action domain.NamespaceAction) error {
	path := "/api/namespaces/" + url.PathEscape(namespace) + "/actions"
	return c.do(ctx, http.MethodPost, path, api.NamespaceActionRequest{Action: action}, nil)
}

// ApplyTaskAction implements domain.Daemon.
func (c *Client) ApplyTaskAction(ctx context.Context, namespace, taskID string, action domain.TaskAction) error {
	return c.do(ctx, http.MethodPost, taskPath(namespace, taskID)+"/actions", api.TaskActionRequest{Action: action}, nil)
}

// Confirm implements domain.Daemon.
func (c *Client) Confirm(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/confirm", api.ConfirmRequest{Token: token}, nil)
}

func taskPath(namespace, taskID string) string {
	p := "/api/namespaces/" + url.PathEscape(namespace) + "/tasks"
	if taskID != "" {
		p += "/" + url.PathEscape(taskID)
	}
	return p
}

// do sends a request and decodes the response into out. out may be nil, a
// *bytes.Buffer for raw bodies, or a JSON target.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, "http"), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp.StatusCode, data)
	}

	switch target := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		target.Write(data)
		return nil
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

// resolve builds an absolute URL for path using scheme ("http" or "ws").
func (c *Client) resolve(path, scheme string) string {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	u := c.baseURL.ResolveReference(ref)
	if scheme == "ws" {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
	}
	return u.String()
}

// responseError maps an API error response onto the domain errors.
func responseError(status int, body []byte) error {
	var resp api.ErrorResponse
	_ = json.Unmarshal(body, &resp)
	msg := resp.Error

	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = domain.ErrNamespaceNotFound
		if strings.Contains(msg, domain.ErrTaskNotFound.Error()) {
			sentinel = domain.ErrTaskNotFound
		}
	case http.StatusBadRequest:
		switch {
		case strings.Contains(msg, domain.ErrUnknownAction.Error()):
			sentinel = domain.ErrUnknownAction
		case strings.Contains(msg, domain.ErrInvalidToken.Error()):
			sentinel = domain.ErrInvalidToken
		case strings.Contains(msg, domain.ErrConfigNotFound.Error()):
			sentinel = domain.ErrConfigNotFound
		default:
			sentinel = domain.ErrInvalidConfig
		}
	case http.StatusServiceUnavailable:
		sentinel = domain.ErrDaemonUnavailable
	default:
		return fmt.Errorf("daemon returned %d: %s", status, msg)
	}

	if msg == "" || msg == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, strings.TrimPrefix(msg, sentinel.Error()+": "))
}

func unavailable(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %w", domain.ErrDaemonUnavailable, err)
	}
	return fmt.Errorf("request daemon: %w", err)
}
