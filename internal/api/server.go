package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runoshun/magicbin/internal/engine"
)

// Shutdown timeouts.
const (
	DefaultHTTPShutdown = 5 * time.Second
	// DefaultStopTimeout bounds how long tasks get to exit before their
	// process groups are killed.
	DefaultStopTimeout = 10 * time.Second
)

// Server runs the engine loop and the HTTP server as one unit.
// Fields are ordered to minimize memory padding.
type Server struct {
	core         *engine.Core
	handler      http.Handler
	logger       *slog.Logger
	addr         string
	httpShutdown time.Duration
	stopTimeout  time.Duration
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, core *engine.Core, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		core:         core,
		handler:      handler,
		logger:       logger,
		addr:         addr,
		httpShutdown: DefaultHTTPShutdown,
		stopTimeout:  DefaultStopTimeout,
	}
}

// WithStopTimeout overrides DefaultStopTimeout.
func (s *Server) WithStopTimeout(d time.Duration) *Server {
	s.stopTimeout = d
	return s
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or the HTTP server fails. On the
// way out every task is stopped and leftover process groups are killed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// The loop outlives ctx so that shutdown can still stop tasks through it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	// Cancelling the base context ends hijacked websocket feeds, which
	// http.Server.Shutdown does not track.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.core.Run(loopCtx)
	})

	g.Go(func() error {
		s.logger.Info("daemon listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("daemon shutting down")

		cancelBase()
		httpCtx, cancel := context.WithTimeout(context.Background(), s.httpShutdown)
		defer cancel()
		if err := srv.Shutdown(httpCtx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}

		stopCtx, cancelStop := context.WithTimeout(context.Background(), s.stopTimeout)
		defer cancelStop()
		s.core.Shutdown(stopCtx)

		stopLoop()
		return nil
	})

	return g.Wait()
}
