package engine

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/runoshun/magicbin/internal/fanout"
)

// ErrLoopStopped is returned by Call once the loop has stopped.
var ErrLoopStopped = errors.New("engine loop stopped")

// Loop runs posted functions one at a time, in posting order, on a single
// goroutine. Every mutation of tasks and controllers goes through it.
// Fields are ordered to minimize memory padding.
type Loop struct {
	logger  *slog.Logger
	wake    chan struct{}
	stopped chan struct{}
	queue   []func()
	mu      sync.Mutex
	closed  bool
}

// NewLoop creates a Loop. Functions posted before Run are kept until it starts.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post queues fn. It never blocks. Functions posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to return.
// Returns fanout.ErrCancelled if ctx ends first, or ErrLoopStopped.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-l.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return fanout.ErrCancelled
	}
}

// Run processes posted functions until ctx is done. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.stopped)
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.run(fn)
		}
		if ctx.Err() != nil {
			return nil
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in engine loop", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
