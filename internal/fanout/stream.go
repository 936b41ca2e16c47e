package fanout

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by a wait interrupted by its context.
var ErrCancelled = errors.New("cancelled")

// Stream buffers the notifications of one Signal listener.
// Fields are ordered to minimize memory padding.
type Stream[T any] struct {
	remove func()
	ready  chan struct{}
	queue  []T
	once   sync.Once
	mu     sync.Mutex
}

// Watch subscribes a new Stream to sig. The caller must Close it.
func Watch[T any](sig *Signal[T]) *Stream[T] {
	s := &Stream[T]{ready: make(chan struct{}, 1)}
	s.remove = sig.Add(s.push)
	return s
}

func (s *Stream[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next waits until at least one notification is buffered and returns every
// notification accumulated since the previous call.
// Returns ErrCancelled if ctx is done first.
func (s *Stream[T]) Next(ctx context.Context) ([]T, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()
			return batch, nil
		}
		s.mu.Unlock()

		if err := Race(ctx, s.ready); err != nil {
			return nil, err
		}
	}
}

// Each pumps batches into fn until ctx is cancelled or fn fails.
// Cancellation, including an ErrCancelled returned by fn, ends the stream
// cleanly with a nil error. The stream is
// closed when Each returns.
func (s *Stream[T]) Each(ctx context.Context, fn func([]T) error) error {
	defer s.Close()

	for {
		batch, err := s.Next(ctx)
		if errors.Is(err, ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			if errors.Is(err, ErrCancelled) {
				return nil
			}
			return err
		}
	}
}

// Close deregisters the stream's listener. Safe to call more than once.
func (s *Stream[T]) Close() {
	s.once.Do(s.remove)
}

// Race waits for ch to become readable or ctx to be done, whichever
// happens first. Returns ErrCancelled on cancellation.
func Race[T any](ctx context.Context, ch <-chan T) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}
