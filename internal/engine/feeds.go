package engine

import (
	"bytes"
	"context"
	"errors"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/fanout"
)

// TailSnapshotLines is the number of lines a new buffer feed starts with.
const TailSnapshotLines = 100

// Feed element types, shared with clients.
type (
	Pointer         = domain.Pointer
	NamespaceUpdate = domain.NamespaceUpdate
	TaskUpdate      = domain.TaskUpdate
)

// NamespaceFeed sends the current namespaces, then batches of updated
// namespaces, to fn until ctx is done. An empty filter selects every
// namespace.
func (c *Core) NamespaceFeed(ctx context.Context, filter string, fn func([]NamespaceUpdate) error) error {
	match := func(ns string) bool { return filter == "" || ns == filter }

	stream := fanout.Watch(c.namespaceUpdated)
	defer stream.Close()

	var snapshot []NamespaceUpdate
	err := c.loop.Call(ctx, func() {
		snapshot = []NamespaceUpdate{}
		for _, ns := range c.Namespaces() {
			if match(ns) {
				snapshot = append(snapshot, c.namespaceUpdate(ns))
			}
		}
	})
	if err != nil {
		return cancelledAsNil(err)
	}

	if err := fn(snapshot); err != nil {
		return cancelledAsNil(err)
	}

	return stream.Each(ctx, func(batch []string) error {
		ids := dedupe(batch, match)
		if len(ids) == 0 {
			return nil
		}
		var updates []NamespaceUpdate
		if err := c.loop.Call(ctx, func() {
			for _, ns := range ids {
				updates = append(updates, c.namespaceUpdate(ns))
			}
		}); err != nil {
			return err
		}
		return fn(updates)
	})
}

func (c *Core) namespaceUpdate(ns string) NamespaceUpdate {
	u := NamespaceUpdate{Pointer: Pointer{ID: ns}}
	if ctrl := c.TryController(ns); ctrl != nil {
		info := ctrl.Info()
		u.Entity = &info
	}
	return u
}

// TaskFeed sends the current tasks of namespace, then batches of updated
// tasks, to fn until ctx is done. An empty taskID selects every task of
// the namespace. No snapshot is sent for an unknown namespace.
func (c *Core) TaskFeed(ctx context.Context, namespace, taskID string, fn func([]TaskUpdate) error) error {
	match := func(id string) bool { return taskID == "" || id == taskID }

	stream := fanout.Watch(c.taskUpdated)
	defer stream.Close()

	var snapshot []TaskUpdate
	err := c.loop.Call(ctx, func() {
		ctrl := c.TryController(namespace)
		if ctrl == nil {
			return
		}
		snapshot = []TaskUpdate{}
		for _, task := range ctrl.Tasks() {
			if match(task.id) {
				info := task.Info()
				snapshot = append(snapshot, TaskUpdate{Pointer: Pointer{ID: task.id}, Entity: &info})
			}
		}
	})
	if err != nil {
		return cancelledAsNil(err)
	}

	if snapshot != nil {
		if err := fn(snapshot); err != nil {
			return cancelledAsNil(err)
		}
	}

	return stream.Each(ctx, func(batch []TaskEvent) error {
		var relevant []string
		for _, ev := range batch {
			if ev.Namespace == namespace {
				relevant = append(relevant, ev.TaskID)
			}
		}
		ids := dedupe(relevant, match)
		if len(ids) == 0 {
			return nil
		}
		var updates []TaskUpdate
		if err := c.loop.Call(ctx, func() {
			ctrl := c.TryController(namespace)
			for _, id := range ids {
				u := TaskUpdate{Pointer: Pointer{ID: id}}
				if ctrl != nil {
					if task := ctrl.TryTask(id); task != nil {
						info := task.Info()
						u.Entity = &info
					}
				}
				updates = append(updates, u)
			}
		}); err != nil {
			return err
		}
		return fn(updates)
	})
}

// BufferFeed sends the last TailSnapshotLines output lines of a task, then
// every newly completed chunk of output, to fn until ctx is done.
func (c *Core) BufferFeed(ctx context.Context, namespace, taskID string, fn func([]byte) error) error {
	stream := fanout.Watch(c.taskLogFlushed)
	defer stream.Close()

	var snapshot []byte
	err := c.loop.Call(ctx, func() {
		if ctrl := c.TryController(namespace); ctrl != nil {
			if task := ctrl.TryTask(taskID); task != nil {
				snapshot = bytes.Join(task.Tail(TailSnapshotLines), nil)
				if snapshot == nil {
					snapshot = []byte{}
				}
			}
		}
	})
	if err != nil {
		return cancelledAsNil(err)
	}

	if snapshot != nil {
		if err := fn(snapshot); err != nil {
			return cancelledAsNil(err)
		}
	}

	return stream.Each(ctx, func(batch []LogEvent) error {
		var buf bytes.Buffer
		for _, ev := range batch {
			if ev.Namespace != namespace || ev.TaskID != taskID {
				continue
			}
			for _, line := range ev.Lines {
				buf.Write(line)
			}
		}
		if buf.Len() == 0 {
			return nil
		}
		return fn(buf.Bytes())
	})
}

// dedupe keeps the first occurrence of every matching id, in order.
func dedupe(ids []string, match func(string) bool) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if !match(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cancelledAsNil(err error) error {
	if errors.Is(err, fanout.ErrCancelled) {
		return nil
	}
	return err
}
