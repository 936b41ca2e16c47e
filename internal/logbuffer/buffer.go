// Package logbuffer accumulates a task's output into lines and notifies
// listeners whenever new lines complete.
package logbuffer

import "bytes"

// FlushFunc receives the lines completed by a single Write, oldest first.
// Each line keeps its terminating line feed.
type FlushFunc func(lines [][]byte)

type listener struct {
	fn FlushFunc
	id uint64
}

// Buffer retains the most recent lines of a byte stream.
//
// Retention is only enforced by SetRows: ordinary writes append without
// trimming, so the retained sequence may exceed Rows until the next resize.
//
// A Buffer is not safe for concurrent use.
// Fields are ordered to minimize memory padding.
type Buffer struct {
	lines     [][]byte
	partial   []byte
	listeners []listener
	rows      int
	nextID    uint64
}

// New creates a Buffer retaining rows lines.
func New(rows int) *Buffer {
	return &Buffer{rows: rows}
}

// Write splits p on line feeds. Every line feed closes a line (prefixed by
// any pending partial), trailing bytes become the new partial line, and the
// lines closed by this call are delivered to every listener.
func (b *Buffer) Write(p []byte) (int, error) {
	var closed [][]byte
	rest := p
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		line := make([]byte, 0, len(b.partial)+i+1)
		line = append(line, b.partial...)
		line = append(line, rest[:i+1]...)
		b.partial = nil
		closed = append(closed, line)
		rest = rest[i+1:]
	}
	if len(rest) > 0 {
		b.partial = append(b.partial, rest...)
	}

	if len(closed) == 0 {
		return len(p), nil
	}
	b.lines = append(b.lines, closed...)

	// Listeners may remove themselves while being called.
	snapshot := make([]listener, len(b.listeners))
	copy(snapshot, b.listeners)
	for _, l := range snapshot {
		if b.has(l.id) {
			l.fn(copyLines(closed))
		}
	}
	return len(p), nil
}

// SetRows changes the retention capacity and trims retained lines to the
// n most recent. Zero also discards the pending partial line.
func (b *Buffer) SetRows(n int) {
	if n < 0 {
		n = 0
	}
	b.rows = n
	if len(b.lines) > n {
		b.lines = append([][]byte(nil), b.lines[len(b.lines)-n:]...)
	}
	if n == 0 {
		b.lines = nil
		b.partial = nil
	}
}

// Clear discards retained lines. The pending partial line survives.
func (b *Buffer) Clear() {
	b.lines = nil
}

// End flushes a pending partial line and removes every listener.
func (b *Buffer) End() {
	if len(b.partial) > 0 {
		_, _ = b.Write([]byte{'\n'})
	}
	b.listeners = nil
}

// Read returns copies of the last n retained lines, oldest first.
func (b *Buffer) Read(n int) [][]byte {
	if n <= 0 {
		return [][]byte{}
	}
	if n > len(b.lines) {
		n = len(b.lines)
	}
	return copyLines(b.lines[len(b.lines)-n:])
}

// OnFlush registers fn and returns a function removing it.
func (b *Buffer) OnFlush(fn FlushFunc) (remove func()) {
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range b.listeners {
			if l.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Rows returns the retention capacity.
func (b *Buffer) Rows() int {
	return b.rows
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	return len(b.lines)
}

func (b *Buffer) has(id uint64) bool {
	for _, l := range b.listeners {
		if l.id == id {
			return true
		}
	}
	return false
}

func copyLines(lines [][]byte) [][]byte {
	out := make([][]byte, len(lines))
	for i, line := range lines {
		out[i] = append([]byte(nil), line...)
	}
	return out
}
