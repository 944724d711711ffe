// Package framebuf hands the latest processed frame from the pipeline worker
// to HTTP readers.
package framebuf

import (
	"sync"
	"time"
)

// Mailbox is a single-slot buffer. Store overwrites whatever is there and
// never waits for a reader; TryRead returns the latest value without
// consuming it. Readers may see the same value twice and may miss values
// stored between two reads.
type Mailbox[T any] struct {
	mu     sync.Mutex
	value  T
	seq    uint64
	notify chan struct{}
}

// NewMailbox returns an empty Mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{})}
}

// Store replaces the buffered value and wakes any Wait callers.
func (m *Mailbox[T]) Store(v T) {
	m.mu.Lock()
	m.value = v
	m.seq++
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()
}

// TryRead returns the buffered value and its sequence number. ok is false
// until the first Store.
func (m *Mailbox[T]) TryRead() (v T, seq uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.seq, m.seq > 0
}

// Changed returns a channel closed by the next Store after seq. If a newer
// value is already buffered the returned channel is closed.
func (m *Mailbox[T]) Changed(seq uint64) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq > seq {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.notify
}

// Frame is an annotated, JPEG-encoded cycle output.
type Frame struct {
	JPEG     []byte
	CycleID  string
	Captured time.Time
}
