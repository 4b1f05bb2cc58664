// Package mailbox provides the unbounded, ordered, multi-producer single-consumer
// queue every message channel of the framework is built on.
package mailbox

import (
	"afterglow/errors"
	"context"
	"sync"

	"github.com/juju/collections/deque"
)

// Mailbox is an unbounded FIFO. Send never blocks and never drops while the mailbox
// is open. Only one goroutine is expected to call Recv.
type Mailbox[E any] struct {
	mu     sync.Mutex
	queue  *deque.Deque
	notify chan struct{}
	closed bool
}

func New[E any]() *Mailbox[E] {
	return &Mailbox[E]{queue: deque.New(), notify: make(chan struct{}, 1)}
}

// Send appends e to the queue. It returns errors.ErrChannelClosed once Close was called.
func (m *Mailbox[E]) Send(e E) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.ErrChannelClosed
	}
	m.queue.PushBack(e)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
		// A wake-up is already pending
	}
	return nil
}

// Recv blocks until an element is available, the mailbox is closed or ctx is done.
func (m *Mailbox[E]) Recv(ctx context.Context) (E, error) {
	var zero E
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return zero, errors.ErrChannelClosed
		}
		if e, ok := m.pop(); ok {
			m.mu.Unlock()
			return e, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-m.notify:
		}
	}
}

// TryRecv pops the head of the queue without blocking.
func (m *Mailbox[E]) TryRecv() (E, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		var zero E
		return zero, false
	}
	return m.pop()
}

// pop takes the head of the queue. m.mu must be held.
func (m *Mailbox[E]) pop() (E, bool) {
	item, ok := m.queue.PopFront()
	if !ok {
		var zero E
		return zero, false
	}
	// A nil interface value was pushed as nil
	e, _ := item.(E)
	return e, true
}

// Close stops the mailbox and hands back everything that was never received.
// Pending and future Recv calls return errors.ErrChannelClosed. Closing twice
// returns nil.
func (m *Mailbox[E]) Close() []E {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	rest := make([]E, 0, m.queue.Len())
	for e, ok := m.pop(); ok; e, ok = m.pop() {
		rest = append(rest, e)
	}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return rest
}

func (m *Mailbox[E]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

func (m *Mailbox[E]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
