// Package events provides asynchronous event sources that containers can listen to.
package events

import (
	"afterglow/mailbox"
	"context"
	"sync"

	"github.com/google/uuid"
)

// Source produces an unbounded sequence of events. Every subscription sees the
// events emitted after it was taken, in emission order.
type Source[E any] interface {
	Subscribe() *Subscription[E]
}

type Subscription[E any] struct {
	id    uuid.UUID
	queue *mailbox.Mailbox[E]
	stop  func(id uuid.UUID)
	once  sync.Once
}

func (s *Subscription[E]) ID() uuid.UUID {
	return s.id
}

// Recv blocks until the next event. It returns errors.ErrChannelClosed once the
// subscription or its source is closed.
func (s *Subscription[E]) Recv(ctx context.Context) (E, error) {
	return s.queue.Recv(ctx)
}

func (s *Subscription[E]) Close() error {
	s.once.Do(func() {
		s.queue.Close()
		if s.stop != nil {
			s.stop(s.id)
		}
	})
	return nil
}

// Emitter is a Source fed by Emit. Emit never blocks.
type Emitter[E any] struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription[E]
	closed bool
}

func NewEmitter[E any]() *Emitter[E] {
	return &Emitter[E]{subs: map[uuid.UUID]*Subscription[E]{}}
}

func (em *Emitter[E]) Subscribe() *Subscription[E] {
	sub := &Subscription[E]{id: uuid.New(), queue: mailbox.New[E](), stop: em.remove}
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		sub.queue.Close()
		return sub
	}
	em.subs[sub.id] = sub
	return sub
}

// Emit hands e to every live subscription and reports how many received it.
func (em *Emitter[E]) Emit(e E) int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	delivered := 0
	for _, sub := range em.subs {
		if sub.queue.Send(e) == nil {
			delivered++
		}
	}
	return delivered
}

func (em *Emitter[E]) Subscribers() int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.subs)
}

// Close ends every subscription.
func (em *Emitter[E]) Close() error {
	em.mu.Lock()
	subs := em.subs
	em.subs = map[uuid.UUID]*Subscription[E]{}
	em.closed = true
	em.mu.Unlock()
	for _, sub := range subs {
		sub.queue.Close()
	}
	return nil
}

func (em *Emitter[E]) remove(id uuid.UUID) {
	em.mu.Lock()
	delete(em.subs, id)
	em.mu.Unlock()
}
