package component

import (
	"afterglow/errors"
	"afterglow/events"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Scope is what lifecycle hooks see of their container: its sender, the render
// requester of its tree, and the resources it owns. Owned resources are closed in
// reverse order when the container is torn down.
type Scope[T any] struct {
	id     uuid.UUID
	log    *slog.Logger
	sender Sender[T]
	render RenderRequester
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	owned  []io.Closer
	closed bool
}

func newScope[T any](id uuid.UUID, log *slog.Logger, sender Sender[T], render RenderRequester) *Scope[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope[T]{id: id, log: log, sender: sender, render: render, ctx: ctx, cancel: cancel}
}

func (s *Scope[T]) ID() uuid.UUID {
	return s.id
}

func (s *Scope[T]) Sender() Sender[T] {
	return s.sender
}

func (s *Scope[T]) Render() RenderRequester {
	return s.render
}

func (s *Scope[T]) Logger() *slog.Logger {
	return s.log
}

// Context is done once the container is torn down.
func (s *Scope[T]) Context() context.Context {
	return s.ctx
}

// Own ties closers to the container lifetime. On an already closed scope they
// are closed immediately.
func (s *Scope[T]) Own(closers ...io.Closer) {
	s.mu.Lock()
	if !s.closed {
		s.owned = append(s.owned, closers...)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	for _, c := range closers {
		s.closeOne(c)
	}
}

func (s *Scope[T]) close() {
	s.mu.Lock()
	owned := s.owned
	s.owned = nil
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	for i := len(owned) - 1; i >= 0; i-- {
		s.closeOne(owned[i])
	}
}

func (s *Scope[T]) closeOne(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		s.log.Warn("Failed to release owned resource", "container", s.id, "error", err)
	}
}

// Child creates a container sharing the render requester and logger of the scope
// and owned by it.
func Child[T, C any](s *Scope[T], state C, renderer Renderer[C]) *Container[C] {
	child := New(s.log, state, renderer, s.render)
	s.Own(child)
	return child
}

// Listen forwards every event of src into the container as the message returned
// by translate. A nil message is skipped. The subscription ends with the container.
func Listen[E, T any](s *Scope[T], src events.Source[E], translate func(E) Message[T]) *events.Subscription[E] {
	sub := src.Subscribe()
	s.Own(sub)
	go func() {
		for {
			e, err := sub.Recv(s.ctx)
			if err != nil {
				return
			}
			msg, ok := s.translate(func() Message[T] { return translate(e) })
			if !ok || msg == nil {
				continue
			}
			if s.sender.Post(msg) != nil {
				return
			}
		}
	}()
	return sub
}

func (s *Scope[T]) translate(fn func() Message[T]) (msg Message[T], ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Event translation panicked", "container", s.id, "error", fmt.Errorf("%w: %v", errors.ErrHookPanic, r))
			ok = false
		}
	}()
	return fn(), true
}
