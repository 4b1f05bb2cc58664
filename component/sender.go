package component

import (
	"afterglow/errors"
	"afterglow/mailbox"
	"afterglow/view"
	"context"
	"fmt"
)

type envelope[T any] struct {
	msg Message[T]
	ack chan error
}

// Sender posts messages into a container's mailbox. It is a cheap value and can
// be copied freely; the zero Sender behaves like a closed one.
type Sender[T any] struct {
	inbox *mailbox.Mailbox[envelope[T]]
}

// Post enqueues msg without waiting for it to be applied.
func (s Sender[T]) Post(msg Message[T]) error {
	if s.inbox == nil {
		return errors.ErrChannelClosed
	}
	return s.inbox.Send(envelope[T]{msg: msg})
}

// Dispatch enqueues msg and returns once the container applied it. Anything the
// update did is visible to the caller afterwards.
func (s Sender[T]) Dispatch(ctx context.Context, msg Message[T]) error {
	if s.inbox == nil {
		return errors.ErrChannelClosed
	}
	ack := make(chan error, 1)
	if err := s.inbox.Send(envelope[T]{msg: msg, ack: ack}); err != nil {
		return err
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Sender[T]) Closed() bool {
	return s.inbox == nil || s.inbox.Closed()
}

var errDropped = fmt.Errorf("%w: %w", errors.ErrChannelClosed, errors.ErrMessageDropped)

// On adapts an event handler: every event is converted and posted to sender.
// A nil conversion result is ignored.
func On[T any](sender Sender[T], convert func(view.Event) Message[T]) view.Handler {
	return func(e view.Event) {
		if msg := convert(e); msg != nil {
			_ = sender.Post(msg)
		}
	}
}

// Send is the constant form of On.
func Send[T any](sender Sender[T], msg Message[T]) view.Handler {
	return func(view.Event) {
		_ = sender.Post(msg)
	}
}
