package component

import (
	"afterglow/errors"
	"afterglow/mailbox"
	"afterglow/view"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Container owns a state value and the single consumer applying messages to it.
// Messages are applied one at a time, in the order they were sent. Renders never
// wait for the state: a busy state renders as a placeholder.
type Container[T any] struct {
	id       uuid.UUID
	log      *slog.Logger
	mu       sync.Mutex
	state    T
	renderer Renderer[T]
	render   RenderRequester
	inbox    *mailbox.Mailbox[envelope[T]]
	scope    *Scope[T]
	stopped  chan struct{}
	closing  sync.Once
}

// New starts a container. The Mounted hook, when implemented, runs before New
// returns; messages it posts are processed once the consumer is running. The
// consumer asks for an initial render first.
func New[T any](log *slog.Logger, state T, renderer Renderer[T], render RenderRequester) *Container[T] {
	if log == nil {
		log = slog.Default()
	}
	c := &Container[T]{
		id:       uuid.New(),
		log:      log,
		state:    state,
		renderer: renderer,
		render:   render,
		inbox:    mailbox.New[envelope[T]](),
		stopped:  make(chan struct{}),
	}
	c.scope = newScope(c.id, log, Sender[T]{inbox: c.inbox}, render)

	if hook, ok := any(&c.state).(Mounter[T]); ok {
		c.safely("mounted", func() { hook.Mounted(c.scope) })
	}
	go c.consume()
	return c
}

func (c *Container[T]) ID() uuid.UUID {
	return c.id
}

func (c *Container[T]) Sender() Sender[T] {
	return c.scope.sender
}

// Done is closed once the consumer stopped.
func (c *Container[T]) Done() <-chan struct{} {
	return c.stopped
}

// Read gives fn a view of the state under the state lock. fn must not keep the
// pointer nor mutate through it.
func (c *Container[T]) Read(fn func(state *T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
}

// Render returns the view of the current state, or a placeholder when the state
// is locked by a message being applied.
func (c *Container[T]) Render(rc *view.Context) view.Node {
	if !c.mu.TryLock() {
		return view.Placeholder()
	}
	defer c.mu.Unlock()
	if c.renderer == nil {
		return view.Placeholder()
	}
	if hook, ok := any(&c.state).(RenderedNotifier[T]); ok {
		rc.AfterRender(func() { c.rendered(hook) })
	}
	return c.renderer.View(&c.state, rc, c.scope.sender)
}

// Close tears the container down: the mailbox stops accepting messages, messages
// still queued are acknowledged as dropped, the consumer is awaited, the Destroyed
// hook runs, and owned resources are closed. Close must not be called from a
// message applied by this same container.
func (c *Container[T]) Close() error {
	if c == nil {
		return nil
	}
	c.closing.Do(func() {
		dropped := c.inbox.Close()
		for _, env := range dropped {
			if env.ack != nil {
				env.ack <- errDropped
			}
		}
		if len(dropped) > 0 {
			c.log.Warn("Dropped pending messages at teardown", "container", c.id, "count", len(dropped))
		}
		<-c.stopped
		c.destroyed()
		c.scope.close()
		c.log.Debug("Container closed", "container", c.id)
	})
	return nil
}

func (c *Container[T]) consume() {
	defer close(c.stopped)
	requestRender(c.render)

	observer, _ := c.render.(Observer)
	for {
		env, err := c.inbox.Recv(context.Background())
		if err != nil {
			return
		}
		start := time.Now()
		rerender := c.apply(env.msg)
		if env.ack != nil {
			env.ack <- nil
		}
		if observer != nil {
			observer.MessageApplied(time.Since(start))
		}
		if rerender {
			requestRender(c.render)
		}
	}
}

func (c *Container[T]) apply(msg Message[T]) (rerender bool) {
	if msg == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Message update panicked", "container", c.id, "error", fmt.Errorf("%w: %v", errors.ErrMessagePanic, r))
			rerender = false
		}
	}()
	return msg.Update(&c.state, c.scope.sender, c.render)
}

func (c *Container[T]) rendered(hook RenderedNotifier[T]) {
	if !c.mu.TryLock() {
		c.log.Debug("State busy after render, skipping rendered hook", "container", c.id)
		return
	}
	defer c.mu.Unlock()
	c.safely("rendered", func() { hook.Rendered(c.scope) })
}

func (c *Container[T]) destroyed() {
	hook, ok := any(&c.state).(Destroyer[T])
	if !ok {
		return
	}
	if !c.mu.TryLock() {
		c.log.Warn("State busy at teardown, skipping destroyed hook", "container", c.id)
		return
	}
	defer c.mu.Unlock()
	c.safely("destroyed", func() { hook.Destroyed(c.scope) })
}

func (c *Container[T]) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Lifecycle hook panicked", "container", c.id, "hook", name, "error", fmt.Errorf("%w: %v", errors.ErrHookPanic, r))
		}
	}()
	fn()
}
