package runtime

import (
	"afterglow/component"
	"afterglow/errors"
	"afterglow/mailbox"
	"afterglow/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// BusStats are the delivery counters of one bus.
type BusStats struct {
	Subscribers  int
	Published    uint64
	Broadcasted  uint64
	Delivered    uint64
	Skipped      uint64
	Dangling     uint64
	QueueBacklog int
}

type publication[T any] struct {
	msg  T
	done chan struct{}
}

type subscriber[T any] interface {
	deliver(msg T) <-chan struct{}
	close()
}

// Bus broadcasts values of type T to every registered container. Publications are
// handed out one at a time: the next one starts only after every subscriber
// acknowledged the current one. Each subscriber receives publications in publish
// order. Subscribers cannot be removed; a subscriber whose container is gone
// acknowledges without effect.
type Bus[T any] struct {
	id      uuid.UUID
	log     *slog.Logger
	monitor *observability.Monitor
	ctx     context.Context
	cancel  context.CancelFunc
	inbox   *mailbox.Mailbox[publication[T]]
	stopped chan struct{}

	mu          sync.RWMutex
	subscribers []subscriber[T]

	published   atomic.Uint64
	broadcasted atomic.Uint64
	delivered   atomic.Uint64
	skipped     atomic.Uint64
	dangling    atomic.Uint64
}

func NewBus[T any](log *slog.Logger, monitor *observability.Monitor) *Bus[T] {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus[T]{
		id:      uuid.New(),
		log:     log,
		monitor: monitor,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   mailbox.New[publication[T]](),
		stopped: make(chan struct{}),
	}
	go b.broadcast()
	return b
}

func (b *Bus[T]) ID() uuid.UUID {
	return b.id
}

// Publish enqueues msg for broadcast and returns immediately.
func (b *Bus[T]) Publish(msg T) error {
	if err := b.inbox.Send(publication[T]{msg: msg}); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrBusClosed, err)
	}
	b.published.Add(1)
	b.monitor.IncrPublications()
	return nil
}

// Broadcast enqueues msg and waits until every subscriber registered when its
// turn came acknowledged it.
func (b *Bus[T]) Broadcast(ctx context.Context, msg T) error {
	done := make(chan struct{})
	if err := b.inbox.Send(publication[T]{msg: msg, done: done}); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrBusClosed, err)
	}
	b.published.Add(1)
	b.monitor.IncrPublications()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus[T]) Stats() BusStats {
	b.mu.RLock()
	n := len(b.subscribers)
	b.mu.RUnlock()
	return BusStats{
		Subscribers:  n,
		Published:    b.published.Load(),
		Broadcasted:  b.broadcasted.Load(),
		Delivered:    b.delivered.Load(),
		Skipped:      b.skipped.Load(),
		Dangling:     b.dangling.Load(),
		QueueBacklog: b.inbox.Len(),
	}
}

// Close stops the broadcaster and every subscriber proxy. Pending publications
// are dropped; their Broadcast callers are released.
func (b *Bus[T]) Close() error {
	for _, p := range b.inbox.Close() {
		if p.done != nil {
			close(p.done)
		}
	}
	b.cancel()
	<-b.stopped

	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	return nil
}

func (b *Bus[T]) add(s subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		s.close()
		return
	}
	b.subscribers = append(b.subscribers, s)
}

func (b *Bus[T]) broadcast() {
	defer close(b.stopped)
	for {
		p, err := b.inbox.Recv(b.ctx)
		if err != nil {
			return
		}
		b.mu.RLock()
		subs := append([]subscriber[T](nil), b.subscribers...)
		b.mu.RUnlock()

		acks := lo.Map(subs, func(s subscriber[T], _ int) <-chan struct{} {
			return s.deliver(p.msg)
		})
		for _, ack := range acks {
			select {
			case <-ack:
			case <-b.ctx.Done():
			}
		}
		b.broadcasted.Add(1)
		if p.done != nil {
			close(p.done)
		}
	}
}

type delivery[T any] struct {
	msg T
	ack chan struct{}
}

// proxy forwards publications to one container, translated into its own message type.
type proxy[T, A any] struct {
	bus       *Bus[T]
	target    component.Sender[A]
	translate func(T) component.Message[A]
	queue     *mailbox.Mailbox[delivery[T]]
}

func (p *proxy[T, A]) deliver(msg T) <-chan struct{} {
	ack := make(chan struct{})
	if err := p.queue.Send(delivery[T]{msg: msg, ack: ack}); err != nil {
		close(ack)
	}
	return ack
}

func (p *proxy[T, A]) close() {
	for _, d := range p.queue.Close() {
		close(d.ack)
	}
}

func (p *proxy[T, A]) run() {
	for {
		d, err := p.queue.Recv(p.bus.ctx)
		if err != nil {
			return
		}
		p.forward(d.msg)
		close(d.ack)
	}
}

func (p *proxy[T, A]) forward(msg T) {
	m, ok := p.safeTranslate(msg)
	if !ok || m == nil {
		p.bus.skipped.Add(1)
		p.bus.monitor.IncrSkippedDeliveries()
		return
	}
	if err := p.target.Dispatch(p.bus.ctx, m); err != nil {
		p.bus.dangling.Add(1)
		p.bus.monitor.IncrDanglingDeliveries()
		p.bus.log.Debug("Subscriber gone, delivery acknowledged without effect", "bus", p.bus.id, "error", err)
		return
	}
	p.bus.delivered.Add(1)
	p.bus.monitor.IncrDeliveries()
}

func (p *proxy[T, A]) safeTranslate(msg T) (m component.Message[A], ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.bus.log.Error("Bus translation panicked", "bus", p.bus.id, "error", fmt.Errorf("%w: %v", errors.ErrHookPanic, r))
			ok = false
		}
	}()
	return p.translate(msg), true
}

// Register subscribes target to b. Each publication is translated into a message
// for target; a nil translation opts out of that publication.
func Register[T, A any](b *Bus[T], target component.Sender[A], translate func(T) component.Message[A]) {
	p := &proxy[T, A]{
		bus:       b,
		target:    target,
		translate: translate,
		queue:     mailbox.New[delivery[T]](),
	}
	go p.run()
	b.add(p)
}

// Into is implemented by broadcast values that know how to become a message for A.
type Into[A any] interface {
	Into() component.Message[A]
}

// RegisterInto subscribes target using the Into conversion of the broadcast type.
func RegisterInto[A any, T Into[A]](b *Bus[T], target component.Sender[A]) {
	Register(b, target, func(msg T) component.Message[A] { return msg.Into() })
}
