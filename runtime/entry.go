package runtime

import (
	"afterglow/contract"
	"afterglow/errors"
	"afterglow/mailbox"
	"afterglow/observability"
	"afterglow/view"
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type controlKind int

const (
	controlRender controlKind = iota
	controlEject
)

type control struct {
	kind controlKind
	ack  chan struct{}
}

type ejected struct {
	ack chan struct{}
}

func (ejected) Error() string {
	return errors.ErrEntryEjected.Error()
}

type rootTree interface {
	contract.RenderSource
	io.Closer
}

// Entry coordinates the render passes of one mounted tree. Render requests from
// any container of the tree are collapsed: a burst of requests arriving while a
// pass is pending or running produces at most one extra pass. Passes never run
// concurrently and none starts after an eject was acknowledged.
type Entry struct {
	id      uuid.UUID
	log     *slog.Logger
	monitor *observability.Monitor

	requests  *mailbox.Mailbox[chan struct{}]
	control   *mailbox.Mailbox[control]
	scheduled atomic.Bool

	waitersMu sync.Mutex
	waiters   []chan struct{}

	passMu sync.Mutex
	passes []*view.Context

	root   rootTree
	handle contract.Handle

	done chan struct{}
	err  error
}

func newEntry(log *slog.Logger, monitor *observability.Monitor) *Entry {
	return &Entry{
		id:       uuid.New(),
		log:      log,
		monitor:  monitor,
		requests: mailbox.New[chan struct{}](),
		control:  mailbox.New[control](),
		done:     make(chan struct{}),
	}
}

func (e *Entry) ID() uuid.UUID {
	return e.id
}

// Done is closed once the entry stopped, after its tree was torn down.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// Err tells why a stopped entry stopped: nil after an eject, the render failure
// otherwise.
func (e *Entry) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// RequestRender implements component.RenderRequester.
func (e *Entry) RequestRender() <-chan struct{} {
	rendered := make(chan struct{})
	if err := e.requests.Send(rendered); err != nil {
		close(rendered)
		return rendered
	}
	e.monitor.IncrRenderRequests()
	return rendered
}

// MessageApplied implements component.Observer.
func (e *Entry) MessageApplied(took time.Duration) {
	e.monitor.IncrMessagesApplied(took)
}

// Eject stops the entry and waits until its tree is gone. Ejecting a stopped
// entry returns as soon as its teardown is complete.
func (e *Entry) Eject(ctx context.Context) error {
	ack := make(chan struct{})
	if err := e.control.Send(control{kind: controlEject, ack: ack}); err != nil {
		select {
		case <-e.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-ack:
		e.monitor.IncrEjects()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Entry) run() {
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return e.renderLoop(ctx) })
	g.Go(func() error { return e.controlLoop(ctx) })
	err := g.Wait()

	var ej ejected
	if goerrors.As(err, &ej) {
		e.teardown(nil, ej.ack)
		return
	}
	e.teardown(err, nil)
}

// renderLoop turns render requests into at most one pending render control message.
func (e *Entry) renderLoop(ctx context.Context) error {
	for {
		rendered, err := e.requests.Recv(ctx)
		if err != nil {
			return nil
		}
		e.addWaiter(rendered)
		for {
			next, ok := e.requests.TryRecv()
			if !ok {
				break
			}
			e.addWaiter(next)
		}
		if e.scheduled.CompareAndSwap(false, true) {
			if err := e.control.Send(control{kind: controlRender}); err != nil {
				return nil
			}
		}
	}
}

func (e *Entry) controlLoop(ctx context.Context) error {
	for {
		msg, err := e.control.Recv(ctx)
		if err != nil {
			return nil
		}
		switch msg.kind {
		case controlRender:
			e.scheduled.Store(false)
			waiters := e.takeWaiters()
			err := e.renderPass(ctx)
			for _, w := range waiters {
				close(w)
			}
			if err != nil {
				return err
			}
		case controlEject:
			e.log.Info("Ejecting entry", "entry", e.id)
			return ejected{ack: msg.ack}
		}
	}
}

func (e *Entry) renderPass(ctx context.Context) error {
	start := time.Now()
	if err := e.handle.Render(ctx); err != nil {
		e.monitor.IncrRenderFailures()
		e.log.Error("Render pass failed, stopping entry", "entry", e.id, "error", err)
		return fmt.Errorf("%w: %w", errors.ErrRenderFailed, err)
	}
	e.monitor.IncrRenderPasses()
	for _, rc := range e.takePasses() {
		rc.Flush()
	}
	e.log.Debug("Render pass done", "entry", e.id, "took", time.Since(start))
	return nil
}

// teardown runs once both loops are gone. The tree is closed before the eject,
// and any eject queued meanwhile, is acknowledged.
func (e *Entry) teardown(cause error, ack chan struct{}) {
	for _, w := range e.requests.Close() {
		close(w)
	}
	var acks []chan struct{}
	if ack != nil {
		acks = append(acks, ack)
	}
	for _, msg := range e.control.Close() {
		if msg.kind == controlEject {
			acks = append(acks, msg.ack)
		}
	}
	for _, w := range e.takeWaiters() {
		close(w)
	}
	e.takePasses()

	if err := e.root.Close(); err != nil {
		e.log.Warn("Failed to close root container", "entry", e.id, "error", err)
	}
	if e.handle != nil {
		if err := e.handle.Unmount(); err != nil {
			e.log.Warn("Failed to unmount tree", "entry", e.id, "error", err)
		}
	}
	e.err = cause
	close(e.done)
	for _, a := range acks {
		close(a)
	}
	e.log.Info("Entry stopped", "entry", e.id)
}

// abort releases an entry whose loops never started.
func (e *Entry) abort() {
	for _, w := range e.requests.Close() {
		close(w)
	}
	e.control.Close()
	close(e.done)
}

func (e *Entry) addWaiter(w chan struct{}) {
	e.waitersMu.Lock()
	e.waiters = append(e.waiters, w)
	e.waitersMu.Unlock()
}

func (e *Entry) takeWaiters() []chan struct{} {
	e.waitersMu.Lock()
	defer e.waitersMu.Unlock()
	w := e.waiters
	e.waiters = nil
	return w
}

func (e *Entry) trackPass(rc *view.Context) {
	e.passMu.Lock()
	e.passes = append(e.passes, rc)
	e.passMu.Unlock()
}

func (e *Entry) takePasses() []*view.Context {
	e.passMu.Lock()
	defer e.passMu.Unlock()
	p := e.passes
	e.passes = nil
	return p
}

// rootSource is what the engine pulls trees from. It records the render context
// of each pass so the entry can run its after-render hooks once the patch landed.
type rootSource struct {
	entry *Entry
}

func (s rootSource) Render(rc *view.Context) view.Node {
	if rc == nil {
		rc = view.NewContext()
	}
	s.entry.trackPass(rc)
	return s.entry.root.Render(rc)
}
