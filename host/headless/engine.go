package headless

import (
	"afterglow/contract"
	"afterglow/errors"
	"afterglow/view"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Engine renders trees into headless elements, one element per mounted tree.
type Engine struct {
	log *slog.Logger

	passes   atomic.Int64
	inFlight atomic.Int64
	overlap  atomic.Int64

	mu       sync.Mutex
	delay    time.Duration
	failNext error
	onRender []func(mountID string, tree view.Node)
}

var _ contract.Engine = (*Engine)(nil)

func NewEngine(log *slog.Logger) *Engine {
	return &Engine{log: log}
}

// SetDelay makes every patch take at least d.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	e.delay = d
	e.mu.Unlock()
}

// FailNext makes the next render pass return err.
func (e *Engine) FailNext(err error) {
	e.mu.Lock()
	e.failNext = err
	e.mu.Unlock()
}

// OnRender registers fn to be called after every applied patch.
func (e *Engine) OnRender(fn func(mountID string, tree view.Node)) {
	e.mu.Lock()
	e.onRender = append(e.onRender, fn)
	e.mu.Unlock()
}

func (e *Engine) Passes() int64 {
	return e.passes.Load()
}

// Overlaps counts the patches that started while another one was running.
func (e *Engine) Overlaps() int64 {
	return e.overlap.Load()
}

func (e *Engine) Mount(mp contract.MountPoint, src contract.RenderSource) (contract.Handle, error) {
	el, ok := mp.(*Element)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a headless element", errors.ErrMountPoint, mp)
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.mounted {
		return nil, fmt.Errorf("%w: %q already hosts a tree", errors.ErrMountPoint, el.id)
	}
	el.mounted = true
	return &handle{engine: e, el: el, src: src}, nil
}

type handle struct {
	engine *Engine
	el     *Element
	src    contract.RenderSource
	gone   atomic.Bool
}

func (h *handle) Render(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.gone.Load() {
		return fmt.Errorf("%w: %q unmounted", errors.ErrMountPoint, h.el.id)
	}
	if h.engine.inFlight.Add(1) > 1 {
		h.engine.overlap.Add(1)
	}
	defer h.engine.inFlight.Add(-1)

	h.engine.mu.Lock()
	delay, failure := h.engine.delay, h.engine.failNext
	h.engine.failNext = nil
	hooks := slices.Clone(h.engine.onRender)
	h.engine.mu.Unlock()

	if failure != nil {
		return failure
	}
	tree := h.src.Render(view.NewContext())
	if delay > 0 {
		time.Sleep(delay)
	}
	h.el.patch(tree)
	h.engine.passes.Add(1)
	for _, fn := range hooks {
		fn(h.el.id, tree)
	}
	return nil
}

func (h *handle) Unmount() error {
	if h.gone.CompareAndSwap(false, true) {
		h.el.reset()
	}
	return nil
}
