package runtime

import (
	"afterglow/component"
	"afterglow/contract"
	"afterglow/domain"
	"afterglow/mailbox"
	"afterglow/view"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

// Routable mounts a fresh root for a route.
type Routable interface {
	Serve(stage Stage, tag string) (*Entry, error)
}

type route[T any] struct {
	init     func(render component.RenderRequester) T
	renderer component.Renderer[T]
}

// Route pairs the constructor of a root state with its default renderer.
func Route[T any](init func(render component.RenderRequester) T, renderer component.Renderer[T]) Routable {
	return route[T]{init: init, renderer: renderer}
}

func (r route[T]) Serve(stage Stage, tag string) (*Entry, error) {
	return InitApp(stage, tag, r.init, r.renderer)
}

// Router maps paths to routes and keeps exactly one route mounted. Switching
// routes ejects the mounted entry, waits for its acknowledgement, then mounts the
// new one.
type Router struct {
	stage   Stage
	log     *slog.Logger
	tag     string
	initial string
	restore []byte
	events  *mailbox.Mailbox[domain.RouteEvent]
	started atomic.Bool

	routing sync.Mutex

	mu     sync.RWMutex
	routes map[string]Routable
	entry  *Entry
	path   string
}

// NewRouter creates a router mounting its routes at the element identified by tag.
func NewRouter(stage Stage, tag string) *Router {
	return &Router{
		stage:  stage,
		log:    stage.logger(),
		tag:    tag,
		events: mailbox.New[domain.RouteEvent](),
		routes: map[string]Routable{},
	}
}

// At registers route under path, replacing any previous route for it.
func (r *Router) At(path string, route Routable) *Router {
	r.mu.Lock()
	r.routes[path] = route
	r.mu.Unlock()
	return r
}

// WithInitialPath sets the path navigated to when handling starts.
func (r *Router) WithInitialPath(path string) *Router {
	r.initial = path
	return r
}

// WithRestoredState starts handling from a navigation state already recorded in
// the history. It is routed like a popstate, so nothing is pushed again. It takes
// precedence over the initial path.
func (r *Router) WithRestoredState(state []byte) *Router {
	r.restore = append([]byte(nil), state...)
	return r
}

func (r *Router) Paths() []string {
	r.mu.RLock()
	paths := lo.Keys(r.routes)
	r.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

// Current returns the mounted path and entry, if any.
func (r *Router) Current() (string, *Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path, r.entry, r.entry != nil
}

// Navigate queues a manual navigation. It implements contract.Navigator.
func (r *Router) Navigate(path string) error {
	return r.events.Send(domain.ManualRoute(path))
}

// Routing mounts the route registered for path at tag. An unknown path leaves
// the mounted route in place and returns false. Navigating to the mounted path
// remounts it.
func (r *Router) Routing(ctx context.Context, path, tag string) (bool, error) {
	r.routing.Lock()
	defer r.routing.Unlock()

	r.mu.RLock()
	target, ok := r.routes[path]
	old := r.entry
	r.mu.RUnlock()
	if !ok {
		r.stage.Monitor.IncrRouteMisses()
		r.log.Info("No route for path", "path", path)
		return false, nil
	}

	if old != nil {
		if err := old.Eject(ctx); err != nil {
			return false, fmt.Errorf("eject %q: %w", r.currentPath(), err)
		}
		r.mu.Lock()
		r.entry, r.path = nil, ""
		r.mu.Unlock()
	}

	entry, err := target.Serve(r.stage, tag)
	if err != nil {
		return false, fmt.Errorf("serve %q: %w", path, err)
	}
	r.mu.Lock()
	r.entry, r.path = entry, path
	r.mu.Unlock()

	r.stage.Monitor.IncrRouteSwitches()
	r.log.Info("Route mounted", "path", path, "entry", entry.ID())
	return true, nil
}

// Handling processes navigation events until ctx is done. The first run starts
// with the restored state when there is one, a manual navigation to the initial
// path otherwise. Manual navigations that mounted a
// route are pushed onto the history; native ones only reroute.
func (r *Router) Handling(ctx context.Context, tag string) error {
	history := r.stage.Host.History()
	popStates := history.PopStates()
	defer popStates.Close()

	go func() {
		for {
			state, err := popStates.Recv(ctx)
			if err != nil {
				return
			}
			if r.events.Send(domain.NativeRoute(state)) != nil {
				return
			}
		}
	}()

	if r.started.CompareAndSwap(false, true) {
		if err := r.start(); err != nil {
			return err
		}
	}

	for {
		ev, err := r.events.Recv(ctx)
		if err != nil {
			// Context done or router closed
			return nil
		}
		r.handle(ctx, history, ev, tag)
	}
}

func (r *Router) start() error {
	if r.restore != nil {
		return r.events.Send(domain.NativeRoute(r.restore))
	}
	return r.Navigate(r.initial)
}

// Run implements contract.Worker.
func (r *Router) Run(ctx context.Context) error {
	return r.Handling(ctx, r.tag)
}

func (r *Router) handle(ctx context.Context, history contract.History, ev domain.RouteEvent, tag string) {
	switch ev.Kind {
	case domain.RouteNative:
		state, err := domain.DecodeNavState(ev.State)
		if err != nil {
			r.log.Warn("Ignoring native navigation", "error", err)
			return
		}
		r.log.Info("Browser routing", "path", state.Path)
		if _, err := r.Routing(ctx, state.Path, tag); err != nil {
			r.log.Error("Routing failed", "path", state.Path, "error", err)
		}
	case domain.RouteManual:
		r.log.Info("Manual routing", "path", ev.Path)
		ok, err := r.Routing(ctx, ev.Path, tag)
		if err != nil {
			r.log.Error("Routing failed", "path", ev.Path, "error", err)
			return
		}
		if !ok {
			return
		}
		state, err := domain.NavState{Path: ev.Path}.Encode()
		if err != nil {
			r.log.Error("Failed to encode navigation state", "path", ev.Path, "error", err)
			return
		}
		if err := history.PushState(state, ev.Path); err != nil {
			r.log.Warn("Failed to push history state", "path", ev.Path, "error", err)
		}
	}
}

// Close ejects the mounted route and stops accepting navigations.
func (r *Router) Close(ctx context.Context) error {
	r.events.Close()
	r.routing.Lock()
	defer r.routing.Unlock()
	r.mu.Lock()
	entry := r.entry
	r.entry, r.path = nil, ""
	r.mu.Unlock()
	if entry == nil {
		return nil
	}
	return entry.Eject(ctx)
}

func (r *Router) currentPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// RouteTo returns an event handler navigating to path.
func RouteTo(nav contract.Navigator, path string) view.Handler {
	return func(view.Event) {
		_ = nav.Navigate(path)
	}
}
