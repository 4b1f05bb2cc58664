package runtime

import (
	"afterglow/component"
	"afterglow/contract"
	"afterglow/errors"
	"afterglow/observability"
	"fmt"
	"log/slog"
)

// Stage bundles the collaborators every mounted root needs.
type Stage struct {
	Log     *slog.Logger
	Host    contract.Host
	Engine  contract.Engine
	Monitor *observability.Monitor
}

func (s Stage) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// InitApp mounts a root container of state T at the element identified by id.
// An unknown id gets a fresh element appended to the body; an empty id mounts
// on the body itself.
func InitApp[T any](stage Stage, id string, init func(render component.RenderRequester) T, renderer component.Renderer[T]) (*Entry, error) {
	if stage.Host == nil {
		return nil, fmt.Errorf("%w: no host", errors.ErrMountPoint)
	}
	mp, err := stage.Host.MountPoint(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrMountPoint, err)
	}
	return Mount(stage, mp, init, renderer)
}

// Mount builds the root state with the entry as its render requester, wraps it in
// a container and starts the entry loops. The first render pass is requested
// before Mount returns.
func Mount[T any](stage Stage, mp contract.MountPoint, init func(render component.RenderRequester) T, renderer component.Renderer[T]) (*Entry, error) {
	if stage.Engine == nil {
		return nil, fmt.Errorf("%w: no engine", errors.ErrMountPoint)
	}
	e := newEntry(stage.logger(), stage.Monitor)
	container := component.New(e.log, init(e), renderer, e)
	e.root = container

	handle, err := stage.Engine.Mount(mp, rootSource{entry: e})
	if err != nil {
		_ = container.Close()
		e.abort()
		return nil, fmt.Errorf("%w: %w", errors.ErrMountPoint, err)
	}
	e.handle = handle
	go e.run()
	e.RequestRender()

	stage.Monitor.IncrMounts()
	e.log.Info("Entry mounted", "entry", e.id, "mount", mp.ID())
	return e, nil
}
