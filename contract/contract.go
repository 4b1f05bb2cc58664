//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"afterglow/domain"
	"afterglow/events"
	"afterglow/view"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// RenderSource produces the tree of one render pass.
type RenderSource interface {
	Render(rc *view.Context) view.Node
}

// Engine is the virtual DOM the framework renders into.
type Engine interface {
	Mount(mp MountPoint, src RenderSource) (Handle, error)
}

// Handle is one mounted tree. Render pulls a fresh tree from the source and
// patches it in; it returns once the patch is applied.
type Handle interface {
	Render(ctx context.Context) error
	Unmount() error
}

type MountPoint interface {
	ID() string
}

// Host is the environment the application runs in.
type Host interface {
	// MountPoint resolves id to an existing element, creates one when missing,
	// and falls back to the document body for an empty id.
	MountPoint(id string) (MountPoint, error)
	History() History
}

type History interface {
	PushState(state []byte, url string) error
	// PopStates streams the state attached to every entry the user navigates back or forward to.
	PopStates() *events.Subscription[[]byte]
}

type HistoryStore interface {
	Append(ctx context.Context, entry domain.HistoryEntry) (domain.HistoryEntry, error)
	List(ctx context.Context) ([]domain.HistoryEntry, error)
	TruncateAfter(ctx context.Context, seq uint64) error
}

type Navigator interface {
	Navigate(path string) error
}
