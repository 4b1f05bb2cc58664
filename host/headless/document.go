// Package headless is a host environment without a display: elements hold the
// last tree rendered into them and history lives in memory or in a HistoryStore.
// It backs the demo program and the tests.
package headless

import (
	"afterglow/contract"
	"afterglow/view"
	"fmt"
	"log/slog"
	"sync"
)

// BodyID identifies the document body.
const BodyID = "body"

type Element struct {
	id string

	mu      sync.RWMutex
	tree    view.Node
	mounted bool
	renders int
}

func (e *Element) ID() string {
	return e.id
}

func (e *Element) Tree() view.Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree
}

func (e *Element) HTML() string {
	return view.HTML(e.Tree())
}

func (e *Element) Text() string {
	return e.Tree().TextContent()
}

func (e *Element) Renders() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.renders
}

func (e *Element) Mounted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mounted
}

// Trigger simulates a user event on the node identified by target and reports
// whether a handler ran.
func (e *Element) Trigger(target, eventType string) bool {
	return e.Fire(target, view.Event{Type: eventType})
}

// Fire delivers ev to the handler registered for ev.Type on the node identified
// by target. An empty ev.Value is filled from the node value attribute.
func (e *Element) Fire(target string, ev view.Event) bool {
	node, ok := e.Tree().Find(target)
	if !ok {
		return false
	}
	h, ok := node.Handlers[ev.Type]
	if !ok {
		return false
	}
	ev.Target = target
	if ev.Value == "" {
		ev.Value = node.Attrs["value"]
	}
	h(ev)
	return true
}

func (e *Element) patch(tree view.Node) {
	e.mu.Lock()
	e.tree = tree
	e.renders++
	e.mu.Unlock()
}

func (e *Element) reset() {
	e.mu.Lock()
	e.tree = view.Node{}
	e.mounted = false
	e.mu.Unlock()
}

// Host is the headless contract.Host.
type Host struct {
	log     *slog.Logger
	history *History

	mu       sync.Mutex
	body     *Element
	elements map[string]*Element
	order    []string
}

var _ contract.Host = (*Host)(nil)

func NewHost(log *slog.Logger, history *History) *Host {
	body := &Element{id: BodyID}
	return &Host{
		log:      log,
		history:  history,
		body:     body,
		elements: map[string]*Element{BodyID: body},
	}
}

// AddElement declares an element as part of the initial document.
func (h *Host) AddElement(id string) *Element {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.element(id)
}

func (h *Host) MountPoint(id string) (contract.MountPoint, error) {
	if id == "" {
		return h.body, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.elements[id]; !ok {
		h.log.Debug(fmt.Sprintf("Mount point %q not found, appending it to body", id))
	}
	return h.element(id), nil
}

func (h *Host) Element(id string) (*Element, bool) {
	if id == "" {
		id = BodyID
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	el, ok := h.elements[id]
	return el, ok
}

// Children lists the ids of the elements appended to the body, in document order.
func (h *Host) Children() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

func (h *Host) Body() *Element {
	return h.body
}

func (h *Host) History() contract.History {
	return h.history
}

func (h *Host) element(id string) *Element {
	if el, ok := h.elements[id]; ok {
		return el
	}
	el := &Element{id: id}
	h.elements[id] = el
	h.order = append(h.order, id)
	return el
}
