// Package component holds the stateful building block of an application: a
// Container owning one state value, mutated only by the messages it receives.
package component

import (
	"afterglow/view"
	"time"
)

// Message is a typed instruction for a state T. Update mutates target directly and
// reports whether the container should be re-rendered. It runs while the container
// holds its state lock, so it must not block; it can post further messages through
// sender or request renders through render.
type Message[T any] interface {
	Update(target *T, sender Sender[T], render RenderRequester) bool
}

type MessageFunc[T any] func(target *T, sender Sender[T], render RenderRequester) bool

func (f MessageFunc[T]) Update(target *T, sender Sender[T], render RenderRequester) bool {
	return f(target, sender, render)
}

// RenderRequester is the entry point of the render coordinator owning a tree.
type RenderRequester interface {
	// RequestRender returns as soon as the request is accepted. The returned
	// channel is closed once a render pass started after the request completed,
	// or when the coordinator stops.
	RequestRender() <-chan struct{}
}

// Observer is implemented by render requesters that want to know about every
// message applied by the containers of their tree.
type Observer interface {
	MessageApplied(took time.Duration)
}

type Renderer[T any] interface {
	View(state *T, rc *view.Context, sender Sender[T]) view.Node
}

type RenderFunc[T any] func(state *T, rc *view.Context, sender Sender[T]) view.Node

func (f RenderFunc[T]) View(state *T, rc *view.Context, sender Sender[T]) view.Node {
	return f(state, rc, sender)
}

func requestRender(r RenderRequester) {
	if r != nil {
		r.RequestRender()
	}
}
