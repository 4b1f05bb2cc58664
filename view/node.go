// Package view holds the declarative tree a renderer produces on each pass.
// The tree is host agnostic; engines translate it into whatever they display.
package view

import (
	"sort"
	"strings"
)

// PlaceholderTag is the tag of the empty node returned by a container whose state
// is busy at render time.
const PlaceholderTag = "template"

type Event struct {
	Type   string
	Target string
	Value  string
}

type Handler func(Event)

// Node is either an element (Tag set) or a text leaf (Tag empty).
type Node struct {
	Tag      string
	Text     string
	Attrs    map[string]string
	Handlers map[string]Handler
	Children []Node
}

// Part is anything that can be passed to El: child nodes, attributes and handlers.
type Part interface {
	apply(n *Node)
}

func (n Node) apply(parent *Node) {
	parent.Children = append(parent.Children, n)
}

type attr struct{ key, value string }

func (a attr) apply(n *Node) {
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[a.key] = a.value
}

type on struct {
	event   string
	handler Handler
}

func (o on) apply(n *Node) {
	if o.handler == nil {
		return
	}
	if n.Handlers == nil {
		n.Handlers = map[string]Handler{}
	}
	n.Handlers[o.event] = o.handler
}

type group []Node

func (g group) apply(n *Node) {
	n.Children = append(n.Children, g...)
}

func El(tag string, parts ...Part) Node {
	n := Node{Tag: tag}
	for _, p := range parts {
		if p != nil {
			p.apply(&n)
		}
	}
	return n
}

func Text(s string) Node {
	return Node{Text: s}
}

func Attr(key, value string) Part {
	return attr{key: key, value: value}
}

func ID(id string) Part {
	return attr{key: "id", value: id}
}

func Class(class string) Part {
	return attr{key: "class", value: class}
}

func On(event string, h Handler) Part {
	return on{event: event, handler: h}
}

// Children splices an already built list of nodes into the parent.
func Children(nodes ...Node) Part {
	return group(nodes)
}

func Placeholder() Node {
	return Node{Tag: PlaceholderTag}
}

func (n Node) IsText() bool {
	return n.Tag == ""
}

func (n Node) IsPlaceholder() bool {
	return n.Tag == PlaceholderTag && len(n.Children) == 0
}

// Find returns the first node, depth first, whose id attribute equals id.
func (n Node) Find(id string) (Node, bool) {
	if n.Attrs["id"] == id {
		return n, true
	}
	for _, c := range n.Children {
		if found, ok := c.Find(id); ok {
			return found, true
		}
	}
	return Node{}, false
}

// TextContent concatenates every text leaf below n.
func (n Node) TextContent() string {
	var sb strings.Builder
	n.walkText(&sb)
	return sb.String()
}

func (n Node) walkText(sb *strings.Builder) {
	if n.IsText() {
		sb.WriteString(n.Text)
		return
	}
	for _, c := range n.Children {
		c.walkText(sb)
	}
}

func (n Node) attrKeys() []string {
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
