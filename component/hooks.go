package component

// Lifecycle hooks are optional: a state type opts in by implementing them on its
// pointer receiver.

// Mounter runs once, before the container processes its first message.
type Mounter[T any] interface {
	Mounted(scope *Scope[T])
}

// Destroyer runs once at teardown, when the state is not being rendered.
type Destroyer[T any] interface {
	Destroyed(scope *Scope[T])
}

// RenderedNotifier runs after every render pass that included the container.
type RenderedNotifier[T any] interface {
	Rendered(scope *Scope[T])
}
