package view

import "sync"

// Context is handed to every renderer of one render pass. Hooks registered with
// AfterRender run once the pass has been applied by the engine.
type Context struct {
	mu    sync.Mutex
	hooks []func()
}

func NewContext() *Context {
	return &Context{}
}

func (c *Context) AfterRender(fn func()) {
	if c == nil || fn == nil {
		return
	}
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Flush runs and forgets the registered hooks, in registration order.
func (c *Context) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Context) Pending() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hooks)
}
