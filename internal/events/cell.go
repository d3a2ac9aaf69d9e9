package events

import "sync"

// Cell is an observable value: a current value plus change notification.
// Reads are safe from any goroutine. Writes are expected to come from a single
// owner; Cell does not enforce that, the owner's type does.
type Cell[T any] struct {
	mu        sync.RWMutex
	value     T
	callbacks *CallbackEvent[T]
	channels  *ChannelEvent[T]
}

// NewCell creates a Cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	c := &Cell[T]{
		value:     initial,
		callbacks: NewCallbackEvent[T](false),
		channels:  NewChannelEvent[T](true),
	}
	c.channels.Notify(initial)
	return c
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value and notifies observers.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
	c.callbacks.Notify(value)
	c.channels.Notify(value)
}

// Update applies fn to the current value and stores the result.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	next := fn(c.value)
	c.value = next
	c.mu.Unlock()
	c.callbacks.Notify(next)
	c.channels.Notify(next)
	return next
}

// Listen delivers the current value and every later change to ch (non-blocking).
func (c *Cell[T]) Listen(ch chan<- T) func() {
	return c.channels.Listen(ch)
}

// Observe calls fn synchronously on every change, on the writer's goroutine.
func (c *Cell[T]) Observe(fn func(T)) func() {
	return c.callbacks.Listen(fn)
}
