package events

// CallbackEvent provides pub/sub behavior with type-safe callbacks.
// Callbacks run synchronously on the notifying goroutine, in registration
// order, which makes CallbackEvent the right choice when the listener must
// observe the value inside the same logical turn as the notifier.
type CallbackEvent[T any] struct {
	set listenerSet[func(T), T]
}

// NewCallbackEvent creates a new CallbackEvent instance.
// sendLastEventOnListen: if true, new listeners are called immediately with the
// last notified value (if Notify has been called at least once).
func NewCallbackEvent[T any](sendLastEventOnListen bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{set: newListenerSet[func(T), T](sendLastEventOnListen)}
}

// Listen registers a callback function to be called when Notify is invoked.
// Returns a deregistration function.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}
	id, replay := e.set.add(callback)

	// outside the lock so the callback may re-enter the event
	if replay != nil {
		callback(*replay)
	}

	return func() { e.set.remove(id) }
}

// Notify calls all registered listener callbacks with the provided value.
func (e *CallbackEvent[T]) Notify(value T) {
	for _, callback := range e.set.snapshot(value) {
		callback(value)
	}
}

// ListenerCount returns the current number of registered listeners
func (e *CallbackEvent[T]) ListenerCount() int {
	return e.set.count()
}
