package events

// ChannelEvent provides fire-and-forget pub/sub over channels.
// Sends are non-blocking: a listener whose channel is full misses the value.
type ChannelEvent[T any] struct {
	set listenerSet[chan<- T, T]
}

// NewChannelEvent creates a new ChannelEvent instance.
// sendLastEventOnListen: if true, the last notified value is sent to new
// listeners immediately (if Notify has been called at least once).
func NewChannelEvent[T any](sendLastEventOnListen bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{set: newListenerSet[chan<- T, T](sendLastEventOnListen)}
}

// Listen registers a channel to receive values when Notify is invoked.
// Returns a deregistration function.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}
	id, replay := e.set.add(ch)
	if replay != nil {
		select {
		case ch <- *replay:
		default:
		}
	}
	return func() { e.set.remove(id) }
}

// Notify sends the provided value to all registered channels without blocking.
func (e *ChannelEvent[T]) Notify(value T) {
	for _, ch := range e.set.snapshot(value) {
		select {
		case ch <- value:
		default:
			// full, skip this listener
		}
	}
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	return e.set.count()
}
