package events

import (
	"sort"
	"sync"
)

// listenerSet is the registration bookkeeping shared by ChannelEvent and
// CallbackEvent. Listeners are delivered to in registration order.
type listenerSet[L any, T any] struct {
	mu                    sync.RWMutex
	listeners             map[uint64]L
	nextID                uint64
	sendLastEventOnListen bool
	lastEvent             *T
	hasNotified           bool
}

func newListenerSet[L any, T any](sendLastEventOnListen bool) listenerSet[L, T] {
	return listenerSet[L, T]{
		listeners:             make(map[uint64]L),
		sendLastEventOnListen: sendLastEventOnListen,
	}
}

// add registers l and returns its id plus a copy of the last event when it
// should be replayed to the new listener.
func (s *listenerSet[L, T]) add(l L) (uint64, *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	if !s.sendLastEventOnListen || !s.hasNotified || s.lastEvent == nil {
		return id, nil
	}
	replay := new(T)
	*replay = *s.lastEvent
	return id, replay
}

func (s *listenerSet[L, T]) remove(id uint64) {
	s.mu.Lock()
	delete(s.listeners, id)
	s.mu.Unlock()
}

// snapshot records value as the last event (if configured) and returns the
// listeners ordered by registration so they can be called outside the lock.
func (s *listenerSet[L, T]) snapshot(value T) []L {
	s.mu.Lock()
	if s.sendLastEventOnListen {
		if s.lastEvent == nil {
			s.lastEvent = new(T)
		}
		*s.lastEvent = value
		s.hasNotified = true
	}
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]L, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.listeners[id])
	}
	s.mu.Unlock()
	return result
}

func (s *listenerSet[L, T]) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}
