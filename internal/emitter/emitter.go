// Package emitter implements the in-process publish/subscribe registry that
// surfaces use to redistribute inbound host messages to waiting callers.
//
// Unlike a channel-based bus, delivery is synchronous: Emit runs every
// listener to completion, in registration order, before it returns.
package emitter

import (
	"sync"
	"sync/atomic"
)

// Event names a stream of emissions.
type Event string

// Listener receives the arguments passed to Emit.
type Listener func(args ...any)

// Emitter maps event names to ordered listener lists.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[Event][]*Subscription
	nextID    uint64
}

// New constructs an empty emitter.
func New() *Emitter {
	return &Emitter{listeners: make(map[Event][]*Subscription)}
}

// Subscription is the handle returned by On. Close removes exactly this
// listener; repeated calls are no-ops.
type Subscription struct {
	event   Event
	id      uint64
	fn      Listener
	emitter *Emitter
	closed  atomic.Bool
	group   atomic.Pointer[Group]
}

// Event reports the event the subscription listens to.
func (s *Subscription) Event() Event {
	return s.event
}

// Close unsubscribes the listener. Safe to call on a nil subscription.
func (s *Subscription) Close() {
	if s == nil || s.emitter == nil {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.emitter.remove(s)
	if g := s.group.Load(); g != nil {
		g.drop(s)
	}
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	return s == nil || s.closed.Load()
}

// On appends fn to the listeners of event. Registering the same function
// twice creates two independent entries.
func (e *Emitter) On(event Event, fn Listener) *Subscription {
	if e == nil || fn == nil {
		sub := &Subscription{event: event}
		sub.closed.Store(true)
		return sub
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	sub := &Subscription{
		event:   event,
		id:      e.nextID,
		fn:      fn,
		emitter: e,
	}
	e.listeners[event] = append(e.listeners[event], sub)
	return sub
}

// Once registers fn for a single emission; the subscription is closed before
// fn runs.
func (e *Emitter) Once(event Event, fn Listener) *Subscription {
	var sub *Subscription
	var mu sync.Mutex
	mu.Lock()
	sub = e.On(event, func(args ...any) {
		mu.Lock()
		s := sub
		mu.Unlock()
		if s.closed.Load() {
			return
		}
		s.Close()
		fn(args...)
	})
	mu.Unlock()
	return sub
}

// Off removes sub from event. It is a no-op when sub is nil, belongs to
// another event, or has already been removed.
func (e *Emitter) Off(event Event, sub *Subscription) {
	if sub == nil || sub.event != event || sub.emitter != e {
		return
	}
	sub.Close()
}

// Emit synchronously invokes every listener registered for event at the time
// of the call, in registration order. A listener that panics aborts the
// remaining listeners and the panic reaches the caller.
func (e *Emitter) Emit(event Event, args ...any) {
	if e == nil {
		return
	}

	e.mu.RLock()
	subs := e.listeners[event]
	if len(subs) == 0 {
		e.mu.RUnlock()
		return
	}
	snapshot := make([]*Subscription, len(subs))
	copy(snapshot, subs)
	e.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.closed.Load() {
			continue
		}
		sub.fn(args...)
	}
}

// ListenerCount reports how many listeners are registered for event.
func (e *Emitter) ListenerCount(event Event) int {
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}

// Reset drops every listener. Outstanding subscriptions become closed.
func (e *Emitter) Reset() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for event, subs := range e.listeners {
		for _, sub := range subs {
			sub.closed.Store(true)
		}
		delete(e.listeners, event)
	}
}

func (e *Emitter) remove(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.listeners[sub.event]
	for i, s := range subs {
		if s.id != sub.id {
			continue
		}
		next := make([]*Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(e.listeners, sub.event)
		} else {
			e.listeners[sub.event] = next
		}
		return
	}
}
