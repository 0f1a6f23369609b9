package emitter

import "sync"

// Group owns the subscriptions of one surface lifetime so they can be
// released together. A subscription closed on its own leaves the group
// immediately, so subscribe/dispose cycles do not accumulate.
type Group struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Add puts subs under the group. Nil and already closed subscriptions are
// skipped. A subscription belongs to at most one group; adding it to a
// second one moves it.
func (g *Group) Add(subs ...*Subscription) {
	if g == nil {
		return
	}
	for _, sub := range subs {
		if sub == nil || sub.emitter == nil {
			continue
		}
		if prev := sub.group.Swap(g); prev != nil && prev != g {
			prev.drop(sub)
		}
		g.mu.Lock()
		if g.subs == nil {
			g.subs = make(map[*Subscription]struct{})
		}
		g.subs[sub] = struct{}{}
		g.mu.Unlock()

		// Close may have run before the group was recorded on sub.
		if sub.Closed() {
			g.drop(sub)
		}
	}
}

// Len reports the number of live subscriptions in the group.
func (g *Group) Len() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// CloseAll closes every subscription in the group and empties it.
func (g *Group) CloseAll() {
	if g == nil {
		return
	}

	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for sub := range subs {
		sub.Close()
	}
}

func (g *Group) drop(sub *Subscription) {
	g.mu.Lock()
	delete(g.subs, sub)
	g.mu.Unlock()
}
