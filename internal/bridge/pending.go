package bridge

import "sync"

// pendingSet correlates replies with outstanding requests of one domain.
// A reply carrying a request id resolves exactly that request; a reply
// without one resolves the oldest outstanding request, which matches hosts
// that answer every request with a single in-order reply.
type pendingSet[T any] struct {
	mu      sync.Mutex
	order   []uint64
	waiters map[uint64]chan T
}

func (p *pendingSet[T]) add(id uint64) <-chan T {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.waiters == nil {
		p.waiters = make(map[uint64]chan T)
	}
	ch := make(chan T, 1)
	p.waiters[id] = ch
	p.order = append(p.order, id)
	return ch
}

func (p *pendingSet[T]) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

// resolve delivers v to the waiter for id, or to the oldest waiter when id
// is zero. It reports whether a waiter was resolved.
func (p *pendingSet[T]) resolve(id uint64, v T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == 0 {
		if len(p.order) == 0 {
			return false
		}
		id = p.order[0]
	}
	ch, ok := p.waiters[id]
	if !ok {
		return false
	}
	p.removeLocked(id)
	ch <- v
	return true
}

func (p *pendingSet[T]) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

func (p *pendingSet[T]) removeLocked(id uint64) {
	if _, ok := p.waiters[id]; !ok {
		return
	}
	delete(p.waiters, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}
