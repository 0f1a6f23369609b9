// Package mutex provides a FIFO mutual-exclusion primitive for serialising
// short asynchronous critical sections, such as coalesced property writes
// that must not interleave with another in-flight write.
package mutex

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// UnlockFunc releases a lock obtained from Mutex.Lock. Calling it more than
// once is a no-op.
type UnlockFunc func()

// Mutex grants exclusive execution to one holder at a time. Waiters are
// released strictly in the order they called Lock.
//
// The zero value is not usable; construct with New.
type Mutex struct {
	sem *semaphore.Weighted
}

// New returns an unlocked mutex.
func New() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the mutex is acquired or ctx is done. A waiter that gives
// up because of ctx leaves the queue without affecting the order of the
// remaining waiters. There is no timeout once the lock is held: a holder that
// never unlocks stalls every queued caller.
func (m *Mutex) Lock(ctx context.Context) (UnlockFunc, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { m.sem.Release(1) })
	}, nil
}

// TryLock acquires the mutex only if it is free and nobody is queued.
func (m *Mutex) TryLock() (UnlockFunc, bool) {
	if !m.sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() { m.sem.Release(1) })
	}, true
}

// RunExclusive acquires m, runs work and releases m on every exit path,
// including a panic inside work. The result and error of work are returned
// unchanged.
func RunExclusive[T any](ctx context.Context, m *Mutex, work func(ctx context.Context) (T, error)) (T, error) {
	unlock, err := m.Lock(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer unlock()
	return work(ctx)
}

// Do is RunExclusive for work that produces no value.
func (m *Mutex) Do(ctx context.Context, work func(ctx context.Context) error) error {
	_, err := RunExclusive(ctx, m, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	})
	return err
}
