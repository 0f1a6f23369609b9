// Package debounce collapses bursts of calls into a single trailing-edge call.
package debounce

import (
	"sync"
	"time"

	"github.com/tilepad/bridge/internal/constants"
)

// DefaultDelay is the coalescing window used for property writes.
const DefaultDelay = constants.PropertyWriteDebounce

// Debouncer holds the pending timer and the arguments of the latest call.
// Each Call restarts the window; when the window elapses without another
// Call, fn runs once with the latest arguments. Earlier arguments are
// discarded.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	last    T
	gen     uint64
	stopped bool
}

// New returns a debouncer that invokes fn after delay. A non-positive delay
// falls back to DefaultDelay.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Delay returns the coalescing window.
func (d *Debouncer[T]) Delay() time.Duration {
	return d.delay
}

// Call records v and restarts the window, superseding any pending call.
// Calls after Stop are ignored.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.last = v
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending reports whether a call is waiting for its window to elapse.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops the pending call, if any, and reports whether one was dropped.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

// Flush runs the pending call immediately instead of waiting for the window.
// It reports whether a call was run.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	v := d.last
	d.cancelLocked()
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Stop cancels the pending call and disables the debouncer permanently.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer[T]) cancelLocked() bool {
	if !d.pending {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	// Invalidate a timer that already fired and is waiting for the lock.
	d.gen++
	d.pending = false
	var zero T
	d.last = zero
	return true
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.last
	d.pending = false
	d.timer = nil
	var zero T
	d.last = zero
	d.mu.Unlock()

	d.fn(v)
}
