// Package bridge is the facade plugin-authored surface code links against.
//
// A Display bridge serves tile display surfaces; an Inspector bridge serves
// property inspector surfaces and adds tile properties, plugin properties,
// debounced property writes and label/icon commands. Both are built on a
// single transport per surface and are meant to be constructed once at
// surface start-up and passed to the code that needs them.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tilepad/bridge/internal/debounce"
	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/mutex"
	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/transport"
)

var (
	// ErrClosed is returned by calls made after Close, and by Get calls that
	// were still waiting when the bridge closed.
	ErrClosed = errors.New("bridge: closed")
	// ErrWrongRole is returned when an inspector bridge is built on a
	// transport of another role.
	ErrWrongRole = errors.New("bridge: transport role mismatch")
	// ErrNilIcon is returned by SetIcon when no icon variant is given.
	ErrNilIcon = errors.New("bridge: nil icon")
)

// Logger is an optional interface for reporting failed background writes.
type Logger interface {
	Printf(format string, v ...any)
}

// Option configures a bridge.
type Option func(*config)

type config struct {
	logger        Logger
	debounceDelay time.Duration
}

// WithLogger sets the logger used for failed debounced writes.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebounceDelay overrides the coalescing window of SetProperty and
// SetPluginProperty.
func WithDebounceDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.debounceDelay = d
		}
	}
}

// core holds the state shared by both bridge kinds.
type core struct {
	cfg       config
	transport *transport.Transport
	events    *emitter.Emitter

	// writeMu serialises every outbound write so a flushed debounced write
	// never interleaves with another in-flight write.
	writeMu *mutex.Mutex

	nextID atomic.Uint64
	tiles  pendingSet[protocol.Tile]

	subs      emitter.Group
	done      chan struct{}
	closeOnce sync.Once
	onClose   []func()
}

func newCore(t *transport.Transport, opts []Option) *core {
	cfg := config{debounceDelay: debounce.DefaultDelay}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &core{
		cfg:       cfg,
		transport: t,
		events:    t.Events(),
		writeMu:   mutex.New(),
		done:      make(chan struct{}),
	}
	c.subs.Add(emitter.Listen(c.events, transport.EventTile, func(ev transport.TileEvent) {
		c.tiles.resolve(ev.RequestID, ev.Tile)
	}))
	return c
}

func (c *core) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// send posts a fire-and-forget envelope.
func (c *core) send(ctx context.Context, msg protocol.Message) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.transport.Send(ctx, msg)
}

// write posts a state-changing envelope under the write mutex.
func (c *core) write(ctx context.Context, msg protocol.Message) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.writeMu.Do(ctx, func(ctx context.Context) error {
		return c.transport.Send(ctx, msg)
	})
}

// writeDetached is the fire path of the debouncers; nobody waits on it, so
// failures can only be logged.
func (c *core) writeDetached(msg protocol.Message) {
	if err := c.write(context.Background(), msg); err != nil && c.cfg.logger != nil {
		c.cfg.logger.Printf("[bridge] debounced %s failed: %v", msg.Kind(), err)
	}
}

func (c *core) track(sub *emitter.Subscription) *emitter.Subscription {
	c.subs.Add(sub)
	return sub
}

// await sends the request built for a fresh request id and blocks until the
// correlated reply arrives, ctx is done, or the bridge closes.
func await[T any](ctx context.Context, c *core, set *pendingSet[T], request func(id uint64) protocol.Message) (T, error) {
	var zero T
	if c.isClosed() {
		return zero, ErrClosed
	}

	id := c.nextID.Add(1)
	ch := set.add(id)

	if err := c.transport.Send(ctx, request(id)); err != nil {
		set.remove(id)
		return zero, err
	}

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		set.remove(id)
		return zero, ctx.Err()
	case <-c.done:
		set.remove(id)
		return zero, ErrClosed
	}
}

func (c *core) close() {
	c.closeOnce.Do(func() {
		for _, fn := range c.onClose {
			fn()
		}
		close(c.done)
		c.subs.CloseAll()
	})
}
