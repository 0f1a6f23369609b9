// Package transport connects a surface to its host. It owns the single
// inbound dispatcher of a surface, decoding each frame once at the boundary
// and redistributing it as a typed event, and the single outbound primitive
// that posts envelopes to the host.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/protocol"
)

// Logger is an optional interface for logging transport events.
type Logger interface {
	Printf(format string, v ...any)
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger enables dropped-frame diagnostics. Without a logger drops are
// only counted; they are never reported as errors.
func WithLogger(logger Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithAllowedOrigins restricts inbound frames to the listed origins. Frames
// with any other origin, including an empty one, are dropped. With no
// origins configured every frame read from the link is trusted, which is
// only appropriate when the link itself is scoped to a fixed local host.
func WithAllowedOrigins(origins ...string) Option {
	return func(t *Transport) {
		for _, o := range origins {
			if o != "" {
				t.allowedOrigins[o] = struct{}{}
			}
		}
	}
}

// WithReloader sets the hook invoked when the host sends REFRESH. The hook
// must reset the surface to a freshly loaded state.
func WithReloader(reload func()) Option {
	return func(t *Transport) {
		t.reload = reload
	}
}

// WithEmitter shares an existing emitter instead of allocating one.
func WithEmitter(e *emitter.Emitter) Option {
	return func(t *Transport) {
		if e != nil {
			t.events = e
		}
	}
}

// Transport is the per-surface message channel. Construct exactly one per
// surface and keep it for the surface's lifetime.
type Transport struct {
	role           Role
	link           Link
	events         *emitter.Emitter
	logger         Logger
	allowedOrigins map[string]struct{}

	reloadMu sync.RWMutex
	reload   func()

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// New constructs a transport for role over link.
func New(role Role, link Link, opts ...Option) *Transport {
	t := &Transport{
		role:           role,
		link:           link,
		events:         emitter.New(),
		allowedOrigins: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Role returns the surface role.
func (t *Transport) Role() Role {
	return t.role
}

// Events returns the emitter that inbound envelopes are dispatched to.
func (t *Transport) Events() *emitter.Emitter {
	return t.events
}

// Dropped reports how many inbound frames were ignored.
func (t *Transport) Dropped() uint64 {
	return t.dropped.Load()
}

// SetReloader replaces the REFRESH hook.
func (t *Transport) SetReloader(reload func()) {
	t.reloadMu.Lock()
	t.reload = reload
	t.reloadMu.Unlock()
}

// Send encodes msg and posts it to the host. Delivery is fire-and-forget.
func (t *Transport) Send(ctx context.Context, msg protocol.Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := t.link.WriteMessage(ctx, data); err != nil {
		return fmt.Errorf("transport: send %s: %w", msg.Kind(), err)
	}
	return nil
}

// Dispatch classifies one inbound frame and routes it. Malformed frames,
// unknown kinds, kinds outside the role and frames from unexpected origins
// are silently ignored.
func (t *Transport) Dispatch(frame Frame) {
	if !t.originAllowed(frame.Origin) {
		t.drop("origin %q not allowed", frame.Origin)
		return
	}

	kind, err := protocol.PeekKind(frame.Data)
	if err != nil {
		t.drop("%v", err)
		return
	}
	if !t.role.Accepts(kind) {
		t.drop("kind %s not accepted by %s surface", kind, t.role)
		return
	}

	msg, err := protocol.DecodeInbound(frame.Data)
	if err != nil {
		t.drop("%v", err)
		return
	}

	switch m := msg.(type) {
	case protocol.TileMessage:
		emitter.Fire(t.events, EventTile, TileEvent{Tile: m.Tile, RequestID: m.RequestID})
	case protocol.PropertiesMessage:
		emitter.Fire(t.events, EventProperties, PropertiesEvent{
			Properties: m.Properties,
			Context:    m.Context(),
			RequestID:  m.RequestID,
		})
	case protocol.PluginPropertiesMessage:
		emitter.Fire(t.events, EventPluginProperties, PluginPropertiesEvent{
			Properties: m.Properties,
			RequestID:  m.RequestID,
		})
	case protocol.PluginMessage:
		emitter.Fire(t.events, EventPluginMessage, PluginMessageEvent{Message: m.Message})
	case protocol.RefreshMessage:
		t.reloadMu.RLock()
		reload := t.reload
		t.reloadMu.RUnlock()
		if reload == nil {
			t.drop("refresh requested but surface has no reloader")
			return
		}
		reload()
	}
}

// Run reads frames from the link and dispatches them until the link closes
// or ctx is done. A closed link is a normal exit and returns nil.
func (t *Transport) Run(ctx context.Context) error {
	for {
		frame, err := t.link.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || t.closed.Load() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		t.Dispatch(frame)
	}
}

// Close shuts the link down. Further Send calls fail with ErrClosed.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.link.Close()
	})
	return err
}

func (t *Transport) originAllowed(origin string) bool {
	if len(t.allowedOrigins) == 0 {
		return true
	}
	_, ok := t.allowedOrigins[origin]
	return ok
}

func (t *Transport) drop(format string, args ...any) {
	count := t.dropped.Add(1)
	if t.logger != nil {
		t.logger.Printf("[transport] dropped inbound frame #%d on %s surface: %s", count, t.role, fmt.Sprintf(format, args...))
	}
}
