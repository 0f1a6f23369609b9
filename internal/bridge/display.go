package bridge

import (
	"context"
	"encoding/json"

	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/transport"
)

// Display is the bridge exposed to tile display surfaces.
type Display struct {
	c *core
}

// NewDisplay builds a display bridge over t. Inspector transports are
// accepted too since their inbound set is a superset.
func NewDisplay(t *transport.Transport, opts ...Option) *Display {
	return &Display{c: newCore(t, opts)}
}

// RequestTile asks the host for the current tile. The reply is delivered to
// OnTile subscribers.
func (d *Display) RequestTile(ctx context.Context) error {
	return d.c.send(ctx, protocol.GetTileMessage{})
}

// OnTile subscribes fn to every tile delivered to the surface, solicited or
// not. Close the returned subscription to stop receiving.
func (d *Display) OnTile(fn func(protocol.Tile)) *emitter.Subscription {
	return d.c.track(emitter.Listen(d.c.events, transport.EventTile, func(ev transport.TileEvent) {
		fn(ev.Tile)
	}))
}

// GetTile requests the current tile and waits for the reply. It blocks until
// the host answers, ctx is done or the bridge closes.
func (d *Display) GetTile(ctx context.Context) (protocol.Tile, error) {
	return await(ctx, d.c, &d.c.tiles, func(id uint64) protocol.Message {
		return protocol.GetTileMessage{RequestID: id}
	})
}

// Send forwards message to the plugin that owns the tile's action. message
// may be any JSON-encodable value or a json.RawMessage.
func (d *Display) Send(ctx context.Context, message any) error {
	raw, err := protocol.RawValue(message)
	if err != nil {
		return err
	}
	return d.c.send(ctx, protocol.SendToPluginMessage{Message: raw})
}

// OnMessage subscribes fn to messages sent by the plugin.
func (d *Display) OnMessage(fn func(json.RawMessage)) *emitter.Subscription {
	return d.c.track(emitter.Listen(d.c.events, transport.EventPluginMessage, func(ev transport.PluginMessageEvent) {
		fn(ev.Message)
	}))
}

// Transport returns the underlying transport.
func (d *Display) Transport() *transport.Transport {
	return d.c.transport
}

// Close releases every subscription made through the bridge and fails
// outstanding Get calls with ErrClosed. The transport stays open.
func (d *Display) Close() {
	d.c.close()
}
