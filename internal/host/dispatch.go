package host

import (
	"context"

	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/sanitize"
	"github.com/tilepad/bridge/internal/transport"
)

// handleFrame answers one surface envelope. Unknown kinds, kinds the
// surface role may not send and backend failures produce no reply.
func (h *Host) handleFrame(ctx context.Context, s *surface, data []byte) {
	msg, err := protocol.DecodeOutbound(data)
	if err != nil {
		h.logger.Printf("[Host] surface %s sent undecodable envelope %s: %v", s.info.ID, sanitize.Preview(string(data)), err)
		return
	}
	if !s.info.Role.AcceptsOutbound(msg.Kind()) {
		h.logger.Printf("[Host] %s surface %s may not send %s", s.info.Role, s.info.ID, msg.Kind())
		return
	}

	if err := h.handle(ctx, s, msg); err != nil {
		h.logger.Printf("[Host] %s from surface %s (tile %s): %v", msg.Kind(), s.info.ID, s.info.TileID, err)
	}
}

func (h *Host) handle(ctx context.Context, s *surface, msg protocol.Message) error {
	tileID := s.info.TileID

	switch m := msg.(type) {
	case protocol.GetTileMessage:
		tile, err := h.backend.Tile(ctx, tileID)
		if err != nil {
			return err
		}
		h.reply(ctx, s, protocol.TileMessage{Tile: tile, RequestID: m.RequestID})

	case protocol.GetPropertiesMessage:
		tile, err := h.backend.Tile(ctx, tileID)
		if err != nil {
			return err
		}
		h.reply(ctx, s, propertiesMessage(tile, tile.Properties, m.RequestID))

	case protocol.SetPropertiesMessage:
		tile, err := h.backend.Tile(ctx, tileID)
		if err != nil {
			return err
		}
		merged, err := h.backend.MergeProperties(ctx, tileID, m.Properties)
		if err != nil {
			return err
		}
		// The writer already knows what it wrote; other inspectors of the
		// tile need the merged result.
		return h.broadcast(ctx, propertiesMessage(tile, merged, 0),
			h.match(tileID, transport.RoleInspector, s))

	case protocol.GetPluginPropertiesMessage:
		tile, err := h.backend.Tile(ctx, tileID)
		if err != nil {
			return err
		}
		props, err := h.backend.PluginProperties(ctx, tile.PluginID)
		if err != nil {
			return err
		}
		h.reply(ctx, s, protocol.PluginPropertiesMessage{Properties: props, RequestID: m.RequestID})

	case protocol.SetPluginPropertiesMessage:
		tile, err := h.backend.Tile(ctx, tileID)
		if err != nil {
			return err
		}
		props, err := h.backend.SetPluginProperties(ctx, tile.PluginID, m.Properties, m.Partial)
		if err != nil {
			return err
		}
		return h.broadcast(ctx, protocol.PluginPropertiesMessage{Properties: props},
			h.pluginInspectors(ctx, tile.PluginID, s))

	case protocol.SendToPluginMessage:
		if h.router == nil {
			h.logger.Printf("[Host] no plugin router, dropping message from surface %s", s.info.ID)
			return nil
		}
		tile, err := h.backend.Tile(ctx, tileID)
		if err != nil {
			return err
		}
		return h.router.DeliverToPlugin(ctx, s.info, tile.PluginID, m.Message)

	case protocol.SetLabelMessage:
		return h.backend.SetLabel(ctx, tileID, m.Label)

	case protocol.SetIconMessage:
		return h.backend.SetIcon(ctx, tileID, m.Icon)
	}
	return nil
}

// pluginInspectors returns the inspectors, other than except, whose tile
// belongs to pluginID.
func (h *Host) pluginInspectors(ctx context.Context, pluginID string, except *surface) []*surface {
	h.mu.RLock()
	candidates := make([]*surface, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		if s != except && s.info.Role == transport.RoleInspector {
			candidates = append(candidates, s)
		}
	}
	h.mu.RUnlock()

	owners := make(map[string]string)
	var out []*surface
	for _, s := range candidates {
		owner, ok := owners[s.info.TileID]
		if !ok {
			tile, err := h.backend.Tile(ctx, s.info.TileID)
			if err == nil {
				owner = tile.PluginID
			}
			owners[s.info.TileID] = owner
		}
		if owner == pluginID {
			out = append(out, s)
		}
	}
	return out
}
