package transport

import (
	"encoding/json"

	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/protocol"
)

// TileEvent is emitted for every accepted TILE envelope.
type TileEvent struct {
	Tile      protocol.Tile
	RequestID uint64
}

// PropertiesEvent is emitted for every accepted PROPERTIES envelope. Context
// is passed through unfiltered; listeners that care about a specific tile
// must compare it themselves.
type PropertiesEvent struct {
	Properties json.RawMessage
	Context    protocol.PropertiesContext
	RequestID  uint64
}

// PluginPropertiesEvent is emitted for every accepted PLUGIN_PROPERTIES envelope.
type PluginPropertiesEvent struct {
	Properties json.RawMessage
	RequestID  uint64
}

// PluginMessageEvent is emitted for every accepted PLUGIN_MESSAGE envelope.
type PluginMessageEvent struct {
	Message json.RawMessage
}

// Internal event descriptors. Tile and plugin-property replies use distinct
// events so concurrent requests in different domains never cross.
var (
	EventTile             = emitter.NewEventDef[TileEvent]("tile")
	EventProperties       = emitter.NewEventDef[PropertiesEvent]("properties")
	EventPluginProperties = emitter.NewEventDef[PluginPropertiesEvent]("plugin_properties")
	EventPluginMessage    = emitter.NewEventDef[PluginMessageEvent]("plugin_message")
)
