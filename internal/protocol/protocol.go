// Package protocol defines the envelopes exchanged between a surface and its
// host. Every envelope is a JSON object carrying a "type" discriminant; the
// remaining fields depend on the kind.
package protocol

import "encoding/json"

// Kind is the envelope discriminant carried in the "type" field.
type Kind string

// Inbound kinds (host to surface).
const (
	KindTile             Kind = "TILE"
	KindProperties       Kind = "PROPERTIES"
	KindPluginProperties Kind = "PLUGIN_PROPERTIES"
	KindPluginMessage    Kind = "PLUGIN_MESSAGE"
	KindRefresh          Kind = "REFRESH"
)

// Outbound kinds (surface to host).
const (
	KindGetTile             Kind = "GET_TILE"
	KindGetProperties       Kind = "GET_PROPERTIES"
	KindSetProperties       Kind = "SET_PROPERTIES"
	KindGetPluginProperties Kind = "GET_PLUGIN_PROPERTIES"
	KindSetPluginProperties Kind = "SET_PLUGIN_PROPERTIES"
	KindSendToPlugin        Kind = "SEND_TO_PLUGIN"
	KindSetLabel            Kind = "SET_LABEL"
	KindSetIcon             Kind = "SET_ICON"
)

// Message is implemented by every envelope payload.
type Message interface {
	Kind() Kind
}

// Tile identifies a placed action instance. Snapshots are immutable; changes
// always round-trip through the host.
type Tile struct {
	ProfileID  string          `json:"profileId,omitempty"`
	FolderID   string          `json:"folderId,omitempty"`
	PluginID   string          `json:"pluginId"`
	TileID     string          `json:"tileId"`
	ActionID   string          `json:"actionId"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// PropertiesContext identifies which tile and action a PROPERTIES envelope
// belongs to. Both fields are empty when the host omits them.
type PropertiesContext struct {
	TileID   string `json:"tileId,omitempty"`
	ActionID string `json:"actionId,omitempty"`
}

// TileMessage carries a tile snapshot.
type TileMessage struct {
	Tile      Tile   `json:"tile"`
	RequestID uint64 `json:"requestId,omitempty"`
}

func (TileMessage) Kind() Kind { return KindTile }

// PropertiesMessage carries the tile-scoped properties object.
type PropertiesMessage struct {
	Properties json.RawMessage `json:"properties"`
	TileID     string          `json:"tileId,omitempty"`
	ActionID   string          `json:"actionId,omitempty"`
	RequestID  uint64          `json:"requestId,omitempty"`
}

func (PropertiesMessage) Kind() Kind { return KindProperties }

// Context returns the correlation context of the envelope.
func (m PropertiesMessage) Context() PropertiesContext {
	return PropertiesContext{TileID: m.TileID, ActionID: m.ActionID}
}

// PluginPropertiesMessage carries the plugin-scoped properties object.
type PluginPropertiesMessage struct {
	Properties json.RawMessage `json:"properties"`
	RequestID  uint64          `json:"requestId,omitempty"`
}

func (PluginPropertiesMessage) Kind() Kind { return KindPluginProperties }

// PluginMessage carries an opaque payload from the owning plugin.
type PluginMessage struct {
	Message json.RawMessage `json:"message"`
}

func (PluginMessage) Kind() Kind { return KindPluginMessage }

// RefreshMessage asks the surface to reload itself.
type RefreshMessage struct{}

func (RefreshMessage) Kind() Kind { return KindRefresh }

// GetTileMessage requests the current tile.
type GetTileMessage struct {
	RequestID uint64 `json:"requestId,omitempty"`
}

func (GetTileMessage) Kind() Kind { return KindGetTile }

// GetPropertiesMessage requests the tile properties.
type GetPropertiesMessage struct {
	RequestID uint64 `json:"requestId,omitempty"`
}

func (GetPropertiesMessage) Kind() Kind { return KindGetProperties }

// SetPropertiesMessage merges a partial object into the tile properties.
type SetPropertiesMessage struct {
	Properties json.RawMessage `json:"properties"`
}

func (SetPropertiesMessage) Kind() Kind { return KindSetProperties }

// GetPluginPropertiesMessage requests the plugin properties.
type GetPluginPropertiesMessage struct {
	RequestID uint64 `json:"requestId,omitempty"`
}

func (GetPluginPropertiesMessage) Kind() Kind { return KindGetPluginProperties }

// SetPluginPropertiesMessage updates the plugin properties. When Partial is
// false the host replaces the stored object.
type SetPluginPropertiesMessage struct {
	Properties json.RawMessage `json:"properties"`
	Partial    bool            `json:"partial"`
}

func (SetPluginPropertiesMessage) Kind() Kind { return KindSetPluginProperties }

// SendToPluginMessage forwards an opaque payload to the owning plugin.
type SendToPluginMessage struct {
	Message json.RawMessage `json:"message"`
}

func (SendToPluginMessage) Kind() Kind { return KindSendToPlugin }

// SetLabelMessage asks the host to apply a label update.
type SetLabelMessage struct {
	Label Label `json:"label"`
}

func (SetLabelMessage) Kind() Kind { return KindSetLabel }

// SetIconMessage asks the host to apply an icon.
type SetIconMessage struct {
	Icon Icon `json:"icon"`
}

func (SetIconMessage) Kind() Kind { return KindSetIcon }

// UnmarshalJSON decodes the tagged icon union.
func (m *SetIconMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Icon json.RawMessage `json:"icon"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	icon, err := UnmarshalIcon(raw.Icon)
	if err != nil {
		return err
	}
	m.Icon = icon
	return nil
}
