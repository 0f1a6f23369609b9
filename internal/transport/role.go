package transport

import (
	"fmt"

	"github.com/tilepad/bridge/internal/protocol"
)

// Role selects which inbound envelope kinds a surface accepts.
type Role string

const (
	// RoleDisplay is a tile display surface.
	RoleDisplay Role = "display"
	// RoleInspector is a property inspector surface.
	RoleInspector Role = "inspector"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDisplay, RoleInspector:
		return Role(s), nil
	default:
		return "", fmt.Errorf("transport: unknown surface role %q", s)
	}
}

// Accepts reports whether envelopes of kind are dispatched for the role.
func (r Role) Accepts(kind protocol.Kind) bool {
	switch kind {
	case protocol.KindTile, protocol.KindPluginMessage, protocol.KindRefresh:
		return r == RoleDisplay || r == RoleInspector
	case protocol.KindProperties, protocol.KindPluginProperties:
		return r == RoleInspector
	default:
		return false
	}
}

// AcceptsOutbound reports whether a surface of the role may send kind.
// Hosts use it to drop inspector-only writes coming from display surfaces.
func (r Role) AcceptsOutbound(kind protocol.Kind) bool {
	switch kind {
	case protocol.KindGetTile, protocol.KindSendToPlugin:
		return r == RoleDisplay || r == RoleInspector
	case protocol.KindGetProperties, protocol.KindSetProperties,
		protocol.KindGetPluginProperties, protocol.KindSetPluginProperties,
		protocol.KindSetLabel, protocol.KindSetIcon:
		return r == RoleInspector
	default:
		return false
	}
}
