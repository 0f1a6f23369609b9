package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tilepad/bridge/internal/debounce"
	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/transport"
)

// propertyWrite is the argument of a debounced single-property write.
type propertyWrite struct {
	name  string
	value any
}

// Properties is a tile properties snapshot together with the tile and
// action it belongs to, when the host provided them.
type Properties struct {
	Data    json.RawMessage
	Context protocol.PropertiesContext
}

// Inspector is the bridge exposed to property inspector surfaces. It offers
// everything Display does plus properties access and tile mutation commands.
type Inspector struct {
	*Display

	properties       pendingSet[Properties]
	pluginProperties pendingSet[json.RawMessage]

	setProperty       *debounce.Debouncer[propertyWrite]
	setPluginProperty *debounce.Debouncer[propertyWrite]
}

// NewInspector builds an inspector bridge. t must have the inspector role.
func NewInspector(t *transport.Transport, opts ...Option) (*Inspector, error) {
	if t.Role() != transport.RoleInspector {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongRole, transport.RoleInspector, t.Role())
	}

	in := &Inspector{Display: NewDisplay(t, opts...)}
	c := in.c

	c.subs.Add(
		emitter.Listen(c.events, transport.EventProperties, func(ev transport.PropertiesEvent) {
			in.properties.resolve(ev.RequestID, Properties{Data: ev.Properties, Context: ev.Context})
		}),
		emitter.Listen(c.events, transport.EventPluginProperties, func(ev transport.PluginPropertiesEvent) {
			in.pluginProperties.resolve(ev.RequestID, ev.Properties)
		}),
	)

	in.setProperty = debounce.New(c.cfg.debounceDelay, func(w propertyWrite) {
		patch, err := protocol.Patch(w.name, w.value)
		if err != nil {
			in.logf("[bridge] set property %q: %v", w.name, err)
			return
		}
		c.writeDetached(protocol.SetPropertiesMessage{Properties: patch})
	})
	in.setPluginProperty = debounce.New(c.cfg.debounceDelay, func(w propertyWrite) {
		patch, err := protocol.Patch(w.name, w.value)
		if err != nil {
			in.logf("[bridge] set plugin property %q: %v", w.name, err)
			return
		}
		c.writeDetached(protocol.SetPluginPropertiesMessage{Properties: patch, Partial: true})
	})
	c.onClose = append(c.onClose, in.setProperty.Stop, in.setPluginProperty.Stop)

	return in, nil
}

// RequestProperties asks the host for the tile properties. The reply is
// delivered to OnProperties subscribers.
func (in *Inspector) RequestProperties(ctx context.Context) error {
	return in.c.send(ctx, protocol.GetPropertiesMessage{})
}

// OnProperties subscribes fn to every properties envelope. The context is
// passed through unfiltered.
func (in *Inspector) OnProperties(fn func(Properties)) *emitter.Subscription {
	return in.c.track(emitter.Listen(in.c.events, transport.EventProperties, func(ev transport.PropertiesEvent) {
		fn(Properties{Data: ev.Properties, Context: ev.Context})
	}))
}

// GetProperties requests the tile properties and waits for the reply.
func (in *Inspector) GetProperties(ctx context.Context) (Properties, error) {
	return await(ctx, in.c, &in.properties, func(id uint64) protocol.Message {
		return protocol.GetPropertiesMessage{RequestID: id}
	})
}

// SetProperty sets a single tile property. Calls are coalesced: only the
// last call within the debounce window is sent, as a one-field patch.
func (in *Inspector) SetProperty(name string, value any) {
	in.setProperty.Call(propertyWrite{name: name, value: value})
}

// SetProperties merges properties into the tile properties immediately.
// Keys not present in properties are left untouched by the host.
func (in *Inspector) SetProperties(ctx context.Context, properties any) error {
	raw, err := protocol.RawObject(properties)
	if err != nil {
		return err
	}
	return in.c.write(ctx, protocol.SetPropertiesMessage{Properties: raw})
}

// RequestPluginProperties asks the host for the plugin-scoped properties.
func (in *Inspector) RequestPluginProperties(ctx context.Context) error {
	return in.c.send(ctx, protocol.GetPluginPropertiesMessage{})
}

// OnPluginProperties subscribes fn to every plugin properties envelope.
func (in *Inspector) OnPluginProperties(fn func(json.RawMessage)) *emitter.Subscription {
	return in.c.track(emitter.Listen(in.c.events, transport.EventPluginProperties, func(ev transport.PluginPropertiesEvent) {
		fn(ev.Properties)
	}))
}

// GetPluginProperties requests the plugin properties and waits for the reply.
func (in *Inspector) GetPluginProperties(ctx context.Context) (json.RawMessage, error) {
	return await(ctx, in.c, &in.pluginProperties, func(id uint64) protocol.Message {
		return protocol.GetPluginPropertiesMessage{RequestID: id}
	})
}

// SetPluginProperty is the debounced single-property plugin write.
func (in *Inspector) SetPluginProperty(name string, value any) {
	in.setPluginProperty.Call(propertyWrite{name: name, value: value})
}

// SetPluginProperties merges properties into the plugin properties.
func (in *Inspector) SetPluginProperties(ctx context.Context, properties any) error {
	raw, err := protocol.RawObject(properties)
	if err != nil {
		return err
	}
	return in.c.write(ctx, protocol.SetPluginPropertiesMessage{Properties: raw, Partial: true})
}

// ReplacePluginProperties replaces the plugin properties wholesale.
func (in *Inspector) ReplacePluginProperties(ctx context.Context, properties any) error {
	raw, err := protocol.RawObject(properties)
	if err != nil {
		return err
	}
	return in.c.write(ctx, protocol.SetPluginPropertiesMessage{Properties: raw, Partial: false})
}

// SetLabel asks the host to update the tile label. Nothing is awaited; the
// effect is observed through a later TILE or PROPERTIES envelope.
func (in *Inspector) SetLabel(ctx context.Context, label protocol.Label) error {
	if err := label.Validate(); err != nil {
		return err
	}
	return in.c.write(ctx, protocol.SetLabelMessage{Label: label})
}

// SetIcon asks the host to update the tile icon.
func (in *Inspector) SetIcon(ctx context.Context, icon protocol.Icon) error {
	if icon == nil {
		return ErrNilIcon
	}
	return in.c.write(ctx, protocol.SetIconMessage{Icon: icon})
}

// Flush sends any pending debounced writes now.
func (in *Inspector) Flush() {
	in.setProperty.Flush()
	in.setPluginProperty.Flush()
}

// PendingWrites reports whether a debounced write is waiting.
func (in *Inspector) PendingWrites() bool {
	return in.setProperty.Pending() || in.setPluginProperty.Pending()
}

func (in *Inspector) logf(format string, v ...any) {
	if in.c.cfg.logger != nil {
		in.c.cfg.logger.Printf(format, v...)
	}
}
