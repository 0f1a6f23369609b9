package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	// ErrMissingType indicates a frame without a string "type" field.
	ErrMissingType = errors.New("protocol: missing envelope type")
	// ErrUnknownKind indicates a well-formed envelope of an unrecognised kind.
	// Receivers ignore such envelopes.
	ErrUnknownKind = errors.New("protocol: unknown envelope kind")
	// ErrInvalidJSON indicates a frame that is not a JSON object.
	ErrInvalidJSON = errors.New("protocol: invalid json envelope")
)

// Encode serialises msg as a JSON object with its "type" discriminant set.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("protocol: encode nil message")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Kind(), err)
	}
	out, err := sjson.SetBytes(body, "type", string(msg.Kind()))
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Kind(), err)
	}
	return out, nil
}

// PeekKind reads the discriminant of a frame without decoding the payload.
func PeekKind(data []byte) (Kind, error) {
	if !gjson.ValidBytes(data) {
		return "", ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", ErrInvalidJSON
	}
	tag := root.Get("type")
	if tag.Type != gjson.String || tag.Str == "" {
		return "", ErrMissingType
	}
	return Kind(tag.Str), nil
}

// DecodeInbound decodes a host-to-surface frame into its typed message.
func DecodeInbound(data []byte) (Message, error) {
	kind, err := PeekKind(data)
	if err != nil {
		return nil, err
	}

	var msg Message
	switch kind {
	case KindTile:
		var m TileMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindProperties:
		var m PropertiesMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindPluginProperties:
		var m PluginPropertiesMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindPluginMessage:
		var m PluginMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindRefresh:
		msg = RefreshMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", kind, err)
	}
	return msg, nil
}

// DecodeOutbound decodes a surface-to-host frame into its typed message.
func DecodeOutbound(data []byte) (Message, error) {
	kind, err := PeekKind(data)
	if err != nil {
		return nil, err
	}

	var msg Message
	switch kind {
	case KindGetTile:
		var m GetTileMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindGetProperties:
		var m GetPropertiesMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindSetProperties:
		var m SetPropertiesMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindGetPluginProperties:
		var m GetPluginPropertiesMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindSetPluginProperties:
		var m SetPluginPropertiesMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindSendToPlugin:
		var m SendToPluginMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case KindSetLabel:
		var m SetLabelMessage
		err = json.Unmarshal(data, &m)
		if err == nil {
			err = m.Label.Validate()
		}
		msg = m
	case KindSetIcon:
		var m SetIconMessage
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", kind, err)
	}
	return msg, nil
}

// Patch builds a single-field partial properties object.
func Patch(name string, value any) (json.RawMessage, error) {
	data, err := json.Marshal(map[string]any{name: value})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode property %q: %w", name, err)
	}
	return data, nil
}

// RawObject encodes v as a JSON object. A nil v encodes as an empty object.
func RawObject(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
			return nil, errors.New("protocol: properties must be a json object")
		}
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode properties: %w", err)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, errors.New("protocol: properties must be a json object")
	}
	return data, nil
}

// RawValue encodes an arbitrary message payload.
func RawValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !gjson.ValidBytes(raw) {
			return nil, ErrInvalidJSON
		}
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode message: %w", err)
	}
	return data, nil
}
