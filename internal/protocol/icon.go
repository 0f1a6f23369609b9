package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// IconType is the discriminant of the Icon union.
type IconType string

const (
	IconTypeNone       IconType = "None"
	IconTypePluginIcon IconType = "PluginIcon"
	IconTypeIconPack   IconType = "IconPack"
	IconTypeURL        IconType = "Url"
)

// ErrUnknownIconType is returned when decoding an icon with an unrecognised tag.
var ErrUnknownIconType = errors.New("protocol: unknown icon type")

// Icon is a tagged union over NoIcon, PluginIcon, IconPackIcon and URLIcon.
// Exactly one variant is active; its tag determines the encoded fields.
type Icon interface {
	IconType() IconType
	isIcon()
}

// NoIcon clears the tile icon.
type NoIcon struct{}

// PluginIcon references an icon bundled with a plugin.
type PluginIcon struct {
	PluginID string `json:"plugin_id"`
	Icon     string `json:"icon"`
}

// IconPackIcon references an icon inside an installed icon pack.
type IconPackIcon struct {
	PackID string `json:"pack_id"`
	Path   string `json:"path"`
}

// URLIcon references an icon by absolute URL.
type URLIcon struct {
	Src string `json:"src"`
}

func (NoIcon) IconType() IconType       { return IconTypeNone }
func (PluginIcon) IconType() IconType   { return IconTypePluginIcon }
func (IconPackIcon) IconType() IconType { return IconTypeIconPack }
func (URLIcon) IconType() IconType      { return IconTypeURL }

func (NoIcon) isIcon()       {}
func (PluginIcon) isIcon()   {}
func (IconPackIcon) isIcon() {}
func (URLIcon) isIcon()      {}

func (NoIcon) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type IconType `json:"type"`
	}{IconTypeNone})
}

func (i PluginIcon) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     IconType `json:"type"`
		PluginID string   `json:"plugin_id"`
		Icon     string   `json:"icon"`
	}{IconTypePluginIcon, i.PluginID, i.Icon})
}

func (i IconPackIcon) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   IconType `json:"type"`
		PackID string   `json:"pack_id"`
		Path   string   `json:"path"`
	}{IconTypeIconPack, i.PackID, i.Path})
}

func (i URLIcon) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type IconType `json:"type"`
		Src  string   `json:"src"`
	}{IconTypeURL, i.Src})
}

// UnmarshalIcon decodes a tagged icon object. A missing tag or an unknown tag
// is an error; fields belonging to other variants are ignored.
func UnmarshalIcon(data []byte) (Icon, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("protocol: decode icon: invalid json")
	}
	tag := gjson.GetBytes(data, "type")
	if tag.Type != gjson.String {
		return nil, fmt.Errorf("protocol: decode icon: %w", ErrMissingType)
	}

	switch IconType(tag.Str) {
	case IconTypeNone:
		return NoIcon{}, nil
	case IconTypePluginIcon:
		var icon PluginIcon
		if err := json.Unmarshal(data, &icon); err != nil {
			return nil, fmt.Errorf("protocol: decode plugin icon: %w", err)
		}
		return icon, nil
	case IconTypeIconPack:
		var icon IconPackIcon
		if err := json.Unmarshal(data, &icon); err != nil {
			return nil, fmt.Errorf("protocol: decode icon pack icon: %w", err)
		}
		return icon, nil
	case IconTypeURL:
		var icon URLIcon
		if err := json.Unmarshal(data, &icon); err != nil {
			return nil, fmt.Errorf("protocol: decode url icon: %w", err)
		}
		return icon, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIconType, tag.Str)
	}
}
