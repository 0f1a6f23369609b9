package protocol

import "fmt"

// LabelAlign is the vertical alignment of a tile label.
type LabelAlign string

const (
	LabelAlignBottom LabelAlign = "Bottom"
	LabelAlignMiddle LabelAlign = "Middle"
	LabelAlignTop    LabelAlign = "Top"
)

// Valid reports whether a is one of the known alignments.
func (a LabelAlign) Valid() bool {
	switch a {
	case LabelAlignBottom, LabelAlignMiddle, LabelAlignTop:
		return true
	default:
		return false
	}
}

// Label is a sparse label update. A nil field leaves the current value
// unchanged. Program-set labels only apply while the user's own label is
// blank; enforcing that is the host's responsibility.
type Label struct {
	Enabled      *bool       `json:"enabled,omitempty"`
	Label        *string     `json:"label,omitempty"`
	Align        *LabelAlign `json:"align,omitempty"`
	FontSize     *float64    `json:"font_size,omitempty"`
	Bold         *bool       `json:"bold,omitempty"`
	Italic       *bool       `json:"italic,omitempty"`
	Underline    *bool       `json:"underline,omitempty"`
	Outline      *bool       `json:"outline,omitempty"`
	Color        *string     `json:"color,omitempty"`
	OutlineColor *string     `json:"outline_color,omitempty"`
}

// Validate rejects labels with an unknown alignment or a negative font size.
func (l Label) Validate() error {
	if l.Align != nil && !l.Align.Valid() {
		return fmt.Errorf("protocol: invalid label align %q", *l.Align)
	}
	if l.FontSize != nil && *l.FontSize < 0 {
		return fmt.Errorf("protocol: invalid label font size %g", *l.FontSize)
	}
	return nil
}

// IsEmpty reports whether the update sets no field at all.
func (l Label) IsEmpty() bool {
	return l == Label{}
}

// Ptr returns a pointer to v, for building sparse labels.
func Ptr[T any](v T) *T {
	return &v
}
