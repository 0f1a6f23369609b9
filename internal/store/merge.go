package store

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var errNotObject = errors.New("store: value must be a json object")

// mergeObject sets every top-level key of patch on base. Keys of base that
// patch does not mention are kept.
func mergeObject(base, patch []byte) ([]byte, error) {
	if len(base) == 0 {
		base = []byte(`{}`)
	}
	if err := requireObject(base); err != nil {
		return nil, fmt.Errorf("store: stored value: %w", err)
	}
	if err := requireObject(patch); err != nil {
		return nil, err
	}

	out := append([]byte(nil), base...)
	var mergeErr error
	gjson.ParseBytes(patch).ForEach(func(key, value gjson.Result) bool {
		if key.String() == "" {
			// sjson has no path for the empty key.
			out = setEmptyKey(out, value.Raw)
			return true
		}
		out, mergeErr = sjson.SetRawBytes(out, escapeKey(key.String()), []byte(value.Raw))
		return mergeErr == nil
	})
	if mergeErr != nil {
		return nil, fmt.Errorf("store: merge: %w", mergeErr)
	}
	return out, nil
}

// setEmptyKey rewrites obj with its "" member replaced by raw.
func setEmptyKey(obj []byte, raw string) []byte {
	var b bytes.Buffer
	b.WriteByte('{')
	gjson.ParseBytes(obj).ForEach(func(key, value gjson.Result) bool {
		if key.String() == "" {
			return true
		}
		b.WriteString(key.Raw)
		b.WriteByte(':')
		b.WriteString(value.Raw)
		b.WriteByte(',')
		return true
	})
	b.WriteString(`"":`)
	b.WriteString(raw)
	b.WriteByte('}')
	return b.Bytes()
}

func requireObject(data []byte) error {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return errNotObject
	}
	return nil
}

// escapeKey turns a literal object key into an sjson path addressing exactly
// that key.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
