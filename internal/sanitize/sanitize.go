// Package sanitize prepares untrusted surface and plugin text for log output.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PreviewMaxBytes bounds payload previews written to logs.
const PreviewMaxBytes = 256

// TruncateUTF8 truncates s to at most maxBytes bytes without splitting UTF-8 runes.
func TruncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	truncated := s[:maxBytes]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}

// Preview renders a single log-safe line: control characters (including
// newlines, so one payload cannot fake several log lines) become spaces, and
// output longer than PreviewMaxBytes is cut with an ellipsis.
func Preview(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, strings.ToValidUTF8(s, "�"))
	if len(s) <= PreviewMaxBytes {
		return s
	}
	return TruncateUTF8(s, PreviewMaxBytes) + "…"
}
