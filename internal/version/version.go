package version

import "strings"

// Set at build time with -ldflags "-X github.com/tilepad/bridge/internal/version.version=...".
var version = "dev"

// String returns the build version for the current binary, formatted for
// display.
func String() string {
	return FormatVersion(version)
}

// FormatVersion ensures a "v" prefix on release versions ("0.3.0" becomes
// "v0.3.0"). "dev" and empty strings are returned as-is.
func FormatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
