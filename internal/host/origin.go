package host

import (
	"net/url"
	"slices"
	"strings"
)

// shellOrigins lists where the desktop shell serves surface pages, by scheme
// and hostname. The value tells whether the origin may carry a port.
var shellOrigins = map[string]map[string]bool{
	"tauri": {"localhost": false},
	"https": {"tauri.localhost": false, "tauri.local": true},
	"http":  {"localhost": true, "127.0.0.1": true},
}

func fromShell(u *url.URL) bool {
	withPort, ok := shellOrigins[u.Scheme][strings.ToLower(u.Hostname())]
	return ok && (withPort || u.Port() == "")
}

// originAllowed reports whether a surface connecting with the given Origin
// header may attach. An empty origin is never allowed.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	if slices.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return fromShell(u)
}

// normalizeOrigins trims configured origins, drops blanks and trailing
// slashes, and removes duplicates while keeping the first occurrence.
func normalizeOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}
