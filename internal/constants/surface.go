package constants

// Default endpoints and names.
const (
	DefaultListenAddr    = "127.0.0.1:59371"
	DefaultSurfaceOrigin = "http://localhost"
	SurfaceEndpointPath  = "/surface/"

	ConfigFileName   = "config.jsonc"
	DatabaseFileName = "tilepad.db"
)
