package config

import (
	"os"
	"path/filepath"

	"github.com/tilepad/bridge/internal/constants"
)

// Paths contains the on-disk locations used by the bridge.
type Paths struct {
	Home     string // Home directory (~/.tilepad or $TILEPAD_HOME)
	Config   string // JSONC configuration file
	Database string // SQLite store used by the reference host
	Scripts  string // Default directory for surface scripts
}

// GetPaths returns the default layout rooted at the home directory.
func GetPaths() Paths {
	home := GetHome()
	return Paths{
		Home:     home,
		Config:   filepath.Join(home, constants.ConfigFileName),
		Database: filepath.Join(home, constants.DatabaseFileName),
		Scripts:  filepath.Join(home, "scripts"),
	}
}

// GetHome returns $TILEPAD_HOME, or ~/.tilepad when unset.
func GetHome() string {
	if home := os.Getenv(EnvHome); home != "" {
		return ExpandPath(home)
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".tilepad")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureDirs creates the home and scripts directories.
func EnsureDirs(paths Paths) error {
	for _, dir := range []string{paths.Home, paths.Scripts} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
