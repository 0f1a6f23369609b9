// Package config loads bridge settings from a JSONC file (JSON with comments
// and trailing commas) and applies environment overrides on top.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/tilepad/bridge/internal/constants"
	"github.com/tilepad/bridge/internal/transport"
)

// Environment variables recognised by Load.
const (
	EnvHome           = "TILEPAD_HOME"
	EnvListen         = "TILEPAD_LISTEN"
	EnvAllowedOrigins = "TILEPAD_ALLOWED_ORIGINS"
	EnvDatabase       = "TILEPAD_DB"
	EnvSurfaceURL     = "TILEPAD_SURFACE_URL"
	EnvSurfaceOrigin  = "TILEPAD_SURFACE_ORIGIN"
	EnvDebounce       = "TILEPAD_DEBOUNCE"
)

// Duration is a time.Duration read from strings such as "150ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"100ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// HostConfig configures the reference host.
type HostConfig struct {
	Listen         string   `json:"listen"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	Database       string   `json:"database"`
}

// SurfaceConfig configures a surface process.
type SurfaceConfig struct {
	URL      string   `json:"url,omitempty"`
	Origin   string   `json:"origin"`
	Role     string   `json:"role"`
	Script   string   `json:"script,omitempty"`
	Debounce Duration `json:"debounce"`
}

// Config is the full configuration document.
type Config struct {
	Host    HostConfig    `json:"host"`
	Surface SurfaceConfig `json:"surface"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Host: HostConfig{
			Listen:   constants.DefaultListenAddr,
			Database: GetPaths().Database,
		},
		Surface: SurfaceConfig{
			Origin:   constants.DefaultSurfaceOrigin,
			Role:     string(transport.RoleDisplay),
			Debounce: Duration(constants.PropertyWriteDebounce),
		},
	}
}

// Load reads path on top of the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Host.Database = ExpandPath(cfg.Host.Database)
	cfg.Surface.Script = ExpandPath(cfg.Surface.Script)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a JSONC document into cfg. Fields absent from the document
// keep their current values.
func Parse(data []byte, cfg *Config) error {
	std, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(std)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Host.Listen = v
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		cfg.Host.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Host.Database = v
	}
	if v := os.Getenv(EnvSurfaceURL); v != "" {
		cfg.Surface.URL = v
	}
	if v := os.Getenv(EnvSurfaceOrigin); v != "" {
		cfg.Surface.Origin = v
	}
	if v := os.Getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDebounce, err)
		}
		cfg.Surface.Debounce = Duration(d)
	}
	return nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host.Listen) == "" {
		return errors.New("config: host.listen must not be empty")
	}
	if _, err := transport.ParseRole(c.Surface.Role); err != nil {
		return fmt.Errorf("config: surface.role: %w", err)
	}
	if c.Surface.Debounce < 0 {
		return errors.New("config: surface.debounce must not be negative")
	}
	return nil
}
