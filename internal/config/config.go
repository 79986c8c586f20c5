package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/navmap.defaults.json"

// Default values used when a field is absent from the config file.
const (
	DefaultListen              = ":8000"
	DefaultTelemetryInterval   = 500 * time.Millisecond
	DefaultSendTimeout         = 2 * time.Second
	DefaultWallThickness       = 1
	DefaultExportDir           = "/tmp/navmap"
	DefaultMapImage            = "map_with_grid.png"
	DefaultMapBitmap           = "map.pgm"
	DefaultDBPath              = "navmap.db"
	DefaultSimInterval         = 100 * time.Millisecond
	DefaultFeedBuffer          = 16
	DefaultCommandHistoryLimit = 50
	MaxCommandHistoryLimit     = 500
)

// Config is the service configuration. Every field is optional; the Get*
// methods return the default for fields the file does not set.
type Config struct {
	// HTTP
	Listen *string `json:"listen,omitempty"`

	// Telemetry delivery
	TelemetryInterval *string `json:"telemetry_interval,omitempty"` // duration string like "500ms"
	SendTimeout       *string `json:"send_timeout,omitempty"`

	// Map overlay and export
	WallThickness *int    `json:"wall_thickness,omitempty"` // half-width in cells
	ExportDir     *string `json:"export_dir,omitempty"`
	MapImage      *string `json:"map_image,omitempty"`  // relative to export_dir
	MapBitmap     *string `json:"map_bitmap,omitempty"` // relative to export_dir

	// Command journal
	DBPath              *string `json:"db_path,omitempty"`
	CommandHistoryLimit *int    `json:"command_history_limit,omitempty"`

	// Robot
	DevMode     *bool   `json:"dev_mode,omitempty"`
	SimInterval *string `json:"sim_interval,omitempty"`
	FeedBuffer  *int    `json:"feed_buffer,omitempty"`
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Fields omitted from the file keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values are usable.
func (c *Config) Validate() error {
	durations := []struct {
		name string
		v    *string
	}{
		{"telemetry_interval", c.TelemetryInterval},
		{"send_timeout", c.SendTimeout},
		{"sim_interval", c.SimInterval},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.v)
		}
	}

	if c.WallThickness != nil && *c.WallThickness < 0 {
		return fmt.Errorf("wall_thickness must be non-negative, got %d", *c.WallThickness)
	}
	if c.FeedBuffer != nil && *c.FeedBuffer < 0 {
		return fmt.Errorf("feed_buffer must be non-negative, got %d", *c.FeedBuffer)
	}
	if c.CommandHistoryLimit != nil {
		if n := *c.CommandHistoryLimit; n < 1 || n > MaxCommandHistoryLimit {
			return fmt.Errorf("command_history_limit must be between 1 and %d, got %d", MaxCommandHistoryLimit, n)
		}
	}
	for name, v := range map[string]*string{"map_image": c.MapImage, "map_bitmap": c.MapBitmap} {
		if v != nil && filepath.IsAbs(*v) {
			return fmt.Errorf("%s must be relative to export_dir, got %q", name, *v)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string { return stringOr(c.Listen, DefaultListen) }

// GetTelemetryInterval returns the per-subscriber delivery interval.
func (c *Config) GetTelemetryInterval() time.Duration {
	return durationOr(c.TelemetryInterval, DefaultTelemetryInterval)
}

// GetSendTimeout returns the bound on a single message delivery.
func (c *Config) GetSendTimeout() time.Duration {
	return durationOr(c.SendTimeout, DefaultSendTimeout)
}

// GetWallThickness returns the wall half-width in cells.
func (c *Config) GetWallThickness() int {
	if c.WallThickness == nil {
		return DefaultWallThickness
	}
	return *c.WallThickness
}

// GetExportDir returns the directory holding exported map artifacts.
func (c *Config) GetExportDir() string { return stringOr(c.ExportDir, DefaultExportDir) }

// GetMapImagePath returns the full path of the exported PNG.
func (c *Config) GetMapImagePath() string {
	return filepath.Join(c.GetExportDir(), stringOr(c.MapImage, DefaultMapImage))
}

// GetMapBitmapPath returns the full path of the exported PGM.
func (c *Config) GetMapBitmapPath() string {
	return filepath.Join(c.GetExportDir(), stringOr(c.MapBitmap, DefaultMapBitmap))
}

// GetDBPath returns the command journal database path.
func (c *Config) GetDBPath() string { return stringOr(c.DBPath, DefaultDBPath) }

// GetCommandHistoryLimit returns the default page size for command history.
func (c *Config) GetCommandHistoryLimit() int {
	if c.CommandHistoryLimit == nil {
		return DefaultCommandHistoryLimit
	}
	return *c.CommandHistoryLimit
}

// GetDevMode reports whether the built-in simulator drives the robot.
func (c *Config) GetDevMode() bool {
	if c.DevMode == nil {
		return false
	}
	return *c.DevMode
}

// GetSimInterval returns the simulator update interval.
func (c *Config) GetSimInterval() time.Duration {
	return durationOr(c.SimInterval, DefaultSimInterval)
}

// GetFeedBuffer returns the per-channel buffer size of the robot feed.
func (c *Config) GetFeedBuffer() int {
	if c.FeedBuffer == nil {
		return DefaultFeedBuffer
	}
	return *c.FeedBuffer
}
