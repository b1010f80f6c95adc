package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// CanvasConfig holds the day-view drawing surface parameters consumed by
// the layout engine.
type CanvasConfig struct {
	// Width and Height are the canvas dimensions in pixels.
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`

	// PixelsPerMinute converts minutes of day into vertical pixels.
	// With Height 1440 the natural value is 1.
	PixelsPerMinute float64 `yaml:"pixels_per_minute" json:"pixels_per_minute"`

	// MinimumDurationMinutes is the floor on an event's rendered span so
	// short events stay visible.
	MinimumDurationMinutes int `yaml:"minimum_duration_minutes" json:"minimum_duration_minutes"`

	// FullDayRowHeight is the row height for the stacked all-day section.
	FullDayRowHeight float64 `yaml:"full_day_row_height" json:"full_day_row_height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// driving periodic ICS refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of days around today that feed expansion
	// covers when reconciling the store.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Canvas CanvasConfig `yaml:"canvas" json:"canvas"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// PreviewPath is where the captured day-view PNG is written.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	// CacheDir is where fetched ICS feeds and their validators are cached
	// between runs.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health and /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Seoul",
		RefreshCron: "*/15 * * * *",
		HorizonDays: 7,
		Canvas: CanvasConfig{
			Width:                  984,
			Height:                 1440,
			PixelsPerMinute:        1,
			MinimumDurationMinutes: 30,
			FullDayRowHeight:       24,
		},
		ICS:         []ICSConfig{},
		PreviewPath: "./cache/preview.png",
		CacheDir:    "./cache/ics",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.Canvas.Width <= 0 {
		c.Canvas.Width = def.Canvas.Width
	}
	if c.Canvas.Height <= 0 {
		c.Canvas.Height = def.Canvas.Height
	}
	if c.Canvas.PixelsPerMinute <= 0 {
		c.Canvas.PixelsPerMinute = def.Canvas.PixelsPerMinute
	}
	if c.Canvas.MinimumDurationMinutes <= 0 {
		c.Canvas.MinimumDurationMinutes = def.Canvas.MinimumDurationMinutes
	}
	if c.Canvas.FullDayRowHeight <= 0 {
		c.Canvas.FullDayRowHeight = def.Canvas.FullDayRowHeight
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.PreviewPath == "" {
		c.PreviewPath = def.PreviewPath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, create the parent directory, write a
//     default config with 0600 perms, and return the default config.
//   - If the file exists, read YAML, unmarshal, and normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path, atomically
// (temp file + rename) and with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".daygrid-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
