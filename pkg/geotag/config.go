package geotag

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is relative to the user's home directory.
const DefaultConfigPath = ".geotagger.yaml"

// Config holds configuration for geotagger.
type Config struct {
	// Latitude and Longitude are where the map starts.
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Zoom      int     `yaml:"zoom" json:"zoom"`
	// TileServer is handed to map front-ends, e.g. "tile.osm.org".
	TileServer string `yaml:"tileServer" json:"tileServer"`

	ThumbDir   string `yaml:"thumbDir" json:"-"`
	ThumbWidth int    `yaml:"thumbWidth" json:"thumbWidth"`
	BackupDir  string `yaml:"backupDir" json:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Latitude:   45.03,
		Longitude:  7.66,
		Zoom:       12,
		TileServer: "tile.osm.org",
		ThumbWidth: 128,
	}
}

// Center returns the initial map center.
func (c Config) Center() Coordinate {
	return Coordinate{Lat: c.Latitude, Lon: c.Longitude}
}

// ReadConfig reads a YAML config from path, or from ~/.geotagger.yaml when path is empty.
// A missing file yields the defaults.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultConfigPath)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Center().Validate(); err != nil {
		return cfg, fmt.Errorf("map center: %w", err)
	}
	if cfg.Zoom <= 0 {
		cfg.Zoom = DefaultConfig().Zoom
	}
	if cfg.ThumbWidth <= 0 {
		cfg.ThumbWidth = DefaultConfig().ThumbWidth
	}
	return cfg, nil
}
