// Package config loads boxfish settings from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/voxelsplace/boxfish/snapshot"
	"github.com/voxelsplace/boxfish/volume"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable the CLI reads the config path from.
const EnvPath = "BOXFISH_CONFIG"

type Config struct {
	Volume   VolumeConfig   `yaml:"volume"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Terrain  TerrainConfig  `yaml:"terrain"`
	Log      LogConfig      `yaml:"log"`
}

type VolumeConfig struct {
	Scale      float32 `yaml:"scale"`
	Collisions bool    `yaml:"collisions"`
	Workers    int     `yaml:"workers"`
}

type SnapshotConfig struct {
	// Compression is one of none, zlib or zstd.
	Compression string `yaml:"compression"`
}

type TerrainConfig struct {
	Seed   uint64 `yaml:"seed"`
	Radius int    `yaml:"radius"`
	Height int    `yaml:"height"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Volume:   VolumeConfig{Scale: 1, Collisions: true},
		Snapshot: SnapshotConfig{Compression: "zstd"},
		Terrain:  TerrainConfig{Seed: 1, Radius: 8, Height: 16},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads the file at path over Default. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads the file named by BOXFISH_CONFIG.
func LoadEnv() (*Config, error) {
	return Load(os.Getenv(EnvPath))
}

func (c *Config) Validate() error {
	if c.Volume.Scale == 0 {
		c.Volume.Scale = 1
	}
	if c.Volume.Scale < 0 {
		return fmt.Errorf("volume.scale must be positive")
	}
	if c.Volume.Workers < 0 {
		return fmt.Errorf("volume.workers cannot be negative")
	}
	if c.Snapshot.Compression == "" {
		c.Snapshot.Compression = "none"
	}
	if _, err := snapshot.ParseCompression(c.Snapshot.Compression); err != nil {
		return fmt.Errorf("snapshot.compression invalid: %w", err)
	}
	if c.Terrain.Radius < 0 {
		return fmt.Errorf("terrain.radius cannot be negative")
	}
	if c.Terrain.Height < 1 || c.Terrain.Height > 16 {
		return fmt.Errorf("terrain.height must be in [1, 16]")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level invalid: %w", err)
	}
	return nil
}

// SlogLevel parses Level (debug, info, warn, error).
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.ToUpper(l.Level)))
	return level, err
}

// VolumeOptions converts the volume and snapshot sections.
func (c *Config) VolumeOptions(log *slog.Logger) (volume.Options, error) {
	comp, err := snapshot.ParseCompression(c.Snapshot.Compression)
	if err != nil {
		return volume.Options{}, err
	}
	return volume.Options{
		Scale:       c.Volume.Scale,
		Collisions:  c.Volume.Collisions,
		Workers:     c.Volume.Workers,
		Compression: comp,
		Logger:      log,
	}, nil
}
