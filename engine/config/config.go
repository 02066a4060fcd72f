package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	World    WorldConfig    `toml:"world"`
	Loader   LoaderConfig   `toml:"loader"`
	Renderer RendererConfig `toml:"renderer"`
	Store    StoreConfig    `toml:"store"`
	Profiler ProfilerConfig `toml:"profiler"`
	Logging  LoggingConfig  `toml:"logging"`
}

type WorldConfig struct {
	Name                  string  `toml:"name"`
	TileSize              float32 `toml:"tile_size"` // world units per tile edge
	MinTileX              int32   `toml:"min_tile_x"`
	MinTileZ              int32   `toml:"min_tile_z"`
	MaxTileX              int32   `toml:"max_tile_x"`
	MaxTileZ              int32   `toml:"max_tile_z"`
	InitialBufferCapacity int     `toml:"initial_buffer_capacity"` // transform slots
}

type LoaderConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"` // initial update queue capacity
}

type RendererConfig struct {
	Backend       string        `toml:"backend"` // "host" or "wgpu"
	ForceSoftware bool          `toml:"force_software"`
	FrameLimit    int           `toml:"frame_limit"` // frames per second, 0 = uncapped
	TickRate      time.Duration `toml:"tick_rate"`
}

type StoreConfig struct {
	Kind     string `toml:"kind"` // "snapshot" or "sqlite"
	Path     string `toml:"path"`
	Manifest string `toml:"manifest"` // YAML asset manifest
}

type ProfilerConfig struct {
	Enabled  bool          `toml:"enabled"`
	Interval time.Duration `toml:"interval"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.World.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("world.tile_size must be positive, got %v", c.World.TileSize))
	}
	if c.World.MinTileX > c.World.MaxTileX || c.World.MinTileZ > c.World.MaxTileZ {
		errs = append(errs, errors.New("world tile bounds are inverted"))
	}
	if c.Loader.Workers < 1 {
		errs = append(errs, fmt.Errorf("loader.workers must be at least 1, got %d", c.Loader.Workers))
	}
	switch c.Renderer.Backend {
	case "host", "wgpu":
	default:
		errs = append(errs, fmt.Errorf("renderer.backend must be host or wgpu, got %q", c.Renderer.Backend))
	}
	switch c.Store.Kind {
	case "snapshot", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.kind must be snapshot or sqlite, got %q", c.Store.Kind))
	}
	if c.Renderer.TickRate <= 0 {
		errs = append(errs, errors.New("renderer.tick_rate must be positive"))
	}
	return errors.Join(errs...)
}

func Defaults() *Config {
	return &Config{
		World: WorldConfig{
			Name:                  "untitled",
			TileSize:              64,
			MinTileX:              -32,
			MinTileZ:              -32,
			MaxTileX:              31,
			MaxTileZ:              31,
			InitialBufferCapacity: 1024,
		},
		Loader: LoaderConfig{
			Workers:   4,
			QueueSize: 256,
		},
		Renderer: RendererConfig{
			Backend:    "host",
			FrameLimit: 60,
			TickRate:   50 * time.Millisecond,
		},
		Store: StoreConfig{
			Kind: "snapshot",
			Path: "world.oxw",
		},
		Profiler: ProfilerConfig{
			Enabled:  false,
			Interval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
