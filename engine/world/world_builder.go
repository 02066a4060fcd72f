package world

import (
	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"go.uber.org/zap"
)

// WorldBuilderOption is a functional option for configuring a World via NewWorld.
type WorldBuilderOption func(*world)

// WithName sets the map name.
func WithName(name string) WorldBuilderOption {
	return func(w *world) {
		w.name = name
	}
}

// WithWorldConfig sets the tile layout and buffer sizing.
//
// Parameters:
//   - cfg: the [world] config section
//
// Returns:
//   - WorldBuilderOption: a function that applies the config to a world
func WithWorldConfig(cfg config.WorldConfig) WorldBuilderOption {
	return func(w *world) {
		w.cfg = cfg
		w.name = common.Coalesce(cfg.Name, w.name)
	}
}

// WithLoaderConfig sets the Load worker count and the update queue capacity.
//
// Parameters:
//   - cfg: the [loader] config section
//
// Returns:
//   - WorldBuilderOption: a function that applies the config to a world
func WithLoaderConfig(cfg config.LoaderConfig) WorldBuilderOption {
	return func(w *world) {
		if cfg.Workers > 0 {
			w.loaderWorkers = cfg.Workers
		}
		if cfg.QueueSize > 0 {
			w.queueCapacity = cfg.QueueSize
		}
	}
}

// WithLogger sets the logger. The world, its queue and its registry each get a named child.
func WithLogger(log *zap.Logger) WorldBuilderOption {
	return func(w *world) {
		if log != nil {
			w.log = log.Named("world")
		}
	}
}
