package engine

import (
	"time"

	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
	}
}

// WithProfilerInterval sets how often the profiler logs.
//
// Parameters:
//   - d: the report interval (defaults to 1s if <= 0)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfilerInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		if d > 0 {
			e.profilerInterval = d
		}
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithTickInterval sets the engine tick period directly.
//
// Parameters:
//   - d: the tick period (ignored if <= 0)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		if d > 0 {
			e.engineTickRate = d
		}
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit.Store(int64(frameDuration(fps)))
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if log != nil {
			e.log = log.Named("engine")
		}
	}
}
