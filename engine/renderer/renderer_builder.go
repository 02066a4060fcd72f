package renderer

import "go.uber.org/zap"

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithLogger sets the renderer logger. Defaults to a no-op logger.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(log *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if log != nil {
			r.log = log.Named("renderer")
		}
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithHostMemoryLimit caps the bytes the host backend may allocate. 0 means unlimited.
// Ignored by the wgpu backend.
//
// Parameters:
//   - limit: the byte limit
//
// Returns:
//   - RendererBuilderOption: a function that applies the memory limit option to a renderer
func WithHostMemoryLimit(limit uint64) RendererBuilderOption {
	return func(r *renderer) {
		r.hostMemoryLimit = limit
	}
}
