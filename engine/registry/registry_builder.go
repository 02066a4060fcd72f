package registry

import "go.uber.org/zap"

// RegistryBuilderOption is a functional option for configuring a Registry.
// Use the With* functions to create options.
type RegistryBuilderOption func(r *registry)

// WithLogger sets the registry logger. Defaults to a no-op logger.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - RegistryBuilderOption: option function to apply
func WithLogger(log *zap.Logger) RegistryBuilderOption {
	return func(r *registry) {
		if log != nil {
			r.log = log.Named("registry")
		}
	}
}

// WithInitialCapacity sets the starting slot count of the transform buffer.
// The buffer doubles whenever it fills up; values below 8 are raised to 8.
//
// Parameters:
//   - n: the initial slot count
//
// Returns:
//   - RegistryBuilderOption: option function to apply
func WithInitialCapacity(n int) RegistryBuilderOption {
	return func(r *registry) {
		r.initialCapacity = n
	}
}

// WithBufferLabel sets the debug label of the device transform buffer.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - RegistryBuilderOption: option function to apply
func WithBufferLabel(label string) RegistryBuilderOption {
	return func(r *registry) {
		r.bufferLabel = label
	}
}

// WithFirstUID sets the first UID the allocator hands out. Defaults to 1.
//
// Parameters:
//   - uid: the first UID (0 is treated as 1)
//
// Returns:
//   - RegistryBuilderOption: option function to apply
func WithFirstUID(uid uint32) RegistryBuilderOption {
	return func(r *registry) {
		r.nextUID = max(uid, 1)
	}
}
