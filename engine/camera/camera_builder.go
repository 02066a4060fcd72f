package camera

// CameraBuilderOption is a functional option for configuring a Camera via NewCamera.
type CameraBuilderOption func(*cameraImpl)

// WithPosition sets the eye position.
//
// Parameters:
//   - x, y, z: the world-space position
//
// Returns:
//   - CameraBuilderOption: a function that applies the position option to a camera
func WithPosition(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = [3]float32{x, y, z}
	}
}

// WithTarget sets the point the camera looks at.
//
// Parameters:
//   - x, y, z: the world-space target
//
// Returns:
//   - CameraBuilderOption: a function that applies the target option to a camera
func WithTarget(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.target = [3]float32{x, y, z}
	}
}

// WithUp sets the up vector.
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = [3]float32{x, y, z}
	}
}

// WithFov sets the vertical field of view in radians.
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithClip sets the near and far plane distances.
func WithClip(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}
