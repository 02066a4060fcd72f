package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-world/common"
)

// cameraImpl is the implementation of the Camera interface.
type cameraImpl struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32
	up       [3]float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32
	frustum              common.Frustum
}

// Camera is a perspective viewpoint used to decide which tiles are visible.
// Matrices and the frustum are recomputed whenever a parameter changes.
type Camera interface {
	// Position returns the eye position in world space.
	Position() [3]float32

	// Target returns the world-space point the camera looks at.
	Target() [3]float32

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the width / height ratio.
	Aspect() float32

	// ViewProjectionMatrix returns projection * view.
	//
	// Returns:
	//   - [16]float32: the column-major matrix
	ViewProjectionMatrix() [16]float32

	// Frustum returns the six normalized clip planes of the current view.
	//
	// Returns:
	//   - common.Frustum: the view frustum
	Frustum() common.Frustum

	// LookAt moves the eye and target together.
	//
	// Parameters:
	//   - position: the eye position
	//   - target: the point to look at
	LookAt(position, target [3]float32)

	// SetAspect updates the aspect ratio.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// SetClip updates the near and far clip distances.
	//
	// Parameters:
	//   - near: near plane distance
	//   - far: far plane distance
	SetClip(near, far float32)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Camera at (0, 10, 10) looking at the origin, then applies the options.
//
// Parameters:
//   - options: a variadic list of CameraBuilderOption functions
//
// Returns:
//   - Camera: the configured camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		position: [3]float32{0, 10, 10},
		up:       [3]float32{0, 1, 0},
		fov:      45.0 * (math.Pi / 180.0), // radians
		aspect:   1.0,
		near:     0.1,
		far:      1000.0,
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frustum
}

func (c *cameraImpl) LookAt(position, target [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = position
	c.target = target
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetClip(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.far = far
	c.updateMatrices()
}

// updateMatrices recalculates the view, projection and view-projection matrices and the frustum.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	common.LookAt(c.viewMatrix[:],
		c.position[0], c.position[1], c.position[2],
		c.target[0], c.target[1], c.target[2],
		c.up[0], c.up[1], c.up[2],
	)
	common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
	c.frustum = common.ExtractFrustumFromMatrix(c.viewProjectionMatrix[:])
}
