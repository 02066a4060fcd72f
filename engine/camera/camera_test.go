package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/stretchr/testify/assert"
)

func box(x, z float32) common.AABB {
	return common.AABB{Min: [3]float32{x - 1, 0, z - 1}, Max: [3]float32{x + 1, 2, z + 1}}
}

func TestFrustumFollowsLookAt(t *testing.T) {
	c := NewCamera(WithPosition(0, 5, 0), WithTarget(0, 5, -10), WithClip(0.1, 100))

	f := c.Frustum()
	assert.True(t, f.IntersectsAABB(box(0, -20)))
	assert.False(t, f.IntersectsAABB(box(0, 20)))

	c.LookAt([3]float32{0, 5, 0}, [3]float32{0, 5, 10})
	f = c.Frustum()
	assert.False(t, f.IntersectsAABB(box(0, -20)))
	assert.True(t, f.IntersectsAABB(box(0, 20)))
	assert.Equal(t, [3]float32{0, 5, 10}, c.Target())
}

func TestFarPlaneCulls(t *testing.T) {
	c := NewCamera(WithPosition(0, 5, 0), WithTarget(0, 5, -10), WithClip(0.1, 50))
	f := c.Frustum()
	assert.False(t, f.IntersectsAABB(box(0, -80)))

	c.SetClip(0.1, 200)
	f = c.Frustum()
	assert.True(t, f.IntersectsAABB(box(0, -80)))
}
