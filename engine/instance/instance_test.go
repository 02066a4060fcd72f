package instance

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unitBox = common.AABB{Min: [3]float32{-1, -1, -1}, Max: [3]float32{1, 1, 1}}

func TestPointExtents(t *testing.T) {
	m := model.NewModel(model.WithName("crate"), model.WithBounds(unitBox), model.WithLoaded(true))
	inst := NewInstance(WithModel(m), WithPosition(10, 0, -4), WithScale(2, 2, 2))

	require.Equal(t, KindPointModel, inst.Kind)
	require.True(t, inst.ComputeExtents())
	assert.InDelta(t, 8, inst.Extents.Min[0], 1e-5)
	assert.InDelta(t, 12, inst.Extents.Max[0], 1e-5)
	assert.InDelta(t, -6, inst.Extents.Min[2], 1e-5)
}

func TestRotatedExtentsStayConservative(t *testing.T) {
	m := model.NewModel(model.WithBounds(unitBox), model.WithLoaded(true))
	inst := NewInstance(WithModel(m), WithRotation(0, math.Pi/4, 0))

	require.True(t, inst.ComputeExtents())
	assert.InDelta(t, math.Sqrt2, inst.Extents.Max[0], 1e-4)
	assert.InDelta(t, math.Sqrt2, inst.Extents.Max[2], 1e-4)
	assert.InDelta(t, 1, inst.Extents.Max[1], 1e-5)
}

func TestCompoundExtents(t *testing.T) {
	offset := common.IdentityTransform()
	offset.Position = [3]float32{3, 0, 0}
	m := model.NewModel(
		model.WithLoaded(true),
		model.WithParts(
			model.Part{Name: "a", Transform: common.IdentityTransform(), Bounds: unitBox},
			model.Part{Name: "b", Transform: offset, Bounds: unitBox},
		),
	)
	inst := NewInstance(WithModel(m), WithPosition(0, 0, 100))

	require.Equal(t, KindCompoundModel, inst.Kind)
	require.True(t, inst.ComputeExtents())
	assert.InDelta(t, -1, inst.Extents.Min[0], 1e-5)
	assert.InDelta(t, 4, inst.Extents.Max[0], 1e-5)
	assert.InDelta(t, 99, inst.Extents.Min[2], 1e-5)
}

func TestPendingInstanceKeepsExtents(t *testing.T) {
	m := model.NewModel(model.WithBounds(unitBox))
	inst := NewInstance(WithModel(m))

	assert.True(t, inst.Pending())
	assert.False(t, inst.ComputeExtents())
	assert.True(t, inst.Extents.Empty())

	m.SetLoaded(true)
	assert.True(t, inst.ComputeExtents())
	assert.False(t, inst.Extents.Empty())
}

func TestKindNames(t *testing.T) {
	for _, k := range []Kind{KindPointModel, KindCompoundModel} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("terrain")
	assert.Error(t, err)
}

func TestGPUTransformLayout(t *testing.T) {
	inst := NewInstance(WithPosition(1, 2, 3))
	g := inst.GPUTransform()
	assert.Equal(t, GPUTransformSize, g.Size())

	buf := g.Marshal()
	require.Len(t, buf, GPUTransformSize)
	back := UnmarshalGPUTransform(buf)
	assert.Equal(t, float32(1), back.Model[12])
	assert.Equal(t, float32(2), back.Model[13])
	assert.Equal(t, float32(3), back.Model[14])
	assert.Equal(t, float32(1), back.Model[15])
}
