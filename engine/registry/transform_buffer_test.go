package registry

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/Carmen-Shannon/oxy-world/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHostRenderer(t *testing.T, options ...renderer.RendererBuilderOption) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHost, options...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func syncFrame(t *testing.T, rnd renderer.Renderer, reg Registry) (DrawInfo, error) {
	t.Helper()
	f, err := rnd.BeginFrame()
	require.NoError(t, err)
	defer rnd.EndFrame(f)
	return reg.SyncGPUBuffer(f)
}

// assertDeviceMatches checks every drawn slot against the transform of the instance that owns it.
func assertDeviceMatches(t *testing.T, reg Registry, info DrawInfo) {
	t.Helper()
	data, ok := renderer.HostBufferData(info.Buffer)
	require.True(t, ok)

	r := reg.(*registry)
	r.mu.Lock()
	owners := append([]uint32(nil), r.buf.owners...)
	r.mu.Unlock()
	require.Equal(t, int(info.Count), len(owners))

	for slot, uid := range owners {
		inst, ok := reg.Get(uid)
		require.True(t, ok)
		got := instance.UnmarshalGPUTransform(data[slot*instance.GPUTransformSize:])
		assert.Equal(t, inst.GPUTransform(), got, "slot %d uid %d", slot, uid)
	}
}

func TestCoalescedDirtyRanges(t *testing.T) {
	b := newTransformBuffer("test", 16)
	for uid := uint32(1); uid <= 10; uid++ {
		b.acquire(uid, instance.GPUTransform{})
	}
	b.device = nilBuffer{}
	b.deviceCap = 16
	b.clearDirty()

	for _, slot := range []int{7, 2, 3, 1, 3, 9} {
		b.markDirty(slot)
	}
	p := b.plan()
	require.False(t, p.realloc)
	require.Len(t, p.writes, 3)
	assert.Equal(t, slotWrite{first: 1, n: 3, data: p.writes[0].data}, p.writes[0])
	assert.Equal(t, 7, p.writes[1].first)
	assert.Equal(t, 9, p.writes[2].first)
	assert.Len(t, p.writes[0].data, 3*instance.GPUTransformSize)
	assert.Zero(t, b.dirtyCount())

	// Slots past used were swap-removed and are skipped.
	b.markDirty(9)
	b.release(9)
	assert.Empty(t, b.plan().writes)
}

type nilBuffer struct{}

func (nilBuffer) Label() string { return "nil" }
func (nilBuffer) Size() uint64  { return 0 }
func (nilBuffer) Release()      {}

func TestBufferGrowthPreservesTransforms(t *testing.T) {
	f := newFixture(t, WithInitialCapacity(8))
	rnd := newHostRenderer(t)
	m := loadedModel("crate")

	for i := range 5 {
		_, err := f.reg.Add(pointAt(m, float32(i), 0), 0)
		require.NoError(t, err)
	}
	info, err := syncFrame(t, rnd, f.reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), info.Count)
	assert.Equal(t, uint32(8), info.Capacity)
	first := info.Buffer
	assertDeviceMatches(t, f.reg, info)

	for i := range 20 {
		_, err := f.reg.Add(pointAt(m, float32(i), 10), 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 32, f.reg.Stats().BufferCapacity)

	info, err = syncFrame(t, rnd, f.reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(25), info.Count)
	assert.Equal(t, uint32(32), info.Capacity)
	assert.NotSame(t, first, info.Buffer)
	assertDeviceMatches(t, f.reg, info)

	_, ok := renderer.HostBufferData(first)
	assert.False(t, ok, "old buffer must be released after growth")
	assert.Equal(t, info, f.reg.DrawInfo())
}

func TestSwapRemoveUploadsMovedSlot(t *testing.T) {
	f := newFixture(t)
	rnd := newHostRenderer(t)
	m := loadedModel("crate")

	var uids []uint32
	for i := range 3 {
		uid, err := f.reg.Add(pointAt(m, float32(i*10), 0), 0)
		require.NoError(t, err)
		uids = append(uids, uid)
	}
	_, err := syncFrame(t, rnd, f.reg)
	require.NoError(t, err)

	require.NoError(t, f.reg.Remove(uids[0]))
	assert.Equal(t, 1, f.reg.Stats().DirtySlots)

	info, err := syncFrame(t, rnd, f.reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), info.Count)
	assertDeviceMatches(t, f.reg, info)

	require.NoError(t, f.reg.Move(uids[2], pointAt(m, -40, 0).Transform))
	info, err = syncFrame(t, rnd, f.reg)
	require.NoError(t, err)
	assertDeviceMatches(t, f.reg, info)
	checkInvariants(t, f.reg)
}

func TestCompoundInstancesHaveNoSlot(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Add(pointAt(compoundModel("wall"), 0, 0), 0)
	require.NoError(t, err)
	assert.Zero(t, f.reg.Stats().BufferUsed)
	checkInvariants(t, f.reg)
}

func TestGrowthFailureKeepsStateForRetry(t *testing.T) {
	// Room for the 8-slot buffer but not for the 16-slot replacement next to it.
	f := newFixture(t, WithInitialCapacity(8))
	rnd := newHostRenderer(t, renderer.WithHostMemoryLimit(8*instance.GPUTransformSize+100))
	m := loadedModel("crate")

	for i := range 8 {
		_, err := f.reg.Add(pointAt(m, float32(i), 0), 0)
		require.NoError(t, err)
	}
	before, err := syncFrame(t, rnd, f.reg)
	require.NoError(t, err)

	_, err = f.reg.Add(pointAt(m, 100, 0), 0)
	require.NoError(t, err)

	for range 2 {
		_, err = syncFrame(t, rnd, f.reg)
		assert.ErrorIs(t, err, ErrBufferGrowth)
	}
	assert.Equal(t, before, f.reg.DrawInfo())

	stats := f.reg.Stats()
	assert.Equal(t, 16, stats.BufferCapacity)
	assert.Equal(t, 8, stats.DeviceCapacity)
	assert.Equal(t, 9, stats.BufferUsed)
	checkInvariants(t, f.reg)
}

func TestSyncRequiresLiveFrame(t *testing.T) {
	f := newFixture(t)
	rnd := newHostRenderer(t)

	_, err := f.reg.SyncGPUBuffer(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	frame, err := rnd.BeginFrame()
	require.NoError(t, err)
	rnd.EndFrame(frame)
	_, err = f.reg.SyncGPUBuffer(frame)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestReleaseDropsDeviceBuffer(t *testing.T) {
	f := newFixture(t)
	rnd := newHostRenderer(t)
	_, err := f.reg.Add(pointAt(loadedModel("crate"), 0, 0), 0)
	require.NoError(t, err)

	info, err := syncFrame(t, rnd, f.reg)
	require.NoError(t, err)
	f.reg.Release()

	_, ok := renderer.HostBufferData(info.Buffer)
	assert.False(t, ok)
	assert.Nil(t, f.reg.DrawInfo().Buffer)

	// The next sync reallocates.
	info, err = syncFrame(t, rnd, f.reg)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Count)
}
