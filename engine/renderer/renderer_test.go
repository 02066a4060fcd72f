package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameTokenLifecycle(t *testing.T) {
	r, err := NewRenderer(BackendTypeHost)
	require.NoError(t, err)
	defer r.Release()

	f, err := r.BeginFrame()
	require.NoError(t, err)
	assert.True(t, f.Live())
	assert.Equal(t, uint64(1), f.ID())

	_, err = r.BeginFrame()
	assert.ErrorIs(t, err, ErrFrameInFlight)

	buf, err := f.CreateBuffer("test", 16)
	require.NoError(t, err)
	require.NoError(t, f.WriteBuffers([]BufferWrite{{Buffer: buf, Offset: 4, Data: []byte{1, 2, 3}}}))

	r.EndFrame(f)
	assert.False(t, f.Live())
	assert.Equal(t, uint64(1), r.FrameCount())

	_, err = f.CreateBuffer("late", 4)
	assert.ErrorIs(t, err, ErrFrameEnded)
	assert.ErrorIs(t, f.WriteBuffers(nil), ErrFrameEnded)

	data, ok := HostBufferData(buf)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 0}, data[:8])

	var nilFrame *Frame
	assert.False(t, nilFrame.Live())
}

func TestHostWriteBounds(t *testing.T) {
	r, err := NewRenderer(BackendTypeHost)
	require.NoError(t, err)

	f, err := r.BeginFrame()
	require.NoError(t, err)
	defer r.EndFrame(f)

	buf, err := f.CreateBuffer("small", 4)
	require.NoError(t, err)
	assert.Error(t, f.WriteBuffers([]BufferWrite{{Buffer: buf, Offset: 2, Data: []byte{1, 2, 3}}}))

	buf.Release()
	buf.Release()
	assert.ErrorIs(t, f.WriteBuffers([]BufferWrite{{Buffer: buf, Data: []byte{1}}}), ErrBufferReleased)
	_, ok := HostBufferData(buf)
	assert.False(t, ok)
}

func TestHostMemoryLimit(t *testing.T) {
	r, err := NewRenderer(BackendTypeHost, WithHostMemoryLimit(100))
	require.NoError(t, err)

	f, err := r.BeginFrame()
	require.NoError(t, err)
	defer r.EndFrame(f)

	a, err := f.CreateBuffer("a", 64)
	require.NoError(t, err)
	_, err = f.CreateBuffer("b", 64)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	a.Release()
	_, err = f.CreateBuffer("b", 64)
	assert.NoError(t, err)
}

func TestParseBackendType(t *testing.T) {
	bt, err := ParseBackendType("wgpu")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeWGPU, bt)

	bt, err = ParseBackendType("")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeHost, bt)
	assert.Equal(t, "host", bt.String())

	_, err = ParseBackendType("vulkan")
	assert.Error(t, err)
}
