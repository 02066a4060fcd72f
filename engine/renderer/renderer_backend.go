package renderer

import (
	"errors"
	"fmt"
)

// RendererBackendType identifies the device implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU device.
	BackendTypeWGPU RendererBackendType = iota
	// BackendTypeHost keeps buffers in process memory. Used by headless tools and tests.
	BackendTypeHost
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeHost:
		return "host"
	default:
		return fmt.Sprintf("backend(%d)", int(t))
	}
}

// ParseBackendType converts a config value into a RendererBackendType.
//
// Parameters:
//   - s: "wgpu" or "host"
//
// Returns:
//   - RendererBackendType: the parsed type
//   - error: error if the name is unknown
func ParseBackendType(s string) (RendererBackendType, error) {
	switch s {
	case "wgpu":
		return BackendTypeWGPU, nil
	case "host", "":
		return BackendTypeHost, nil
	default:
		return 0, fmt.Errorf("unknown renderer backend %q", s)
	}
}

var (
	// ErrFrameInFlight is returned by BeginFrame while a previous frame has not ended.
	ErrFrameInFlight = errors.New("previous frame not yet ended")
	// ErrFrameEnded is returned when a Frame is used after EndFrame.
	ErrFrameEnded = errors.New("frame already ended")
	// ErrBufferReleased is returned when writing to a released buffer.
	ErrBufferReleased = errors.New("buffer released")
	// ErrOutOfMemory is returned when the device cannot allocate a buffer.
	ErrOutOfMemory = errors.New("device out of memory")
)

// Buffer is a device-resident buffer.
type Buffer interface {
	// Label returns the debug label the buffer was created with.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Release frees the device memory. Safe to call more than once.
	Release()
}

// RendererBackend is the device-level API the Renderer delegates to.
type RendererBackend interface {
	// CreateBuffer allocates a storage buffer that can be written from the host.
	//
	// Parameters:
	//   - label: debug label
	//   - size: size in bytes
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: allocation error
	CreateBuffer(label string, size uint64) (Buffer, error)

	// WriteBuffer queues a host-to-device copy into buf at offset.
	//
	// Parameters:
	//   - buf: destination buffer created by this backend
	//   - offset: byte offset into buf
	//   - data: bytes to copy
	//
	// Returns:
	//   - error: error if the write is out of range or the buffer is released
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// BeginFrame opens the per-frame command recording.
	BeginFrame() error

	// EndFrame submits everything recorded since BeginFrame.
	EndFrame()

	// Release frees the device.
	Release()
}

// BufferWrite is one staged host-to-device copy.
type BufferWrite struct {
	Buffer Buffer
	Offset uint64
	Data   []byte
}
