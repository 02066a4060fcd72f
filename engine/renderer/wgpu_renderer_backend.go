package renderer

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	// Frame state for batching copies into one submission
	frameEncoder *wgpu.CommandEncoder
}

type wgpuBuffer struct {
	label string
	size  uint64
	buf   *wgpu.Buffer
	once  sync.Once
}

var (
	_ RendererBackend = &wgpuRendererBackendImpl{}
	_ Buffer          = &wgpuBuffer{}
)

// newWGPURendererBackend requests a headless adapter and device. No surface is created;
// the transform buffer only needs a device and a queue.
func newWGPURendererBackend(forceFallbackAdapter bool) (RendererBackend, error) {
	w := &wgpuRendererBackendImpl{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "World Device",
	})
	if err != nil {
		w.adapter.Release()
		w.instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64) (Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%d bytes): %v", ErrOutOfMemory, label, size, err)
	}
	return &wgpuBuffer{label: label, size: size, buf: buf}, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	wb, ok := buf.(*wgpuBuffer)
	if !ok {
		return fmt.Errorf("buffer %q was not created by the wgpu backend", buf.Label())
	}
	if wb.buf == nil {
		return ErrBufferReleased
	}
	if offset+uint64(len(data)) > wb.size {
		return fmt.Errorf("write [%d, %d) exceeds buffer %q of %d bytes", offset, offset+uint64(len(data)), wb.label, wb.size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.queue.WriteBuffer(wb.buf, offset, data); err != nil {
		return fmt.Errorf("write buffer %q: %w", wb.label, err)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder != nil {
		return ErrFrameInFlight
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.frameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return
	}
	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
		return
	}

	b.queue.Submit(commandBuffer)

	commandBuffer.Release()
	b.frameEncoder.Release()
	b.frameEncoder = nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

func (w *wgpuBuffer) Label() string {
	return w.label
}

func (w *wgpuBuffer) Size() uint64 {
	return w.size
}

func (w *wgpuBuffer) Release() {
	w.once.Do(func() {
		w.buf.Release()
		w.buf = nil
	})
}

// WGPUBuffer returns the native handle behind a Buffer created by the wgpu backend,
// for binding it in a draw call. Returns nil for other backends or released buffers.
//
// Parameters:
//   - b: the buffer
//
// Returns:
//   - *wgpu.Buffer: the native handle or nil
func WGPUBuffer(b Buffer) *wgpu.Buffer {
	if wb, ok := b.(*wgpuBuffer); ok {
		return wb.buf
	}
	return nil
}
