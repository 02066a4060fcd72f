package renderer

import (
	"fmt"
	"sync"
)

// hostRendererBackend keeps buffers in process memory.
// An optional memory limit makes allocation fail the way a real device does when it runs out.
type hostRendererBackend struct {
	mu        *sync.Mutex
	limit     uint64
	allocated uint64
	inFrame   bool
	frames    uint64
}

type hostBuffer struct {
	backend  *hostRendererBackend
	label    string
	data     []byte
	mu       *sync.Mutex
	released bool
}

var (
	_ RendererBackend = &hostRendererBackend{}
	_ Buffer          = &hostBuffer{}
)

func newHostRendererBackend(limit uint64) RendererBackend {
	return &hostRendererBackend{
		mu:    &sync.Mutex{},
		limit: limit,
	}
}

func (h *hostRendererBackend) CreateBuffer(label string, size uint64) (Buffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit > 0 && h.allocated+size > h.limit {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d of %d in use", ErrOutOfMemory, label, size, h.allocated, h.limit)
	}
	h.allocated += size
	return &hostBuffer{
		backend: h,
		label:   label,
		data:    make([]byte, size),
		mu:      &sync.Mutex{},
	}, nil
}

func (h *hostRendererBackend) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	hb, ok := buf.(*hostBuffer)
	if !ok {
		return fmt.Errorf("buffer %q was not created by the host backend", buf.Label())
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()

	if hb.released {
		return ErrBufferReleased
	}
	end := offset + uint64(len(data))
	if end > uint64(len(hb.data)) {
		return fmt.Errorf("write [%d, %d) exceeds buffer %q of %d bytes", offset, end, hb.label, len(hb.data))
	}
	copy(hb.data[offset:end], data)
	return nil
}

func (h *hostRendererBackend) BeginFrame() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inFrame {
		return ErrFrameInFlight
	}
	h.inFrame = true
	return nil
}

func (h *hostRendererBackend) EndFrame() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inFrame {
		h.inFrame = false
		h.frames++
	}
}

func (h *hostRendererBackend) Release() {}

func (h *hostRendererBackend) free(size uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allocated -= size
}

func (b *hostBuffer) Label() string {
	return b.label
}

func (b *hostBuffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *hostBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}
	b.released = true
	b.backend.free(uint64(len(b.data)))
}

// HostBufferData returns a copy of a host buffer's contents.
// The second result is false for buffers from other backends or released buffers.
//
// Parameters:
//   - b: the buffer
//
// Returns:
//   - []byte: a copy of the buffer bytes
//   - bool: true if the contents could be read
func HostBufferData(b Buffer) ([]byte, bool) {
	hb, ok := b.(*hostBuffer)
	if !ok {
		return nil, false
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()

	if hb.released {
		return nil, false
	}
	out := make([]byte, len(hb.data))
	copy(out, hb.data)
	return out, true
}
