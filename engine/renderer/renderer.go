package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend
	log         *zap.Logger

	current *Frame
	frames  atomic.Uint64

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	hostMemoryLimit      uint64
}

// Renderer owns the rendering context. Device uploads are only possible through the Frame
// it hands out between BeginFrame and EndFrame, so code that holds a *Frame is known to be
// running on the render goroutine inside a frame.
type Renderer interface {
	// BackendType returns the device implementation in use.
	BackendType() RendererBackendType

	// BeginFrame opens a frame and returns its token.
	//
	// Returns:
	//   - *Frame: the frame token, valid until EndFrame
	//   - error: ErrFrameInFlight if the previous frame was not ended, or a backend error
	BeginFrame() (*Frame, error)

	// EndFrame submits the frame and invalidates its token. Ending a stale token is a no-op.
	//
	// Parameters:
	//   - f: the token returned by BeginFrame
	EndFrame(f *Frame)

	// FrameCount returns the number of frames ended so far.
	FrameCount() uint64

	// Release frees the device. The renderer must not be used afterwards.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer on the chosen backend.
//
// Parameters:
//   - backendType: the device implementation to use
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: error if the device could not be created
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
		log:         zap.NewNop(),
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeWGPU:
		backend, err := newWGPURendererBackend(r.forceFallbackAdapter)
		if err != nil {
			return nil, fmt.Errorf("wgpu backend: %w", err)
		}
		r.backend = backend
	case BackendTypeHost:
		r.backend = newHostRendererBackend(r.hostMemoryLimit)
	default:
		return nil, fmt.Errorf("unsupported renderer backend %s", backendType)
	}

	r.log.Info("renderer ready", zap.Stringer("backend", backendType))
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) BeginFrame() (*Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return nil, ErrFrameInFlight
	}
	if err := r.backend.BeginFrame(); err != nil {
		return nil, err
	}
	f := &Frame{
		id:      r.frames.Load() + 1,
		backend: r.backend,
	}
	f.live.Store(true)
	r.current = f
	return f, nil
}

func (r *renderer) EndFrame(f *Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f == nil || f != r.current {
		return
	}
	f.live.Store(false)
	r.current = nil
	r.backend.EndFrame()
	r.frames.Add(1)
}

func (r *renderer) FrameCount() uint64 {
	return r.frames.Load()
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.current.live.Store(false)
		r.current = nil
	}
	r.backend.Release()
}

// Frame is the capability token for one frame. All device uploads go through it.
type Frame struct {
	id      uint64
	backend RendererBackend
	live    atomic.Bool
}

// ID returns the 1-based frame number.
func (f *Frame) ID() uint64 {
	return f.id
}

// Live reports whether the frame has not ended yet. A nil frame is never live.
func (f *Frame) Live() bool {
	return f != nil && f.live.Load()
}

// CreateBuffer allocates a device buffer during the frame.
//
// Parameters:
//   - label: debug label
//   - size: size in bytes
//
// Returns:
//   - Buffer: the new buffer
//   - error: ErrFrameEnded or an allocation error
func (f *Frame) CreateBuffer(label string, size uint64) (Buffer, error) {
	if !f.Live() {
		return nil, ErrFrameEnded
	}
	return f.backend.CreateBuffer(label, size)
}

// WriteBuffers applies staged writes in order and stops at the first error.
//
// Parameters:
//   - writes: the staged copies
//
// Returns:
//   - error: ErrFrameEnded or the first write error
func (f *Frame) WriteBuffers(writes []BufferWrite) error {
	if !f.Live() {
		return ErrFrameEnded
	}
	for _, w := range writes {
		if w.Buffer == nil {
			continue
		}
		if err := f.backend.WriteBuffer(w.Buffer, w.Offset, w.Data); err != nil {
			return err
		}
	}
	return nil
}
