package instance

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUTransformSize is the byte size of one GPUTransform slot in the transform buffer.
const GPUTransformSize = 64

// GPUTransform is the GPU-aligned per-instance record stored in the transform buffer.
// Size: 64 bytes (std430 aligned).
type GPUTransform struct {
	Model [16]float32 // offset 0, size 64 (mat4x4<f32>)
}

// Size returns the size of the GPUTransform struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUTransform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUTransform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUTransform) Marshal() []byte {
	buf := make([]byte, GPUTransformSize)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the record into buf, which must hold at least GPUTransformSize bytes.
//
// Parameters:
//   - buf: destination buffer
func (g *GPUTransform) MarshalTo(buf []byte) {
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Model[i]))
	}
}

// UnmarshalGPUTransform decodes one record from buf.
//
// Parameters:
//   - buf: at least GPUTransformSize bytes
//
// Returns:
//   - GPUTransform: the decoded record
func UnmarshalGPUTransform(buf []byte) GPUTransform {
	var g GPUTransform
	for i := range 16 {
		g.Model[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : (i+1)*4]))
	}
	return g
}
