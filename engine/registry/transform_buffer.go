package registry

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/Carmen-Shannon/oxy-world/engine/renderer"
)

// minBufferCapacity is the smallest slot count the buffer grows to.
const minBufferCapacity = 8

// transformBuffer is the host side of the GPU transform buffer for point-model instances.
// Slots are dense in [0, used). Removal swap-moves the last slot into the freed one so the
// draw range never contains holes. All fields are guarded by the registry mutex.
type transformBuffer struct {
	label    string
	mirror   []instance.GPUTransform
	owners   []uint32
	capacity int

	// Sparse dirty tracking: a slot index list plus a bitset for O(1) dedup.
	dirtyIndices []int
	dirtyBits    []uint64

	device    renderer.Buffer
	deviceCap int
}

// uploadPlan is what one sync must copy to the device, captured under the registry lock.
type uploadPlan struct {
	realloc  bool
	capacity int
	used     int
	writes   []slotWrite
}

// slotWrite covers the contiguous slots [first, first+n).
type slotWrite struct {
	first int
	n     int
	data  []byte
}

func newTransformBuffer(label string, capacity int) transformBuffer {
	b := transformBuffer{label: label}
	b.reserve(capacity)
	return b
}

func (b *transformBuffer) used() int {
	return len(b.mirror)
}

// reserve grows the host capacity to at least n slots. The device buffer is
// reallocated on the next sync because capacity now exceeds deviceCap.
func (b *transformBuffer) reserve(n int) {
	if n <= b.capacity {
		return
	}
	b.capacity = n
	if need := (n + 63) / 64; need > len(b.dirtyBits) {
		grown := make([]uint64, need)
		copy(grown, b.dirtyBits)
		b.dirtyBits = grown
	}
}

// acquire appends a slot for uid, doubling capacity when full.
func (b *transformBuffer) acquire(uid uint32, g instance.GPUTransform) int {
	if b.used() >= b.capacity {
		b.reserve(max(b.capacity*2, minBufferCapacity))
	}
	slot := b.used()
	b.mirror = append(b.mirror, g)
	b.owners = append(b.owners, uid)
	b.markDirty(slot)
	return slot
}

func (b *transformBuffer) set(slot int, g instance.GPUTransform) {
	b.mirror[slot] = g
	b.markDirty(slot)
}

// release frees slot by moving the last slot into it.
// Returns the uid whose slot changed, or false if the freed slot was the last one.
func (b *transformBuffer) release(slot int) (uint32, bool) {
	last := b.used() - 1
	var moved uint32
	ok := false
	if slot != last {
		b.mirror[slot] = b.mirror[last]
		b.owners[slot] = b.owners[last]
		moved = b.owners[slot]
		ok = true
		b.markDirty(slot)
	}
	b.mirror = b.mirror[:last]
	b.owners = b.owners[:last]
	return moved, ok
}

func (b *transformBuffer) markDirty(slot int) {
	word, bit := slot/64, uint64(1)<<(slot%64)
	if b.dirtyBits[word]&bit != 0 {
		return
	}
	b.dirtyBits[word] |= bit
	b.dirtyIndices = append(b.dirtyIndices, slot)
}

func (b *transformBuffer) clearDirty() {
	for _, slot := range b.dirtyIndices {
		b.dirtyBits[slot/64] &^= uint64(1) << (slot % 64)
	}
	b.dirtyIndices = b.dirtyIndices[:0]
}

func (b *transformBuffer) dirtyCount() int {
	return len(b.dirtyIndices)
}

// plan captures the bytes to upload and clears the dirty set. If the host capacity
// outgrew the device buffer the plan is a full reallocation and upload.
func (b *transformBuffer) plan() uploadPlan {
	p := uploadPlan{capacity: b.capacity, used: b.used()}

	if b.device == nil || b.capacity > b.deviceCap {
		p.realloc = true
		if p.used > 0 {
			p.writes = []slotWrite{b.encode(0, p.used)}
		}
		b.clearDirty()
		return p
	}

	if len(b.dirtyIndices) == 0 {
		return p
	}
	sort.Ints(b.dirtyIndices)

	// Coalesce sorted indices into contiguous ranges; slots past used were swap-removed.
	start, end := -1, -1
	for _, slot := range b.dirtyIndices {
		if slot >= p.used {
			break
		}
		if start >= 0 && slot == end+1 {
			end = slot
			continue
		}
		if start >= 0 {
			p.writes = append(p.writes, b.encode(start, end-start+1))
		}
		start, end = slot, slot
	}
	if start >= 0 {
		p.writes = append(p.writes, b.encode(start, end-start+1))
	}
	b.clearDirty()
	return p
}

func (b *transformBuffer) encode(first, n int) slotWrite {
	data := make([]byte, n*instance.GPUTransformSize)
	for i := range n {
		b.mirror[first+i].MarshalTo(data[i*instance.GPUTransformSize:])
	}
	return slotWrite{first: first, n: n, data: data}
}

// restore re-marks the slots of a failed plan so the next sync retries them.
func (b *transformBuffer) restore(p uploadPlan) {
	for _, w := range p.writes {
		for slot := w.first; slot < w.first+w.n && slot < b.used(); slot++ {
			b.markDirty(slot)
		}
	}
}
