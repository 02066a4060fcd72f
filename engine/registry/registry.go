package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/Carmen-Shannon/oxy-world/engine/renderer"
	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
	"github.com/Carmen-Shannon/oxy-world/engine/update_queue"
	"go.uber.org/zap"
)

type entryState uint8

const (
	// statePending entries wait for their model to load and are not in the tile index.
	statePending entryState = iota
	// stateIndexed entries have had an Add command enqueued.
	stateIndexed
	// stateRemoving entries have a Remove command in flight and are invisible to readers.
	stateRemoving
)

type entry struct {
	inst  instance.Instance
	state entryState
	slot  int // transform buffer slot, -1 for compound models
}

// DrawInfo is what the instanced draw call needs from the transform buffer.
type DrawInfo struct {
	// Buffer is the device buffer, nil before the first successful sync.
	Buffer renderer.Buffer
	// Count is the number of slots uploaded and safe to draw.
	Count uint32
	// Capacity is the device buffer size in slots.
	Capacity uint32
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Points          int
	Compounds       int
	Pending         int
	Removing        int
	BufferUsed      int
	BufferCapacity  int
	DeviceCapacity  int
	DirtySlots      int
	DuplicatesFound bool
}

// registry is the implementation of the Registry interface.
type registry struct {
	mu *sync.Mutex

	points    map[uint32]*entry
	compounds map[uint32]*entry
	inUse     map[uint32]struct{}
	nextUID   uint32

	duplicatesFound atomic.Bool
	duplicates      []Duplicate

	buf      transformBuffer
	lastDraw DrawInfo

	queue update_queue.UpdateQueue
	log   *zap.Logger

	initialCapacity int
	bufferLabel     string
}

// Registry is the thread-safe owner of every live instance, keyed by UID and partitioned by kind.
// Mutations enqueue the matching tile index command while the registry lock is held, so the
// update queue sees commands in the same order the registry applied them.
// The registry also owns the GPU transform buffer for point-model instances.
type Registry interface {
	// Add stores an instance and enqueues its Add command once the model is loaded.
	// A requested UID of 0 allocates the next free UID. If the requested UID is already in use the
	// instance is stored under a fresh UID, the sticky duplicates flag is set, and a
	// *DuplicateUIDError is returned together with the assigned UID, which is valid.
	//
	// Parameters:
	//   - inst: the instance to add; its UID field is ignored
	//   - requested: the UID to use, or 0 for none
	//
	// Returns:
	//   - uint32: the assigned UID, valid whenever the error is nil or wraps ErrDuplicateUID
	//   - error: *DuplicateUIDError, or ErrInvalidKind
	Add(inst instance.Instance, requested uint32) (uint32, error)

	// Get returns a copy of a live instance.
	//
	// Parameters:
	//   - uid: the instance UID
	//
	// Returns:
	//   - instance.Instance: the instance copy
	//   - bool: false if absent or being removed
	Get(uid uint32) (instance.Instance, bool)

	// Contains reports whether the UID belongs to a live instance.
	Contains(uid uint32) bool

	// Update mutates an instance in place under the registry lock. Extents are recomputed,
	// the transform slot is marked dirty, and a Move command is enqueued. fn must not call
	// back into the registry. Changes to the UID or kind are discarded.
	//
	// Parameters:
	//   - uid: the instance UID
	//   - fn: the mutation
	//
	// Returns:
	//   - error: ErrNotFound
	Update(uid uint32, fn func(inst *instance.Instance)) error

	// Move replaces the transform of an instance. Shorthand for Update.
	//
	// Parameters:
	//   - uid: the instance UID
	//   - t: the new transform
	//
	// Returns:
	//   - error: ErrNotFound
	Move(uid uint32, t common.Transform) error

	// Remove enqueues the Remove command, blocks until the worker has applied it, then erases the
	// instance and frees its UID and transform slot. When Remove returns no tile references the
	// UID and the UID may be reused.
	//
	// Parameters:
	//   - uid: the instance UID
	//
	// If the queue closes before the command is applied the instance is still erased, but the
	// returned error wraps update_queue.ErrDropped (or update_queue.ErrQueueClosed when the queue
	// was already closed) because the tile index may keep a stale reference.
	//
	// Returns:
	//   - error: ErrNotFound, update_queue.ErrDropped, update_queue.ErrQueueClosed
	Remove(uid uint32) error

	// RemoveMany removes a batch with a single barrier wait.
	//
	// Parameters:
	//   - uids: the UIDs to remove
	//
	// Returns:
	//   - int: the number of instances removed
	//   - error: wraps ErrNotFound if some UIDs were not live, and update_queue.ErrDropped or
	//     update_queue.ErrQueueClosed if some were erased without their Remove being applied
	RemoveMany(uids []uint32) (int, error)

	// ForEach calls fn with a copy of every live instance of one kind, under the registry lock,
	// until fn returns false. fn must not call back into the registry.
	//
	// Parameters:
	//   - kind: the partition to walk
	//   - fn: the visitor
	ForEach(kind instance.Kind, fn func(inst instance.Instance) bool)

	// ForEachSorted is ForEach over both partitions in ascending UID order.
	//
	// Parameters:
	//   - fn: the visitor
	ForEachSorted(fn func(inst instance.Instance) bool)

	// Snapshot returns copies of every live instance in ascending UID order.
	Snapshot() []instance.Instance

	// UIDs returns every live UID in ascending order.
	UIDs() []uint32

	// Len returns the number of live instances.
	Len() int

	// ResolvePending indexes instances whose model finished loading since they were added.
	//
	// Returns:
	//   - int: the number of instances promoted
	ResolvePending() int

	// DuplicatesFound reports whether any Add had to renumber a duplicate UID since the last ResolveDuplicates.
	DuplicatesFound() bool

	// Duplicates returns the renumberings recorded since the last ResolveDuplicates.
	Duplicates() []Duplicate

	// ResolveDuplicates clears the duplicates flag and returns the recorded renumberings.
	ResolveDuplicates() []Duplicate

	// SyncGPUBuffer uploads dirty transform slots, reallocating the device buffer first if the
	// host side outgrew it. Must be called with the live frame of the render goroutine.
	// On ErrBufferGrowth the state is kept and the next call retries; the caller should skip the draw.
	//
	// Parameters:
	//   - frame: the current frame token
	//
	// Returns:
	//   - DrawInfo: the buffer and slot count to draw
	//   - error: ErrInvalidFrame or ErrBufferGrowth
	SyncGPUBuffer(frame *renderer.Frame) (DrawInfo, error)

	// DrawInfo returns the result of the last successful sync.
	DrawInfo() DrawInfo

	// Stats returns registry counters.
	Stats() Stats

	// Release frees the device transform buffer.
	Release()
}

var _ Registry = &registry{}

// NewRegistry creates a Registry that feeds the given update queue.
// Panics if queue is nil.
//
// Parameters:
//   - queue: the update queue whose worker owns the tile index
//   - options: a variadic list of RegistryBuilderOption functions
//
// Returns:
//   - Registry: the new registry
func NewRegistry(queue update_queue.UpdateQueue, options ...RegistryBuilderOption) Registry {
	if queue == nil {
		panic("registry: update queue must not be nil")
	}
	r := &registry{
		mu:              &sync.Mutex{},
		points:          make(map[uint32]*entry),
		compounds:       make(map[uint32]*entry),
		inUse:           make(map[uint32]struct{}),
		nextUID:         1,
		queue:           queue,
		log:             zap.NewNop(),
		initialCapacity: 64,
		bufferLabel:     "Instance Transform Buffer",
	}
	for _, option := range options {
		option(r)
	}
	r.buf = newTransformBuffer(r.bufferLabel, max(r.initialCapacity, minBufferCapacity))
	return r
}

func (r *registry) Add(inst instance.Instance, requested uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	part, err := r.partitionLocked(inst.Kind)
	if err != nil {
		return 0, err
	}

	var dupErr error
	uid := requested
	switch {
	case uid == 0:
		uid = r.allocateLocked()
	case r.inUseLocked(uid):
		uid = r.allocateLocked()
		r.duplicatesFound.Store(true)
		r.duplicates = append(r.duplicates, Duplicate{Requested: requested, Assigned: uid})
		dupErr = &DuplicateUIDError{Requested: requested, Assigned: uid}
		r.log.Warn("duplicate uid renumbered",
			zap.Uint32("requested", requested),
			zap.Uint32("assigned", uid),
		)
	default:
		r.reserveLocked(uid)
	}

	inst.UID = uid
	e := &entry{inst: inst, state: statePending, slot: -1}
	part[uid] = e
	r.inUse[uid] = struct{}{}

	if inst.Kind == instance.KindPointModel {
		e.slot = r.buf.acquire(uid, e.inst.GPUTransform())
	}
	if e.inst.ComputeExtents() {
		e.state = stateIndexed
		r.enqueueLocked(update_queue.CommandAdd, e)
	}
	return uid, dupErr
}

func (r *registry) Get(uid uint32) (instance.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.liveLocked(uid)
	if !ok {
		return instance.Instance{}, false
	}
	return e.inst, true
}

func (r *registry) Contains(uid uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.liveLocked(uid)
	return ok
}

func (r *registry) Update(uid uint32, fn func(inst *instance.Instance)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.liveLocked(uid)
	if !ok {
		return fmt.Errorf("update uid %d: %w", uid, ErrNotFound)
	}

	kind := e.inst.Kind
	fn(&e.inst)
	e.inst.UID = uid
	e.inst.Kind = kind

	if e.slot >= 0 {
		r.buf.set(e.slot, e.inst.GPUTransform())
	}
	if !e.inst.ComputeExtents() {
		return nil
	}
	switch e.state {
	case stateIndexed:
		r.enqueueLocked(update_queue.CommandMove, e)
	case statePending:
		e.state = stateIndexed
		r.enqueueLocked(update_queue.CommandAdd, e)
	}
	return nil
}

func (r *registry) Move(uid uint32, t common.Transform) error {
	return r.Update(uid, func(inst *instance.Instance) {
		inst.Transform = t
	})
}

func (r *registry) Remove(uid uint32) error {
	n, err := r.RemoveMany([]uint32{uid})
	if n == 0 {
		return fmt.Errorf("remove uid %d: %w", uid, ErrNotFound)
	}
	return err
}

func (r *registry) RemoveMany(uids []uint32) (int, error) {
	r.mu.Lock()
	var (
		tickets []*update_queue.Ticket
		waiting []*entry
		removed int
		missing int
		closed  int
		dropped int
	)
	for _, uid := range uids {
		e, ok := r.liveLocked(uid)
		if !ok {
			missing++
			continue
		}
		removed++
		if e.state == statePending {
			// Never indexed, so no command can reference it.
			r.eraseLocked(e)
			continue
		}
		e.state = stateRemoving
		t, err := r.queue.Enqueue(update_queue.Command{
			Kind: update_queue.CommandRemove,
			Ref:  tile_index.Ref{UID: e.inst.UID, Kind: e.inst.Kind, Extents: e.inst.Extents},
		})
		if err != nil {
			// Queue is closed: no worker can observe the instance any more.
			r.eraseLocked(e)
			closed++
			continue
		}
		tickets = append(tickets, t)
		waiting = append(waiting, e)
	}
	r.mu.Unlock()

	// The queue is FIFO, so the last ticket is a barrier for every Remove enqueued above.
	if len(tickets) > 0 {
		barrier := tickets[len(tickets)-1]
		if err := barrier.Wait(); err != nil && !errors.Is(err, update_queue.ErrDropped) {
			r.log.Warn("remove applied with error", zap.Error(err))
		}
		for _, t := range tickets {
			<-t.Done()
			if t.State() == update_queue.StateDropped {
				dropped++
			}
		}
	}

	if len(waiting) > 0 {
		r.mu.Lock()
		for _, e := range waiting {
			r.eraseLocked(e)
		}
		r.mu.Unlock()
	}

	var errs []error
	if missing > 0 {
		errs = append(errs, fmt.Errorf("%d of %d uid(s): %w", missing, len(uids), ErrNotFound))
	}
	if closed > 0 {
		errs = append(errs, fmt.Errorf("%d uid(s) erased without index update: %w", closed, update_queue.ErrQueueClosed))
	}
	if dropped > 0 {
		errs = append(errs, fmt.Errorf("%d uid(s) erased without index update: %w", dropped, update_queue.ErrDropped))
	}
	return removed, errors.Join(errs...)
}

func (r *registry) ForEach(kind instance.Kind, fn func(inst instance.Instance) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	part, err := r.partitionLocked(kind)
	if err != nil {
		return
	}
	for _, e := range part {
		if e.state == stateRemoving {
			continue
		}
		if !fn(e.inst) {
			return
		}
	}
}

func (r *registry) ForEachSorted(fn func(inst instance.Instance) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, uid := range r.uidsLocked() {
		e, _ := r.liveLocked(uid)
		if !fn(e.inst) {
			return
		}
	}
}

func (r *registry) Snapshot() []instance.Instance {
	var out []instance.Instance
	r.ForEachSorted(func(inst instance.Instance) bool {
		out = append(out, inst)
		return true
	})
	return out
}

func (r *registry) UIDs() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uidsLocked()
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points) + len(r.compounds)
}

func (r *registry) ResolvePending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	promoted := 0
	for _, part := range []map[uint32]*entry{r.points, r.compounds} {
		for _, e := range part {
			if e.state != statePending || !e.inst.ComputeExtents() {
				continue
			}
			e.state = stateIndexed
			r.enqueueLocked(update_queue.CommandAdd, e)
			promoted++
		}
	}
	if promoted > 0 {
		r.log.Debug("pending instances indexed", zap.Int("count", promoted))
	}
	return promoted
}

func (r *registry) DuplicatesFound() bool {
	return r.duplicatesFound.Load()
}

func (r *registry) Duplicates() []Duplicate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Duplicate, len(r.duplicates))
	copy(out, r.duplicates)
	return out
}

func (r *registry) ResolveDuplicates() []Duplicate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.duplicates
	r.duplicates = nil
	r.duplicatesFound.Store(false)
	return out
}

func (r *registry) SyncGPUBuffer(frame *renderer.Frame) (DrawInfo, error) {
	if !frame.Live() {
		return DrawInfo{}, ErrInvalidFrame
	}

	r.mu.Lock()
	p := r.buf.plan()
	device := r.buf.device
	r.mu.Unlock()

	if p.realloc {
		return r.reallocate(frame, p)
	}

	if len(p.writes) > 0 {
		if err := frame.WriteBuffers(toBufferWrites(device, p.writes)); err != nil {
			r.mu.Lock()
			r.buf.restore(p)
			r.mu.Unlock()
			return DrawInfo{}, fmt.Errorf("%w: %v", ErrBufferGrowth, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastDraw = DrawInfo{Buffer: device, Count: uint32(p.used), Capacity: uint32(r.buf.deviceCap)}
	return r.lastDraw, nil
}

// reallocate creates a device buffer at the new capacity, uploads the full mirror and
// releases the old buffer. On failure the old buffer stays in place.
func (r *registry) reallocate(frame *renderer.Frame, p uploadPlan) (DrawInfo, error) {
	size := uint64(p.capacity) * instance.GPUTransformSize
	next, err := frame.CreateBuffer(r.bufferLabel, size)
	if err == nil {
		err = frame.WriteBuffers(toBufferWrites(next, p.writes))
		if err != nil {
			next.Release()
		}
	}
	if err != nil {
		r.log.Warn("transform buffer growth failed, retrying next frame",
			zap.Int("capacity", p.capacity),
			zap.Uint64("bytes", size),
			zap.Error(err),
		)
		return DrawInfo{}, fmt.Errorf("%w: %v", ErrBufferGrowth, err)
	}

	r.mu.Lock()
	old := r.buf.device
	r.buf.device = next
	r.buf.deviceCap = p.capacity
	r.lastDraw = DrawInfo{Buffer: next, Count: uint32(p.used), Capacity: uint32(p.capacity)}
	info := r.lastDraw
	r.mu.Unlock()

	if old != nil {
		old.Release()
	}
	r.log.Debug("transform buffer reallocated",
		zap.Int("capacity", p.capacity),
		zap.Int("used", p.used),
	)
	return info, nil
}

func (r *registry) DrawInfo() DrawInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDraw
}

func (r *registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Points:          len(r.points),
		Compounds:       len(r.compounds),
		BufferUsed:      r.buf.used(),
		BufferCapacity:  r.buf.capacity,
		DeviceCapacity:  r.buf.deviceCap,
		DirtySlots:      r.buf.dirtyCount(),
		DuplicatesFound: r.duplicatesFound.Load(),
	}
	for _, part := range []map[uint32]*entry{r.points, r.compounds} {
		for _, e := range part {
			switch e.state {
			case statePending:
				s.Pending++
			case stateRemoving:
				s.Removing++
			}
		}
	}
	return s
}

func (r *registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf.device != nil {
		r.buf.device.Release()
		r.buf.device = nil
		r.buf.deviceCap = 0
	}
	r.lastDraw = DrawInfo{}
}

func (r *registry) partitionLocked(kind instance.Kind) (map[uint32]*entry, error) {
	switch kind {
	case instance.KindPointModel:
		return r.points, nil
	case instance.KindCompoundModel:
		return r.compounds, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
}

// liveLocked finds an entry that is not being removed.
func (r *registry) liveLocked(uid uint32) (*entry, bool) {
	e, ok := r.points[uid]
	if !ok {
		e, ok = r.compounds[uid]
	}
	if !ok || e.state == stateRemoving {
		return nil, false
	}
	return e, true
}

func (r *registry) inUseLocked(uid uint32) bool {
	_, ok := r.inUse[uid]
	return ok
}

// allocateLocked returns the next UID not in use. 0 is never handed out.
func (r *registry) allocateLocked() uint32 {
	for {
		uid := r.nextUID
		r.nextUID++
		if r.nextUID == 0 {
			r.nextUID = 1
		}
		if uid != 0 && !r.inUseLocked(uid) {
			return uid
		}
	}
}

// reserveLocked moves the allocator past an explicitly requested UID.
func (r *registry) reserveLocked(uid uint32) {
	if uid >= r.nextUID {
		r.nextUID = uid + 1
		if r.nextUID == 0 {
			r.nextUID = 1
		}
	}
}

func (r *registry) enqueueLocked(kind update_queue.CommandKind, e *entry) {
	_, err := r.queue.Enqueue(update_queue.Command{
		Kind: kind,
		Ref:  tile_index.Ref{UID: e.inst.UID, Kind: e.inst.Kind, Extents: e.inst.Extents},
	})
	if err != nil {
		r.log.Warn("tile index command not enqueued",
			zap.Stringer("command", kind),
			zap.Uint32("uid", e.inst.UID),
			zap.Error(err),
		)
	}
}

// eraseLocked drops the entry from its partition and frees its UID and transform slot.
func (r *registry) eraseLocked(e *entry) {
	uid := e.inst.UID
	delete(r.points, uid)
	delete(r.compounds, uid)
	delete(r.inUse, uid)

	if e.slot < 0 {
		return
	}
	if moved, ok := r.buf.release(e.slot); ok {
		if m, found := r.points[moved]; found {
			m.slot = e.slot
		}
	}
	e.slot = -1
}

func (r *registry) uidsLocked() []uint32 {
	out := make([]uint32, 0, len(r.points)+len(r.compounds))
	for _, part := range []map[uint32]*entry{r.points, r.compounds} {
		for uid, e := range part {
			if e.state != stateRemoving {
				out = append(out, uid)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toBufferWrites(buf renderer.Buffer, writes []slotWrite) []renderer.BufferWrite {
	out := make([]renderer.BufferWrite, 0, len(writes))
	for _, w := range writes {
		out = append(out, renderer.BufferWrite{
			Buffer: buf,
			Offset: uint64(w.first) * instance.GPUTransformSize,
			Data:   w.data,
		})
	}
	return out
}
