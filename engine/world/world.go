package world

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/camera"
	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
	"github.com/Carmen-Shannon/oxy-world/engine/persist"
	"github.com/Carmen-Shannon/oxy-world/engine/registry"
	"github.com/Carmen-Shannon/oxy-world/engine/renderer"
	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
	"github.com/Carmen-Shannon/oxy-world/engine/update_queue"
	"go.uber.org/zap"
)

// world is the implementation of the World interface.
type world struct {
	name  string
	cfg   config.WorldConfig
	index tile_index.TileIndex
	queue update_queue.UpdateQueue
	reg   registry.Registry
	log   *zap.Logger

	loaderWorkers int
	queueCapacity int

	// bulk serializes whole-map operations against each other.
	bulk      *sync.Mutex
	closeOnce sync.Once
}

// World owns the tile index, the update queue feeding it, and the instance registry.
// It is the entry point for editing, loading and saving a map.
type World interface {
	// Name returns the map name written into saved headers.
	Name() string

	// Registry returns the instance registry.
	Registry() registry.Registry

	// Index returns the spatial tile index. It is written only by the queue worker.
	Index() tile_index.TileIndex

	// Queue returns the update queue.
	Queue() update_queue.UpdateQueue

	// AddInstance adds an instance, requesting a UID (0 allocates one).
	//
	// Parameters:
	//   - inst: the instance to add
	//   - requested: the requested UID, or 0
	//
	// Returns:
	//   - uint32: the assigned UID
	//   - error: as registry.Registry.Add
	AddInstance(inst instance.Instance, requested uint32) (uint32, error)

	// RemoveInstance removes an instance and waits until the tile index no longer references it.
	//
	// Parameters:
	//   - uid: the instance UID
	//
	// Returns:
	//   - error: registry.ErrNotFound
	RemoveInstance(uid uint32) error

	// MoveInstance replaces an instance transform and re-tiles it.
	//
	// Parameters:
	//   - uid: the instance UID
	//   - t: the new transform
	//
	// Returns:
	//   - error: registry.ErrNotFound
	MoveInstance(uid uint32, t common.Transform) error

	// DeleteTile removes every instance referenced by a tile.
	//
	// Parameters:
	//   - tile: the tile coordinate
	//
	// Returns:
	//   - int: the number of instances removed
	//   - error: tile_index.ErrTileOutOfRange, or a removal error
	DeleteTile(tile tile_index.TileCoord) (int, error)

	// Clear removes every instance.
	//
	// Returns:
	//   - int: the number of instances removed
	//   - error: a removal error
	Clear() (int, error)

	// RenumberDuplicates collects the UID renumberings made while adding instances and clears
	// the duplicates flag. A UID requested several times appears once per renumbering.
	//
	// Returns:
	//   - []registry.Duplicate: requested and assigned UID pairs in the order they were made
	RenumberDuplicates() []registry.Duplicate

	// ResolvePending indexes instances whose models have finished loading.
	ResolvePending() int

	// SyncFrame uploads the transform buffer for the given frame.
	//
	// Parameters:
	//   - frame: the live frame of the render goroutine
	//
	// Returns:
	//   - registry.DrawInfo: what to draw
	//   - error: as registry.Registry.SyncGPUBuffer
	SyncFrame(frame *renderer.Frame) (registry.DrawInfo, error)

	// Load adds every instance from a store, in parallel per tile.
	//
	// Parameters:
	//   - ctx: cancels the load between records
	//   - store: the map store
	//   - catalog: resolves model names
	//
	// Returns:
	//   - LoadReport: counters for the load
	//   - error: store or cancellation errors
	Load(ctx context.Context, store persist.Store, catalog model.Catalog) (LoadReport, error)

	// Save writes every live instance to the store in UID order.
	//
	// Parameters:
	//   - ctx: passed to the store
	//   - store: the map store
	//
	// Returns:
	//   - error: store errors
	Save(ctx context.Context, store persist.Store) error

	// Visible returns the indexed instances whose extents intersect the camera frustum, sorted by UID.
	// An instance spanning several tiles is reported once.
	//
	// Parameters:
	//   - cam: the viewpoint
	//
	// Returns:
	//   - []tile_index.Ref: the visible references
	Visible(cam camera.Camera) []tile_index.Ref

	// Snapshot returns the map as it would be saved.
	Snapshot() persist.MapSnapshot

	// Close shuts down the update queue and releases the transform buffer.
	Close()
}

var _ World = &world{}

// NewWorld creates a World from the configured tile layout.
//
// Parameters:
//   - options: a variadic list of WorldBuilderOption functions
//
// Returns:
//   - World: the new world, with its queue worker running
func NewWorld(options ...WorldBuilderOption) World {
	w := &world{
		name:          "untitled",
		cfg:           config.Defaults().World,
		log:           zap.NewNop(),
		loaderWorkers: 4,
		queueCapacity: 256,
		bulk:          &sync.Mutex{},
	}
	for _, option := range options {
		option(w)
	}

	w.index = tile_index.NewTileIndex(
		tile_index.WithTileSize(w.cfg.TileSize),
		tile_index.WithBounds(
			tile_index.TileCoord{X: w.cfg.MinTileX, Z: w.cfg.MinTileZ},
			tile_index.TileCoord{X: w.cfg.MaxTileX, Z: w.cfg.MaxTileZ},
		),
	)
	w.queue = update_queue.NewIndexQueue(w.index,
		update_queue.WithLogger(w.log),
		update_queue.WithCapacity(w.queueCapacity),
	)
	w.reg = registry.NewRegistry(w.queue,
		registry.WithLogger(w.log),
		registry.WithInitialCapacity(w.cfg.InitialBufferCapacity),
	)
	return w
}

func (w *world) Name() string {
	return w.name
}

func (w *world) Registry() registry.Registry {
	return w.reg
}

func (w *world) Index() tile_index.TileIndex {
	return w.index
}

func (w *world) Queue() update_queue.UpdateQueue {
	return w.queue
}

func (w *world) AddInstance(inst instance.Instance, requested uint32) (uint32, error) {
	return w.reg.Add(inst, requested)
}

func (w *world) RemoveInstance(uid uint32) error {
	return w.reg.Remove(uid)
}

func (w *world) MoveInstance(uid uint32, t common.Transform) error {
	return w.reg.Move(uid, t)
}

func (w *world) DeleteTile(tile tile_index.TileCoord) (int, error) {
	if !w.index.InBounds(tile) {
		return 0, fmt.Errorf("%w: tile (%d, %d)", tile_index.ErrTileOutOfRange, tile.X, tile.Z)
	}

	w.bulk.Lock()
	defer w.bulk.Unlock()

	// Let earlier Adds land so the tile holds everything placed before the call.
	w.queue.WaitUntilDrained()

	refs := w.index.Query(tile)
	if len(refs) == 0 {
		return 0, nil
	}
	uids := make([]uint32, len(refs))
	for i, ref := range refs {
		uids[i] = ref.UID
	}
	n, err := w.reg.RemoveMany(uids)
	w.log.Info("tile deleted",
		zap.Int32("x", tile.X),
		zap.Int32("z", tile.Z),
		zap.Int("removed", n),
	)
	return n, err
}

func (w *world) Clear() (int, error) {
	w.bulk.Lock()
	defer w.bulk.Unlock()

	n, err := w.reg.RemoveMany(w.reg.UIDs())
	w.log.Info("world cleared", zap.Int("removed", n))
	return n, err
}

func (w *world) RenumberDuplicates() []registry.Duplicate {
	dups := w.reg.ResolveDuplicates()
	if len(dups) > 0 {
		w.log.Info("duplicate uids renumbered", zap.Int("count", len(dups)))
	}
	return dups
}

func (w *world) ResolvePending() int {
	return w.reg.ResolvePending()
}

func (w *world) SyncFrame(frame *renderer.Frame) (registry.DrawInfo, error) {
	return w.reg.SyncGPUBuffer(frame)
}

func (w *world) Visible(cam camera.Camera) []tile_index.Ref {
	f := cam.Frustum()
	return w.index.QueryFrustum(&f)
}

func (w *world) Snapshot() persist.MapSnapshot {
	return persist.NewMapSnapshot(w.name, w.reg.Snapshot())
}

func (w *world) Save(ctx context.Context, store persist.Store) error {
	snap := w.Snapshot()
	if err := store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save map %s: %w", w.name, err)
	}
	w.log.Info("map saved", zap.String("name", w.name), zap.Int("instances", snap.Header.Count))
	return nil
}

func (w *world) Close() {
	w.closeOnce.Do(func() {
		w.queue.Close()
		w.reg.Release()
	})
}
