package tile_index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/instance"
)

var (
	// ErrTileOutOfRange is returned when some tiles of an instance fall outside the loaded bounds.
	// The in-range tiles are still updated.
	ErrTileOutOfRange = errors.New("tile out of range")
	// ErrEmptyExtents is returned when an instance without valid extents is inserted.
	ErrEmptyExtents = errors.New("instance has empty extents")
	// ErrNonFiniteExtents is returned when an instance's extents contain NaN or infinity.
	ErrNonFiniteExtents = errors.New("instance has non-finite extents")
)

// TileRangeError reports how many tiles were skipped for one instance.
type TileRangeError struct {
	UID     uint32
	Skipped int64
}

func (e *TileRangeError) Error() string {
	return fmt.Sprintf("uid %d: %d tile(s) outside loaded bounds", e.UID, e.Skipped)
}

func (e *TileRangeError) Unwrap() error {
	return ErrTileOutOfRange
}

// TileCoord addresses one tile on the x/z ground plane.
type TileCoord struct {
	X, Z int32
}

// Ref is the value the index stores for an instance.
// It is a snapshot of the instance at the time the command was enqueued, never a pointer into the registry.
type Ref struct {
	UID     uint32
	Kind    instance.Kind
	Extents common.AABB
}

// Span is an inclusive rectangle of tile coordinates.
type Span struct {
	Min, Max TileCoord
}

// Contains reports whether the tile lies inside the span.
func (s Span) Contains(t TileCoord) bool {
	return t.X >= s.Min.X && t.X <= s.Max.X && t.Z >= s.Min.Z && t.Z <= s.Max.Z
}

// Empty reports whether the span covers no tiles.
func (s Span) Empty() bool {
	return s.Max.X < s.Min.X || s.Max.Z < s.Min.Z
}

// Area returns the number of tiles in the span, saturating at math.MaxInt64.
func (s Span) Area() int64 {
	if s.Empty() {
		return 0
	}
	w := int64(s.Max.X) - int64(s.Min.X) + 1
	h := int64(s.Max.Z) - int64(s.Min.Z) + 1
	if w > math.MaxInt64/h {
		return math.MaxInt64
	}
	return w * h
}

// Intersect returns the tiles shared by both spans.
// The result is Empty when they do not overlap.
func (s Span) Intersect(o Span) Span {
	return Span{
		Min: TileCoord{X: max(s.Min.X, o.Min.X), Z: max(s.Min.Z, o.Min.Z)},
		Max: TileCoord{X: min(s.Max.X, o.Max.X), Z: min(s.Max.Z, o.Max.Z)},
	}
}

// Tiles lists every tile of the span in x-major order.
// Callers must bound the span first; Intersect with the loaded bounds does that.
func (s Span) Tiles() []TileCoord {
	if s.Empty() {
		return nil
	}
	out := make([]TileCoord, 0, s.Area())
	for x := int64(s.Min.X); x <= int64(s.Max.X); x++ {
		for z := int64(s.Min.Z); z <= int64(s.Max.Z); z++ {
			out = append(out, TileCoord{X: int32(x), Z: int32(z)})
		}
	}
	return out
}

// tileIndex is the implementation of the TileIndex interface.
type tileIndex struct {
	tileSize float32
	minTile  TileCoord
	maxTile  TileCoord
	tiles    map[TileCoord]map[uint32]Ref
	owners   map[uint32][]TileCoord
	mu       *sync.RWMutex
}

// TileIndex is the per-tile spatial index of instances.
// Writes are expected from a single goroutine (the update queue worker); reads may come from anywhere.
type TileIndex interface {
	// TileSize returns the edge length of one tile in world units.
	TileSize() float32

	// Bounds returns the inclusive loaded tile range.
	//
	// Returns:
	//   - Span: the loaded bounds
	Bounds() Span

	// InBounds reports whether the tile lies inside the loaded bounds.
	//
	// Parameters:
	//   - t: the tile coordinate
	//
	// Returns:
	//   - bool: true if the tile is loaded
	InBounds(t TileCoord) bool

	// TileAt returns the tile containing a world-space x/z position.
	//
	// Parameters:
	//   - x, z: world-space position
	//
	// Returns:
	//   - TileCoord: the tile
	TileAt(x, z float32) TileCoord

	// TileSpan returns the tiles a world-space box overlaps on the x/z plane, ignoring loaded bounds.
	//
	// Parameters:
	//   - extents: the world-space box
	//
	// Returns:
	//   - Span: the covered tiles
	//   - error: ErrEmptyExtents if the box is empty, ErrNonFiniteExtents if it holds NaN or infinity
	TileSpan(extents common.AABB) (Span, error)

	// Insert registers the ref in every loaded tile its extents overlap.
	// Re-inserting a UID replaces its previous registration.
	//
	// Parameters:
	//   - ref: the instance snapshot
	//
	// Returns:
	//   - error: *TileRangeError if some tiles were skipped, ErrEmptyExtents for an empty box
	Insert(ref Ref) error

	// Remove drops the UID from every tile it is registered in.
	// Removing an unknown UID is a no-op.
	//
	// Parameters:
	//   - uid: the instance UID
	Remove(uid uint32)

	// Move updates the ref for new extents: tiles no longer overlapped are retracted,
	// newly overlapped tiles are added, and the stored ref is refreshed everywhere.
	// Invalid extents leave the previous registration untouched.
	//
	// Parameters:
	//   - ref: the instance snapshot with new extents
	//
	// Returns:
	//   - error: *TileRangeError if some tiles were skipped, ErrEmptyExtents for an empty box
	Move(ref Ref) error

	// Query returns the refs registered in one tile, ordered by UID.
	//
	// Parameters:
	//   - t: the tile coordinate
	//
	// Returns:
	//   - []Ref: the refs in the tile
	Query(t TileCoord) []Ref

	// QueryFrustum returns every ref whose extents intersect the frustum, ordered by UID.
	//
	// Parameters:
	//   - f: the view frustum
	//
	// Returns:
	//   - []Ref: the visible refs
	QueryFrustum(f *common.Frustum) []Ref

	// Contains reports whether the tile holds the UID.
	Contains(t TileCoord, uid uint32) bool

	// TilesOf returns the tiles the UID is registered in.
	TilesOf(uid uint32) []TileCoord

	// References counts how many tiles hold the UID.
	References(uid uint32) int

	// Len returns the number of distinct UIDs in the index.
	Len() int

	// Clear drops every tile.
	Clear()
}

var _ TileIndex = &tileIndex{}

// NewTileIndex creates a TileIndex with the given options applied.
// Defaults to 64-unit tiles over [-32, 31] on both axes.
//
// Parameters:
//   - options: a variadic list of TileIndexBuilderOption functions
//
// Returns:
//   - TileIndex: the new index
func NewTileIndex(options ...TileIndexBuilderOption) TileIndex {
	ti := &tileIndex{
		tileSize: 64,
		minTile:  TileCoord{X: -32, Z: -32},
		maxTile:  TileCoord{X: 31, Z: 31},
		tiles:    make(map[TileCoord]map[uint32]Ref),
		owners:   make(map[uint32][]TileCoord),
		mu:       &sync.RWMutex{},
	}
	for _, option := range options {
		option(ti)
	}
	if ti.tileSize <= 0 {
		panic(fmt.Sprintf("tile_index: tile size must be positive, got %v", ti.tileSize))
	}
	return ti
}

func (ti *tileIndex) TileSize() float32 {
	return ti.tileSize
}

func (ti *tileIndex) Bounds() Span {
	return Span{Min: ti.minTile, Max: ti.maxTile}
}

func (ti *tileIndex) InBounds(t TileCoord) bool {
	return ti.Bounds().Contains(t)
}

func (ti *tileIndex) TileAt(x, z float32) TileCoord {
	return TileCoord{
		X: tileCoord(float64(x) / float64(ti.tileSize)),
		Z: tileCoord(float64(z) / float64(ti.tileSize)),
	}
}

// tileCoord floors v and saturates it to the int32 range. NaN maps to 0.
func tileCoord(v float64) int32 {
	f := math.Floor(v)
	switch {
	case math.IsNaN(f):
		return 0
	case f <= math.MinInt32:
		return math.MinInt32
	case f >= math.MaxInt32:
		return math.MaxInt32
	}
	return int32(f)
}

func (ti *tileIndex) TileSpan(extents common.AABB) (Span, error) {
	if !extents.Finite() {
		return Span{}, ErrNonFiniteExtents
	}
	if extents.Empty() {
		return Span{}, ErrEmptyExtents
	}
	return Span{
		Min: ti.TileAt(extents.Min[0], extents.Min[2]),
		Max: ti.TileAt(extents.Max[0], extents.Max[2]),
	}, nil
}

func (ti *tileIndex) Insert(ref Ref) error {
	span, err := ti.TileSpan(ref.Extents)
	if err != nil {
		return fmt.Errorf("insert uid %d: %w", ref.UID, err)
	}

	placed, skipped := ti.clip(span)

	ti.mu.Lock()
	defer ti.mu.Unlock()

	ti.removeLocked(ref.UID)
	ti.placeLocked(ref, placed)
	return rangeError(ref.UID, skipped)
}

func (ti *tileIndex) Remove(uid uint32) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.removeLocked(uid)
}

func (ti *tileIndex) Move(ref Ref) error {
	span, err := ti.TileSpan(ref.Extents)
	if err != nil {
		return fmt.Errorf("move uid %d: %w", ref.UID, err)
	}

	placed, skipped := ti.clip(span)

	ti.mu.Lock()
	defer ti.mu.Unlock()

	// Retract from tiles the new extents no longer cover.
	for _, t := range ti.owners[ref.UID] {
		if !span.Contains(t) {
			ti.dropLocked(t, ref.UID)
		}
	}
	delete(ti.owners, ref.UID)
	ti.placeLocked(ref, placed)
	return rangeError(ref.UID, skipped)
}

// clip splits span into the loaded tiles to write and a count of the tiles outside the bounds.
// Only the loaded part is ever enumerated.
func (ti *tileIndex) clip(span Span) ([]TileCoord, int64) {
	in := span.Intersect(ti.Bounds())
	return in.Tiles(), span.Area() - in.Area()
}

// placeLocked writes ref into every tile of placed and rebuilds its owner list.
// Callers must hold the write lock and have cleared stale owner entries.
func (ti *tileIndex) placeLocked(ref Ref, placed []TileCoord) {
	for _, t := range placed {
		bucket, ok := ti.tiles[t]
		if !ok {
			bucket = make(map[uint32]Ref)
			ti.tiles[t] = bucket
		}
		bucket[ref.UID] = ref
	}
	if len(placed) > 0 {
		ti.owners[ref.UID] = placed
	}
}

func rangeError(uid uint32, skipped int64) error {
	if skipped > 0 {
		return &TileRangeError{UID: uid, Skipped: skipped}
	}
	return nil
}

func (ti *tileIndex) removeLocked(uid uint32) {
	for _, t := range ti.owners[uid] {
		ti.dropLocked(t, uid)
	}
	delete(ti.owners, uid)
}

func (ti *tileIndex) dropLocked(t TileCoord, uid uint32) {
	bucket, ok := ti.tiles[t]
	if !ok {
		return
	}
	delete(bucket, uid)
	if len(bucket) == 0 {
		delete(ti.tiles, t)
	}
}

func (ti *tileIndex) Query(t TileCoord) []Ref {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	bucket := ti.tiles[t]
	out := make([]Ref, 0, len(bucket))
	for _, ref := range bucket {
		out = append(out, ref)
	}
	sortRefs(out)
	return out
}

func (ti *tileIndex) QueryFrustum(f *common.Frustum) []Ref {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	seen := make(map[uint32]struct{})
	var out []Ref
	for _, bucket := range ti.tiles {
		for uid, ref := range bucket {
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			if f.IntersectsAABB(ref.Extents) {
				out = append(out, ref)
			}
		}
	}
	sortRefs(out)
	return out
}

func (ti *tileIndex) Contains(t TileCoord, uid uint32) bool {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	_, ok := ti.tiles[t][uid]
	return ok
}

func (ti *tileIndex) TilesOf(uid uint32) []TileCoord {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	out := make([]TileCoord, len(ti.owners[uid]))
	copy(out, ti.owners[uid])
	return out
}

func (ti *tileIndex) References(uid uint32) int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	n := 0
	for _, bucket := range ti.tiles {
		if _, ok := bucket[uid]; ok {
			n++
		}
	}
	return n
}

func (ti *tileIndex) Len() int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return len(ti.owners)
}

func (ti *tileIndex) Clear() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.tiles = make(map[TileCoord]map[uint32]Ref)
	ti.owners = make(map[uint32][]TileCoord)
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].UID < refs[j].UID })
}
