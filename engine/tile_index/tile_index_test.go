package tile_index

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(minX, minZ, maxX, maxZ float32) common.AABB {
	return common.AABB{Min: [3]float32{minX, 0, minZ}, Max: [3]float32{maxX, 1, maxZ}}
}

func newTestIndex() TileIndex {
	return NewTileIndex(WithTileSize(10), WithBounds(TileCoord{X: -2, Z: -2}, TileCoord{X: 2, Z: 2}))
}

func TestTileSpan(t *testing.T) {
	ti := newTestIndex()

	span, err := ti.TileSpan(box(-5, 1, 15, 9))
	require.NoError(t, err)
	assert.Equal(t, TileCoord{X: -1, Z: 0}, span.Min)
	assert.Equal(t, TileCoord{X: 1, Z: 0}, span.Max)
	assert.Len(t, span.Tiles(), 3)

	_, err = ti.TileSpan(common.EmptyAABB())
	assert.ErrorIs(t, err, ErrEmptyExtents)
}

func TestInsertSpansTiles(t *testing.T) {
	ti := newTestIndex()
	require.NoError(t, ti.Insert(Ref{UID: 7, Kind: instance.KindPointModel, Extents: box(5, 5, 15, 15)}))

	assert.Equal(t, 4, ti.References(7))
	for _, tc := range []TileCoord{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		assert.True(t, ti.Contains(tc, 7), "tile %v", tc)
	}
	assert.Len(t, ti.TilesOf(7), 4)
	assert.Equal(t, 1, ti.Len())
}

func TestInsertSkipsOutOfRangeTiles(t *testing.T) {
	ti := newTestIndex()
	err := ti.Insert(Ref{UID: 3, Extents: box(15, 0, 45, 5)})

	var rangeErr *TileRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.ErrorIs(t, err, ErrTileOutOfRange)
	assert.Equal(t, int64(2), rangeErr.Skipped)
	assert.True(t, ti.Contains(TileCoord{X: 1, Z: 0}, 3))
	assert.True(t, ti.Contains(TileCoord{X: 2, Z: 0}, 3))
	assert.Equal(t, 2, ti.References(3))
}

func TestMoveRetractsStaleTiles(t *testing.T) {
	ti := newTestIndex()
	require.NoError(t, ti.Insert(Ref{UID: 1, Extents: box(1, 1, 2, 2)}))
	require.True(t, ti.Contains(TileCoord{X: 0, Z: 0}, 1))

	require.NoError(t, ti.Move(Ref{UID: 1, Extents: box(-15, 11, -14, 12)}))
	assert.False(t, ti.Contains(TileCoord{X: 0, Z: 0}, 1))
	assert.True(t, ti.Contains(TileCoord{X: -2, Z: 1}, 1))
	assert.Equal(t, 1, ti.References(1))

	// Growing keeps the old tile and refreshes its stored extents.
	wide := box(-15, 11, 5, 12)
	require.NoError(t, ti.Move(Ref{UID: 1, Extents: wide}))
	assert.Equal(t, 3, ti.References(1))
	refs := ti.Query(TileCoord{X: -2, Z: 1})
	require.Len(t, refs, 1)
	assert.Equal(t, wide, refs[0].Extents)
}

func TestRemove(t *testing.T) {
	ti := newTestIndex()
	require.NoError(t, ti.Insert(Ref{UID: 1, Extents: box(0, 0, 25, 25)}))
	require.NoError(t, ti.Insert(Ref{UID: 2, Extents: box(0, 0, 1, 1)}))

	ti.Remove(1)
	ti.Remove(99)
	assert.Equal(t, 0, ti.References(1))
	assert.Empty(t, ti.TilesOf(1))
	assert.Equal(t, []Ref{{UID: 2, Extents: box(0, 0, 1, 1)}}, ti.Query(TileCoord{}))
	assert.Equal(t, 1, ti.Len())

	ti.Clear()
	assert.Equal(t, 0, ti.Len())
	assert.Empty(t, ti.Query(TileCoord{}))
}

func TestReinsertReplaces(t *testing.T) {
	ti := newTestIndex()
	require.NoError(t, ti.Insert(Ref{UID: 4, Extents: box(0, 0, 1, 1)}))
	require.NoError(t, ti.Insert(Ref{UID: 4, Extents: box(12, 12, 13, 13)}))

	assert.False(t, ti.Contains(TileCoord{X: 0, Z: 0}, 4))
	assert.True(t, ti.Contains(TileCoord{X: 1, Z: 1}, 4))
	assert.Equal(t, 1, ti.References(4))
}

func TestQueryFrustum(t *testing.T) {
	ti := newTestIndex()
	require.NoError(t, ti.Insert(Ref{UID: 1, Extents: common.AABB{Min: [3]float32{-1, -1, -12}, Max: [3]float32{1, 1, -8}}}))
	require.NoError(t, ti.Insert(Ref{UID: 2, Extents: common.AABB{Min: [3]float32{-1, -1, 8}, Max: [3]float32{1, 1, 12}}}))

	var proj, view, vp [16]float32
	common.Perspective(proj[:], 1.2, 1, 0.1, 100)
	common.LookAt(view[:], 0, 0, 0, 0, 0, -1, 0, 1, 0)
	common.Mul4(vp[:], proj[:], view[:])
	f := common.ExtractFrustumFromMatrix(vp[:])

	refs := ti.QueryFrustum(&f)
	require.Len(t, refs, 1)
	assert.Equal(t, uint32(1), refs[0].UID)
}

func TestTileAtSaturates(t *testing.T) {
	ti := newTestIndex()
	assert.Equal(t, TileCoord{X: math.MinInt32, Z: math.MaxInt32}, ti.TileAt(-1e30, 1e30))
	assert.Equal(t, TileCoord{X: -1, Z: 0}, ti.TileAt(-0.5, 9.99))
}

func TestHugeExtentsOnlyTouchLoadedTiles(t *testing.T) {
	ti := newTestIndex()

	err := ti.Insert(Ref{UID: 5, Extents: box(-1e7, -1e7, 1e7, 1e7)})
	var rangeErr *TileRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, int64(2000001*2000001-25), rangeErr.Skipped)
	assert.Equal(t, 25, ti.References(5))

	// Spans past the int32 tile range saturate instead of overflowing.
	err = ti.Move(Ref{UID: 5, Extents: box(-2e12, 0, 0, 1)})
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, []TileCoord{{X: -2, Z: 0}, {X: -1, Z: 0}, {X: 0, Z: 0}}, ti.TilesOf(5))
	assert.Equal(t, 3, ti.References(5))

	ti.Remove(5)
	assert.Zero(t, ti.References(5))
	assert.Zero(t, ti.Len())
}

func TestNonFiniteExtentsKeepPreviousTiles(t *testing.T) {
	ti := newTestIndex()
	require.NoError(t, ti.Insert(Ref{UID: 8, Extents: box(1, 1, 2, 2)}))

	nan := float32(math.NaN())
	err := ti.Move(Ref{UID: 8, Extents: box(nan, 0, 5, 5)})
	assert.ErrorIs(t, err, ErrNonFiniteExtents)
	assert.True(t, ti.Contains(TileCoord{}, 8))

	inf := float32(math.Inf(1))
	err = ti.Insert(Ref{UID: 8, Extents: box(0, 0, inf, 1)})
	assert.ErrorIs(t, err, ErrNonFiniteExtents)
	assert.Equal(t, 1, ti.References(8))

	ti.Remove(8)
	assert.Zero(t, ti.References(8))
}
