package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() model.Catalog {
	return model.NewCatalog(
		model.NewModel(
			model.WithName("rock"),
			model.WithLoaded(true),
			model.WithBounds(common.AABB{Min: [3]float32{-1, 0, -1}, Max: [3]float32{1, 1, 1}}),
		),
	)
}

func testSnapshot(t *testing.T) MapSnapshot {
	t.Helper()
	rock, ok := testCatalog().Get("rock")
	require.True(t, ok)

	insts := []instance.Instance{
		instance.NewInstance(instance.WithUID(9), instance.WithModel(rock), instance.WithPosition(3, 0, 4)),
		instance.NewInstance(instance.WithUID(2), instance.WithModel(rock), instance.WithScale(2, 2, 2)),
		instance.NewInstance(instance.WithUID(5), instance.WithModel(rock), instance.WithRotation(0, 1.5, 0)),
	}
	return NewMapSnapshot("meadow", insts)
}

func assertRoundTrip(t *testing.T, want, got MapSnapshot) {
	t.Helper()
	assert.Equal(t, want.Header.Name, got.Header.Name)
	assert.Equal(t, FormatVersion, got.Header.Version)
	assert.Equal(t, 3, got.Header.Count)
	require.Len(t, got.Instances, 3)
	assert.Equal(t, want.Instances, got.Instances)
	assert.Equal(t, []uint32{2, 5, 9}, []uint32{got.Instances[0].UID, got.Instances[1].UID, got.Instances[2].UID})
}

func TestNewMapSnapshotSortsByUID(t *testing.T) {
	snap := testSnapshot(t)
	assert.Equal(t, uint32(2), snap.Instances[0].UID)
	assert.Equal(t, uint32(9), snap.Instances[2].UID)
	assert.Equal(t, "point", snap.Instances[0].Kind)
	assert.Equal(t, "rock", snap.Instances[0].Model)
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps", "meadow.snap")
	store := NewSnapshotFile(path)
	want := testSnapshot(t)

	require.NoError(t, store.Save(context.Background(), want))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assertRoundTrip(t, want, got)

	h, err := store.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, "meadow", h.Name)
	assert.Equal(t, 3, h.Count)
}

func TestSnapshotFileRejectsNewerVersion(t *testing.T) {
	store := NewSnapshotFile(filepath.Join(t.TempDir(), "future.snap"))
	snap := testSnapshot(t)
	snap.Header.Version = FormatVersion + 1
	require.NoError(t, store.Save(context.Background(), snap))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestSQLiteRoundTrip(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "meadow.db"))
	require.NoError(t, err)
	defer store.Close()

	want := testSnapshot(t)
	require.NoError(t, store.Save(context.Background(), want))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assertRoundTrip(t, want, got)

	// A second save replaces the first.
	want.Instances = want.Instances[:1]
	want.Header.Count = 1
	require.NoError(t, store.Save(context.Background(), want))
	got, err = store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Instances, 1)
	assert.Equal(t, uint32(2), got.Instances[0].UID)
}

func TestSQLiteEmptyLoad(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Instances)
	assert.Equal(t, 0, snap.Header.Count)
}

func TestRecordInstanceResolvesModel(t *testing.T) {
	c := testCatalog()
	rec := InstanceRecord{UID: 7, Kind: "point", Model: "rock", Scale: [3]float32{1, 1, 1}}
	inst, err := rec.Instance(c)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), inst.UID)
	assert.Equal(t, "rock", inst.ModelName())

	rec.Model = "tree"
	_, err = rec.Instance(c)
	assert.ErrorIs(t, err, model.ErrUnknownModel)
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.ErrorIs(t, err, ErrUnknownStore)
}
