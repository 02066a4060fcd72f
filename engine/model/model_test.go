package model

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompoundBoundsUnionParts(t *testing.T) {
	unit := common.AABB{Min: [3]float32{-1, 0, -1}, Max: [3]float32{1, 2, 1}}
	left := common.IdentityTransform()
	left.Position = [3]float32{-5, 0, 0}
	right := common.IdentityTransform()
	right.Position = [3]float32{5, 0, 0}

	m := NewModel(
		WithName("fence"),
		WithParts(
			Part{Name: "left", Transform: left, Bounds: unit},
			Part{Name: "right", Transform: right, Bounds: unit},
		),
	)

	require.True(t, m.Compound())
	b := m.Bounds()
	assert.InDelta(t, -6, b.Min[0], 1e-5)
	assert.InDelta(t, 6, b.Max[0], 1e-5)
	assert.InDelta(t, 2, b.Max[1], 1e-5)
	assert.Len(t, m.Parts(), 2)
}

func TestPointModelLoadedFlag(t *testing.T) {
	m := NewModel(WithName("rock"))
	assert.False(t, m.Loaded())
	assert.False(t, m.Compound())
	assert.Nil(t, m.Parts())

	m.SetLoaded(true)
	assert.True(t, m.Loaded())
}

func TestCatalogRegister(t *testing.T) {
	c := NewCatalog(NewModel(WithName("b")), NewModel(WithName("a")))
	assert.Equal(t, []string{"a", "b"}, c.Names())

	err := c.Register(NewModel(WithName("a")))
	assert.ErrorIs(t, err, ErrModelExists)

	assert.ErrorIs(t, c.MarkLoaded("missing"), ErrUnknownModel)
	require.NoError(t, c.MarkLoaded("a"))
	m, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, m.Loaded())
}

func TestParseManifest(t *testing.T) {
	doc := []byte(`
models:
  - name: tree
    min: [-1, 0, -1]
    max: [1, 6, 1]
  - name: barn
    deferred: true
    parts:
      - name: body
        min: [-4, 0, -3]
        max: [4, 5, 3]
      - name: silo
        position: [6, 0, 0]
        scale: [2, 2, 2]
        min: [-1, 0, -1]
        max: [1, 5, 1]
`)
	c, err := ParseManifest(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	tree, ok := c.Get("tree")
	require.True(t, ok)
	assert.True(t, tree.Loaded())
	assert.Equal(t, [3]float32{1, 6, 1}, tree.Bounds().Max)

	barn, ok := c.Get("barn")
	require.True(t, ok)
	assert.False(t, barn.Loaded())
	require.True(t, barn.Compound())
	assert.InDelta(t, 8, barn.Bounds().Max[0], 1e-5)
	assert.InDelta(t, 10, barn.Bounds().Max[1], 1e-5)
}

func TestParseManifestRejectsDuplicates(t *testing.T) {
	_, err := ParseManifest([]byte("models:\n  - name: a\n  - name: a\n"))
	assert.ErrorIs(t, err, ErrModelExists)

	_, err = ParseManifest([]byte("models:\n  - min: [0, 0, 0]\n"))
	assert.Error(t, err)
}
