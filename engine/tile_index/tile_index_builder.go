package tile_index

// TileIndexBuilderOption is a functional option for configuring a TileIndex.
// Use the With* functions to create options.
type TileIndexBuilderOption func(ti *tileIndex)

// WithTileSize sets the tile edge length in world units.
//
// Parameters:
//   - size: the tile size (must be positive)
//
// Returns:
//   - TileIndexBuilderOption: option function to apply
func WithTileSize(size float32) TileIndexBuilderOption {
	return func(ti *tileIndex) {
		ti.tileSize = size
	}
}

// WithBounds sets the inclusive range of loaded tiles.
// Instances that reach outside the range are indexed only in the tiles that are inside it.
//
// Parameters:
//   - minTile: the lowest loaded tile
//   - maxTile: the highest loaded tile
//
// Returns:
//   - TileIndexBuilderOption: option function to apply
func WithBounds(minTile, maxTile TileCoord) TileIndexBuilderOption {
	return func(ti *tileIndex) {
		ti.minTile = minTile
		ti.maxTile = maxTile
	}
}
