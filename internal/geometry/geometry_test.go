package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameRoundTrip(t *testing.T) {
	for tx := 0; tx < 3; tx++ {
		for ty := 0; ty < 3; ty++ {
			for _, px := range []int{0, 1, 499, 999} {
				for _, py := range []int{0, 1, 499, 999} {
					p := FromFilenameParts(tx, ty, px, py)
					gotTX, gotTY, gotPX, gotPY := ToFilenameParts(p)
					assert.Equal(t, tx, gotTX)
					assert.Equal(t, ty, gotTY)
					assert.Equal(t, px, gotPX)
					assert.Equal(t, py, gotPY)
				}
			}
		}
	}
}

func TestTileIDRoundTrip(t *testing.T) {
	cases := []Tile{{X: 0, Y: 0}, {X: 42, Y: 17}, {X: 9999, Y: 9999}}
	for _, tile := range cases {
		got := TileFromID(tile.ID())
		assert.Equal(t, tile, got)
	}
}

// bruteForceTiles enumerates tiles overlapping r by scanning every tile
// in a 2048x2048 grid, used as an oracle for TilesForRectangle.
func bruteForceTiles(r Rectangle, gridTiles int) []Tile {
	var out []Tile
	for ty := 0; ty < gridTiles; ty++ {
		for tx := 0; tx < gridTiles; tx++ {
			tile := Tile{X: tx, Y: ty}
			if r.Intersects(tile) {
				out = append(out, tile)
			}
		}
	}
	return out
}

func TestTilesForRectangleAgreesWithBruteForce(t *testing.T) {
	const gridSize = 2048
	const gridTiles = gridSize / TileSize // 2 (1000px tiles -> brute force needs only 3x3)
	rects := []Rectangle{
		NewRectangle(0, 0, 10, 10),
		NewRectangle(990, 990, 20, 20),
		NewRectangle(0, 0, 2048, 2048),
		NewRectangle(1500, 500, 300, 700),
	}
	for _, r := range rects {
		got := TilesForRectangle(r)
		want := bruteForceTiles(r, gridTiles+2)
		assert.ElementsMatch(t, want, got, "rectangle %+v", r)
	}
}

func TestClipToTile(t *testing.T) {
	r := NewRectangle(990, 990, 20, 20)
	clipped, ok := ClipToTile(r, Tile{X: 0, Y: 0})
	require.True(t, ok)
	assert.Equal(t, Rectangle{X: 990, Y: 990, W: 10, H: 10}, clipped)

	clipped, ok = ClipToTile(r, Tile{X: 1, Y: 1})
	require.True(t, ok)
	assert.Equal(t, Rectangle{X: 1000, Y: 1000, W: 10, H: 10}, clipped)

	_, ok = ClipToTile(r, Tile{X: 5, Y: 5})
	assert.False(t, ok)
}

func TestNewRectanglePanicsOnNonPositiveSize(t *testing.T) {
	assert.Panics(t, func() { NewRectangle(0, 0, 0, 10) })
	assert.Panics(t, func() { NewRectangle(0, 0, 10, -1) })
}
