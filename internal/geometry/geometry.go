// Package geometry implements tile/pixel coordinate arithmetic for the
// canvas: converting between the four-tuple on-disk filename convention
// (tx, ty, px, py) and absolute canvas pixel coordinates, enumerating
// the tiles a rectangle intersects, and clipping a rectangle to a single
// tile's interior. Every operation here is pure; invalid input is a
// programmer error and panics rather than returning an error.
package geometry

import "fmt"

// TileSize is the edge length, in canvas pixels, of one tile (spec.md §1).
const TileSize = 1000

// Tile identifies one tile on the canvas grid by its tile-space
// coordinates (not pixel coordinates).
type Tile struct {
	X, Y int
}

// ID is the store's computed primary key for a tile: x·10000 + y
// (spec.md §6). A y-coordinate above 9999 would collide with the next
// x column and is a precondition violation; x is not range-checked.
func (t Tile) ID() int64 {
	requireNonNegative("tile.X", t.X)
	requireNonNegative("tile.Y", t.Y)
	if t.Y >= 10000 {
		panic(fmt.Sprintf("geometry: tile y-coordinate %d out of range for id encoding", t.Y))
	}
	return int64(t.X)*10000 + int64(t.Y)
}

// TileFromID decodes a tile id back to its (x, y) coordinates.
func TileFromID(id int64) Tile {
	if id < 0 {
		panic(fmt.Sprintf("geometry: negative tile id %d", id))
	}
	return Tile{X: int(id / 10000), Y: int(id % 10000)}
}

// Origin returns the absolute canvas pixel coordinate of this tile's
// top-left corner.
func (t Tile) Origin() Point {
	return Point{X: t.X * TileSize, Y: t.Y * TileSize}
}

// Point is an absolute canvas pixel coordinate.
type Point struct {
	X, Y int
}

// Size is a non-negative width/height pair.
type Size struct {
	W, H int
}

// Rectangle is an axis-aligned region in canvas-pixel space, anchored at
// (X, Y) with the given Size.
type Rectangle struct {
	X, Y, W, H int
}

func requireNonNegative(name string, v int) {
	if v < 0 {
		panic(fmt.Sprintf("geometry: %s must be non-negative, got %d", name, v))
	}
}

// NewRectangle validates and constructs a Rectangle. A zero-area
// rectangle (W == 0 or H == 0) is a precondition violation: every
// Project covers at least one pixel.
func NewRectangle(x, y, w, h int) Rectangle {
	requireNonNegative("x", x)
	requireNonNegative("y", y)
	if w <= 0 {
		panic(fmt.Sprintf("geometry: rectangle width must be positive, got %d", w))
	}
	if h <= 0 {
		panic(fmt.Sprintf("geometry: rectangle height must be positive, got %d", h))
	}
	return Rectangle{X: x, Y: y, W: w, H: h}
}

// Right and Bottom are the exclusive bounds of the rectangle.
func (r Rectangle) Right() int  { return r.X + r.W }
func (r Rectangle) Bottom() int { return r.Y + r.H }

// FromFilenameParts reconstructs an absolute canvas Point from the
// (tx, ty, px, py) tuple used in on-disk filenames, where px/py are
// pixel offsets within tile (tx, ty).
func FromFilenameParts(tx, ty, px, py int) Point {
	requireNonNegative("tx", tx)
	requireNonNegative("ty", ty)
	if px < 0 || px >= TileSize {
		panic(fmt.Sprintf("geometry: px %d out of tile bounds", px))
	}
	if py < 0 || py >= TileSize {
		panic(fmt.Sprintf("geometry: py %d out of tile bounds", py))
	}
	return Point{X: tx*TileSize + px, Y: ty*TileSize + py}
}

// ToFilenameParts decomposes an absolute canvas Point into the
// (tx, ty, px, py) tuple used in on-disk filenames. It is the exact
// inverse of FromFilenameParts.
func ToFilenameParts(p Point) (tx, ty, px, py int) {
	requireNonNegative("point.X", p.X)
	requireNonNegative("point.Y", p.Y)
	tx = p.X / TileSize
	ty = p.Y / TileSize
	px = p.X % TileSize
	py = p.Y % TileSize
	return
}

// TilesForRectangle enumerates every Tile the given Rectangle
// intersects, in row-major order (y outer, x inner).
func TilesForRectangle(r Rectangle) []Tile {
	minTX := r.X / TileSize
	minTY := r.Y / TileSize
	maxTX := (r.Right() - 1) / TileSize
	maxTY := (r.Bottom() - 1) / TileSize

	tiles := make([]Tile, 0, (maxTX-minTX+1)*(maxTY-minTY+1))
	for ty := minTY; ty <= maxTY; ty++ {
		for tx := minTX; tx <= maxTX; tx++ {
			tiles = append(tiles, Tile{X: tx, Y: ty})
		}
	}
	return tiles
}

// Intersects reports whether Rectangle r overlaps the canvas region
// covered by Tile t.
func (r Rectangle) Intersects(t Tile) bool {
	origin := t.Origin()
	tileRect := Rectangle{X: origin.X, Y: origin.Y, W: TileSize, H: TileSize}
	return r.X < tileRect.Right() && tileRect.X < r.Right() &&
		r.Y < tileRect.Bottom() && tileRect.Y < r.Bottom()
}

// ClipToTile intersects Rectangle r with the canvas region covered by
// Tile t, returning the overlap and true, or the zero Rectangle and
// false if they do not overlap.
func ClipToTile(r Rectangle, t Tile) (Rectangle, bool) {
	origin := t.Origin()
	x0 := max(r.X, origin.X)
	y0 := max(r.Y, origin.Y)
	x1 := min(r.Right(), origin.X+TileSize)
	y1 := min(r.Bottom(), origin.Y+TileSize)
	if x0 >= x1 || y0 >= y1 {
		return Rectangle{}, false
	}
	return Rectangle{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// OffsetWithinTile returns the pixel offset of canvas Point p within
// the tile it falls in.
func OffsetWithinTile(p Point) (dx, dy int) {
	_, _, px, py := ToFilenameParts(p)
	return px, py
}
