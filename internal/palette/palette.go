// Package palette implements the fixed, system-wide 64-color indexed
// palette (spec.md §4.2). Index 0 is reserved as transparent and carries
// special meaning during comparison: in a target image it means "no
// requirement here"; everywhere else it means "canvas is blank at this
// pixel". Conformance checking, PNG encode/decode, and the index-0-aware
// comparison helpers used by the Differ all live here.
//
// PNG encode/decode uses the standard library's image/png, matching
// pspoerri-geotiff2pmtiles's internal/encode/png.go — no third-party PNG
// codec in the retrieval pack offers anything stdlib doesn't already for
// a fixed 64-color indexed format.
package palette

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Size is the number of entries in the fixed palette, including the
// reserved transparent entry at index 0.
const Size = 64

// TransparentIndex is the reserved "no color"/"blank canvas" index.
const TransparentIndex = 0

// Colors is the system-wide fixed palette. Index 0 is fully transparent;
// the remaining 63 entries are the paint colors available on the
// canvas. Values are illustrative of a typical r/place-style palette
// and are deliberately distinct so PaletteViolation detection is exact.
var Colors = buildPalette()

func buildPalette() color.Palette {
	p := make(color.Palette, Size)
	p[TransparentIndex] = color.RGBA{0, 0, 0, 0}

	// Deterministically generate 63 distinct, fully-opaque colors spread
	// across the RGB cube so every entry is unambiguous.
	idx := 1
	for r := 0; r < 4 && idx < Size; r++ {
		for g := 0; g < 4 && idx < Size; g++ {
			for b := 0; b < 4 && idx < Size; b++ {
				if r == 0 && g == 0 && b == 0 {
					continue // skip black: the other 63 combinations fill indices 1..63, so opaque black is not in the palette
				}
				p[idx] = color.RGBA{
					R: uint8(r * 85),
					G: uint8(g * 85),
					B: uint8(b * 85),
					A: 255,
				}
				idx++
			}
		}
	}
	for idx < Size {
		p[idx] = color.RGBA{0, 0, 0, 255}
		idx++
	}
	return p
}

// PaletteViolation is returned when an image contains a color absent
// from the fixed palette (spec.md §7).
type PaletteViolation struct {
	X, Y  int
	Color color.Color
}

func (e *PaletteViolation) Error() string {
	r, g, b, a := e.Color.RGBA()
	return fmt.Sprintf("palette: pixel (%d,%d) has non-palette color rgba(%d,%d,%d,%d)", e.X, e.Y, r>>8, g>>8, b>>8, a>>8)
}

// indexOf returns the palette index of c, or -1 if c is not present.
func indexOf(c color.Color) int {
	cr, cg, cb, ca := c.RGBA()
	for i, pc := range Colors {
		pr, pg, pb, pa := pc.RGBA()
		if pr == cr && pg == cg && pb == cb && pa == ca {
			return i
		}
	}
	return -1
}

// Ensure validates that every pixel of img is a color present in the
// fixed palette, returning a *image.Paletted view if so. The first
// offending pixel is reported via PaletteViolation; scanning stops
// there per spec.md §4.2 ("fail if the image contains any color not in
// the palette").
func Ensure(img image.Image) (*image.Paletted, error) {
	if p, ok := img.(*image.Paletted); ok && paletteMatches(p.Palette) {
		return p, nil
	}

	b := img.Bounds()
	out := image.NewPaletted(b, Colors)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.At(x, y)
			idx := indexOf(c)
			if idx == -1 {
				return nil, &PaletteViolation{X: x, Y: y, Color: c}
			}
			out.SetColorIndex(x, y, uint8(idx))
		}
	}
	return out, nil
}

func paletteMatches(p color.Palette) bool {
	if len(p) != len(Colors) {
		return false
	}
	for i := range p {
		pr, pg, pb, pa := p[i].RGBA()
		cr, cg, cb, ca := Colors[i].RGBA()
		if pr != cr || pg != cg || pb != cb || pa != ca {
			return false
		}
	}
	return true
}

// Decode parses PNG bytes and validates palette conformance.
func Decode(data []byte) (*image.Paletted, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("palette: decode png: %w", err)
	}
	return Ensure(img)
}

// Encode writes a paletted image as PNG bytes.
func Encode(img *image.Paletted) ([]byte, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("palette: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// NewBlank returns a fully-transparent (index 0) paletted image of the
// given bounds, used to synthesize a blank tile or a first snapshot.
func NewBlank(w, h int) *image.Paletted {
	return image.NewPaletted(image.Rect(0, 0, w, h), Colors)
}

// MatchesTarget reports whether the current pixel index matches the
// target pixel index, honoring the index-0 special case: a target
// index of 0 means "no requirement here" and always counts as
// non-matching for completion purposes (the Differ's compare skips such
// pixels, so they are excluded from the denominator entirely).
func MatchesTarget(targetIdx, currentIdx uint8) bool {
	if targetIdx == TransparentIndex {
		return false
	}
	return targetIdx == currentIdx
}
