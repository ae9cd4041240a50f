package palette

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureEncodeDecodeRoundTrip(t *testing.T) {
	src := image.NewPaletted(image.Rect(0, 0, 4, 4), Colors)
	src.SetColorIndex(0, 0, 5)
	src.SetColorIndex(1, 1, 10)

	ensured, err := Ensure(src)
	require.NoError(t, err)

	encoded, err := Encode(ensured)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	reensured, err := Ensure(decoded)
	require.NoError(t, err)

	assert.Equal(t, ensured.Bounds(), reensured.Bounds())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, ensured.ColorIndexAt(x, y), reensured.ColorIndexAt(x, y))
		}
	}
}

func TestEnsureRejectsNonPaletteColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 123, G: 45, B: 67, A: 200})

	_, err := Ensure(img)
	require.Error(t, err)
	var violation *PaletteViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, 0, violation.X)
	assert.Equal(t, 0, violation.Y)
}

func TestMatchesTargetHonorsTransparentIndex(t *testing.T) {
	assert.False(t, MatchesTarget(TransparentIndex, TransparentIndex))
	assert.False(t, MatchesTarget(TransparentIndex, 7))
	assert.True(t, MatchesTarget(7, 7))
	assert.False(t, MatchesTarget(7, 8))
}

func TestNewBlankIsAllTransparent(t *testing.T) {
	blank := NewBlank(10, 10)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, uint8(TransparentIndex), blank.ColorIndexAt(x, y))
		}
	}
}
