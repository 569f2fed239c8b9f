package render

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPNGEncodesAndMapsRange(t *testing.T) {
	vals := []float64{0, 50, 100, math.NaN()}
	data, err := FieldPNG(vals, 2, 2, 0, 100)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	// Low end of the palette is navy, high end maroon, NaN transparent.
	r, g, b, a := img.At(0, 0).RGBA()
	assert.NotZero(t, a)
	assert.True(t, b > r && b > g, "low value maps blue-ish, got rgb(%d,%d,%d)", r>>8, g>>8, b>>8)

	r, _, b, a = img.At(0, 1).RGBA() // value 100 at (y=1, x=0)
	assert.NotZero(t, a)
	assert.True(t, r > b, "high value maps red-ish")

	_, _, _, a = img.At(1, 1).RGBA()
	assert.Zero(t, a, "NaN pixel is transparent")
}

func TestFieldPNGValidation(t *testing.T) {
	_, err := FieldPNG([]float64{1, 2}, 2, 2, 0, 1)
	assert.Error(t, err, "length mismatch")
	_, err = FieldPNG([]float64{1, 2, 3, 4}, 2, 2, 5, 5)
	assert.Error(t, err, "empty range")
}

func TestMapValueClampsAndInterpolates(t *testing.T) {
	assert.Equal(t, rainbowStops[0], mapValue(-0.5))
	assert.Equal(t, rainbowStops[0], mapValue(0))
	assert.Equal(t, rainbowStops[8], mapValue(1))
	assert.Equal(t, rainbowStops[8], mapValue(2))

	// Exactly on an interior stop.
	mid := mapValue(0.5)
	assert.Equal(t, rainbowStops[4].R, mid.R)
	assert.Equal(t, rainbowStops[4].G, mid.G)
	assert.Equal(t, rainbowStops[4].B, mid.B)
}

func TestFiniteRange(t *testing.T) {
	vmin, vmax, ok := FiniteRange([]float64{3, math.NaN(), -2, 7, math.Inf(1)})
	require.True(t, ok)
	assert.Equal(t, -2.0, vmin)
	assert.Equal(t, 7.0, vmax)

	_, _, ok = FiniteRange([]float64{math.NaN(), math.NaN()})
	assert.False(t, ok)

	vmin, vmax, ok = FiniteRange([]float64{5, 5})
	require.True(t, ok)
	assert.Less(t, vmin, vmax, "degenerate range is widened")
}
