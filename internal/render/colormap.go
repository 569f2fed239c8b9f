// Package render turns the pipeline's numeric products into bytes a human
// can look at: palette-mapped PNG fields, npy exports, trace plots and an
// interactive heat-map report.
package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// rainbowStops is the fixed 9-stop palette used for every field rendering,
// low values first. Values between stops interpolate linearly; NaN pixels
// render transparent.
var rainbowStops = [9]color.NRGBA{
	{R: 0x00, G: 0x00, B: 0x80, A: 0xff}, // navy
	{R: 0x00, G: 0x00, B: 0xff, A: 0xff}, // blue
	{R: 0x00, G: 0xbf, B: 0xff, A: 0xff}, // sky
	{R: 0x00, G: 0xff, B: 0x80, A: 0xff}, // spring
	{R: 0x80, G: 0xff, B: 0x00, A: 0xff}, // chartreuse
	{R: 0xff, G: 0xff, B: 0x00, A: 0xff}, // yellow
	{R: 0xff, G: 0x80, B: 0x00, A: 0xff}, // orange
	{R: 0xff, G: 0x00, B: 0x00, A: 0xff}, // red
	{R: 0x80, G: 0x00, B: 0x00, A: 0xff}, // maroon
}

// mapValue maps a normalized position in [0, 1] through the palette.
func mapValue(t float64) color.NRGBA {
	if t <= 0 {
		return rainbowStops[0]
	}
	if t >= 1 {
		return rainbowStops[len(rainbowStops)-1]
	}
	scaled := t * float64(len(rainbowStops)-1)
	i := int(scaled)
	frac := scaled - float64(i)
	a, b := rainbowStops[i], rainbowStops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + frac*(float64(y)-float64(x)) + 0.5)
	}
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

// FieldPNG renders a 2-D scalar field to PNG with the given value range.
// NaN and infinite values become fully transparent pixels.
func FieldPNG(vals []float64, height, width int, vmin, vmax float64) ([]byte, error) {
	if len(vals) != height*width {
		return nil, tlc.Errf(tlc.KindInternal, "field length %d does not match %dx%d", len(vals), height, width)
	}
	if vmax <= vmin {
		return nil, tlc.Errf(tlc.KindInvalidArgument, "value range [%v, %v] is empty", vmin, vmax)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	span := vmax - vmin
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := vals[y*width+x]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue // zero value is already transparent
			}
			img.SetNRGBA(x, y, mapValue((v-vmin)/span))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, tlc.Wrapf(tlc.KindInternal, err, "png encode")
	}
	return buf.Bytes(), nil
}

// NuPlotter adapts FieldPNG to the core's plotter interface.
type NuPlotter struct{}

// RenderPNG renders the Nusselt field with the given color range.
func (NuPlotter) RenderPNG(nu *tlc.NuResult, vmin, vmax float64) ([]byte, error) {
	return FieldPNG(nu.Nu, nu.Height, nu.Width, vmin, vmax)
}

// FiniteRange returns the minimum and maximum finite values of a field, for
// auto-scaling. ok is false when every value is NaN.
func FiniteRange(vals []float64) (vmin, vmax float64, ok bool) {
	vmin, vmax = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < vmin {
			vmin = v
		}
		if v > vmax {
			vmax = v
		}
		ok = true
	}
	if ok && vmax == vmin {
		vmax = vmin + 1
	}
	return vmin, vmax, ok
}
