package tlc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthesizeInput builds a single-pixel solve whose exact solution is hTrue:
// the fluid temperature steps once, and the recorded peak wall temperature is
// taken from the forward model itself.
func synthesizeInput(hTrue float64, method IterMethod, frames int) SolveInput {
	const (
		t0        = 20.0
		tFluid    = 80.0
		frameRate = 25.0
		kS        = 0.19
		alphaS    = 1.1e-7
	)

	trace := make([]float64, frames)
	trace[0] = t0
	for i := 1; i < frames; i++ {
		trace[i] = tFluid
	}

	interp := &InterpResult{FP: 1, Frames: frames, Height: 1, Width: 1, Vals: trace}
	peak := &PeakIdx{FP: 1, Idx: []uint32{uint32(frames - 1)}}

	in := SolveInput{
		Peak:                     peak,
		Interp:                   interp,
		Method:                   method,
		FrameRate:                frameRate,
		SolidThermalConductivity: kS,
		SolidThermalDiffusivity:  alphaS,
		CharacteristicLength:     1, // Nu == h for easy comparison
		AirThermalConductivity:   1,
	}

	// The measured peak temperature is whatever the model predicts at hTrue,
	// making hTrue the exact root.
	predicted, _ := slabResponse(hTrue, 1/frameRate, kS, alphaS, trace)
	in.PeakTemperature = t0 + predicted
	return in
}

func TestNewtonTangentConverges(t *testing.T) {
	in := synthesizeInput(500, IterMethod{Kind: IterNewtonTangent, H0: 50, MaxIter: 20}, 100)
	var prog Progress
	out, err := Solve(in, 9, &prog)
	require.NoError(t, err)
	require.Len(t, out.Nu, 1)
	assert.InDelta(t, 500, out.Nu[0], 0.05)
	assert.InDelta(t, 500, out.Mean, 0.05)
}

func TestNewtonDownConverges(t *testing.T) {
	in := synthesizeInput(500, IterMethod{Kind: IterNewtonDown, H0: 50, MaxIter: 30}, 100)
	var prog Progress
	out, err := Solve(in, 9, &prog)
	require.NoError(t, err)
	assert.InDelta(t, 500, out.Nu[0], 0.05)
}

func TestSolverDivergenceYieldsNaN(t *testing.T) {
	// A peak temperature below the initial wall temperature has no positive
	// root: the iteration exhausts itself and the pixel reads NaN.
	in := synthesizeInput(500, IterMethod{Kind: IterNewtonTangent, H0: 50, MaxIter: 5}, 50)
	in.PeakTemperature = 10
	var prog Progress
	out, err := Solve(in, 9, &prog)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.Nu[0]))
	assert.True(t, math.IsNaN(out.Mean), "mean of zero finite pixels")
}

func TestNuScaling(t *testing.T) {
	in := synthesizeInput(200, IterMethod{Kind: IterNewtonTangent, H0: 50, MaxIter: 30}, 60)
	in.CharacteristicLength = 0.015
	in.AirThermalConductivity = 0.0266
	var prog Progress
	out, err := Solve(in, 9, &prog)
	require.NoError(t, err)
	assert.InDelta(t, 200*0.015/0.0266, out.Nu[0], 0.1)
}

func TestMeanSkipsNaNPixels(t *testing.T) {
	good := synthesizeInput(300, IterMethod{Kind: IterNewtonTangent, H0: 50, MaxIter: 30}, 40)

	// Two pixels: one solvable, one unsolvable.
	frames := good.Interp.Frames
	vals := make([]float64, frames*2)
	for f := 0; f < frames; f++ {
		vals[f*2+0] = good.Interp.Vals[f]
		vals[f*2+1] = 20 // flat trace: no heating, no root
	}
	good.Interp = &InterpResult{FP: 1, Frames: frames, Height: 1, Width: 2, Vals: vals}
	good.Peak = &PeakIdx{FP: 1, Idx: []uint32{uint32(frames - 1), uint32(frames - 1)}}

	var prog Progress
	out, err := Solve(good, 9, &prog)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(out.Nu[0]))
	assert.True(t, math.IsNaN(out.Nu[1]))
	assert.InDelta(t, out.Nu[0], out.Mean, 1e-9)

	count, total := prog.Get()
	assert.Equal(t, uint32(2), count)
	assert.Equal(t, uint32(2), total)
}

func TestErfcxStability(t *testing.T) {
	// Direct evaluation region.
	assert.InDelta(t, 1.0, erfcx(0), 1e-12)
	assert.InDelta(t, math.Exp(1)*math.Erfc(1), erfcx(1), 1e-12)

	// Large-argument region must neither overflow nor go negative, and must
	// agree with the asymptotic form.
	for _, x := range []float64{25, 30, 100, 1e4} {
		v := erfcx(x)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "x=%v", x)
		assert.InDelta(t, 1/(x*math.SqrtPi), v, 1e-3/x, "x=%v", x)
	}

	// Continuity across the switchover point.
	below, above := erfcx(24.999), erfcx(25.001)
	assert.InDelta(t, below, above, 1e-6)
}

func TestSlabResponseMonotoneInH(t *testing.T) {
	trace := []float64{20, 80, 80, 80, 80, 80, 80, 80}
	prev := -math.MaxFloat64
	for _, h := range []float64{1, 10, 100, 1000, 10000} {
		v, d := slabResponse(h, 0.04, 0.19, 1.1e-7, trace)
		assert.Greater(t, v, prev, "response grows with h")
		assert.Greater(t, d, 0.0, "derivative stays positive")
		prev = v
	}
}
