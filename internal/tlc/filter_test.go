package tlc

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// green2FromTraces builds a Green2 whose pixels carry the given traces.
func green2FromTraces(traces ...[]uint8) *Green2 {
	frames := len(traces[0])
	pixels := len(traces)
	g := &Green2{FP: 1, Frames: frames, Pixels: pixels, Vals: make([]uint8, frames*pixels)}
	for p, trace := range traces {
		for f, v := range trace {
			g.Vals[f*pixels+p] = v
		}
	}
	return g
}

func pixelTrace(f *Filtered, p int) []float64 {
	out := make([]float64, f.Frames)
	for fr := 0; fr < f.Frames; fr++ {
		out[fr] = f.Vals[fr*f.Pixels+p]
	}
	return out
}

func TestFilterIdentity(t *testing.T) {
	g := green2FromTraces([]uint8{3, 1, 4, 1, 5, 9, 2, 6})
	var prog Progress
	out, err := ApplyFilter(g, FilterMethod{Kind: FilterNone}, 7, &prog)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 4, 1, 5, 9, 2, 6}, pixelTrace(out, 0))
	assert.Equal(t, Fingerprint(7), out.FP)

	count, total := prog.Get()
	assert.Equal(t, uint32(1), count)
	assert.Equal(t, uint32(1), total)
}

func TestMedianSuppressesSpike(t *testing.T) {
	// A lone spike inside a 5-sample window disappears entirely.
	g := green2FromTraces([]uint8{0, 0, 100, 0, 0})
	var prog Progress
	out, err := ApplyFilter(g, FilterMethod{Kind: FilterMedian, Window: 5}, 1, &prog)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, pixelTrace(out, 0))

	var peakProg Progress
	peaks, err := DetectPeaks(out, 2, &peakProg)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), peaks.Idx[0])
}

func TestMedianAgainstSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	frames := 64
	trace := make([]uint8, frames)
	for i := range trace {
		trace[i] = uint8(rng.Intn(256))
	}
	g := green2FromTraces(trace)

	for _, window := range []int{1, 3, 5, 9} {
		var prog Progress
		out, err := ApplyFilter(g, FilterMethod{Kind: FilterMedian, Window: window}, 1, &prog)
		require.NoError(t, err)

		for f := 0; f < frames; f++ {
			lo := f - window/2
			if lo < 0 {
				lo = 0
			}
			hi := f + (window-1)/2
			if hi > frames-1 {
				hi = frames - 1
			}
			win := append([]uint8(nil), trace[lo:hi+1]...)
			sort.Slice(win, func(i, j int) bool { return win[i] < win[j] })
			want := float64(win[(len(win)-1)/2])
			assert.Equalf(t, want, out.Vals[f*1+0], "window=%d frame=%d", window, f)
		}
	}
}

func TestWaveletPreservesFlatTrace(t *testing.T) {
	g := green2FromTraces([]uint8{50, 50, 50, 50, 50, 50})
	var prog Progress
	out, err := ApplyFilter(g, FilterMethod{Kind: FilterWavelet, Threshold: 0.5}, 1, &prog)
	require.NoError(t, err)
	for _, v := range pixelTrace(out, 0) {
		assert.InDelta(t, 50, v, 1e-9)
	}
}

func TestWaveletShrinksSmallDetails(t *testing.T) {
	// A small oscillation on a large-step signal: the step survives (it falls
	// between Haar pairs, so the approximation carries it), the oscillation is
	// attenuated.
	g := green2FromTraces([]uint8{10, 12, 10, 12, 110, 112, 110, 112})
	var prog Progress
	out, err := ApplyFilter(g, FilterMethod{Kind: FilterWavelet, Threshold: 0.9}, 1, &prog)
	require.NoError(t, err)
	got := pixelTrace(out, 0)

	// Pairwise means survive the shrink; the within-pair wiggle flattens.
	assert.InDelta(t, 11, got[0], 1.1)
	assert.InDelta(t, 11, got[1], 1.1)
	assert.InDelta(t, got[0], got[1], 0.5)
	assert.True(t, got[4] > 100)
}

func TestWaveletOddLengthPassthrough(t *testing.T) {
	g := green2FromTraces([]uint8{1, 2, 3, 4, 99})
	var prog Progress
	out, err := ApplyFilter(g, FilterMethod{Kind: FilterWavelet, Threshold: 0.5}, 1, &prog)
	require.NoError(t, err)
	got := pixelTrace(out, 0)
	assert.Equal(t, float64(99), got[4], "trailing odd sample is untouched")
}

func TestByteCounterKth(t *testing.T) {
	var c byteCounter
	vals := []uint8{5, 3, 250, 3, 0, 17}
	for _, v := range vals {
		c.add(v, 1)
	}
	sorted := append([]uint8(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for k, want := range sorted {
		assert.Equal(t, want, c.kth(k), "rank %d", k)
	}
	c.add(250, -1)
	assert.Equal(t, uint8(17), c.kth(4))
}

func TestHaarRoundTripWithoutThreshold(t *testing.T) {
	x := []float64{4, 8, 15, 16, 23, 42}
	orig := append([]float64(nil), x...)
	haarShrink(x, 0) // zero threshold: pure transform + inverse
	for i := range x {
		assert.InDelta(t, orig[i], x[i], 1e-9)
	}
}

func TestMedianWindowLargerThanTrace(t *testing.T) {
	g := green2FromTraces([]uint8{9, 1, 5})
	var prog Progress
	out, err := ApplyFilter(g, FilterMethod{Kind: FilterMedian, Window: 99}, 1, &prog)
	require.NoError(t, err)
	got := pixelTrace(out, 0)
	for _, v := range got {
		assert.False(t, math.IsNaN(v))
	}
	// Window clamps to the trace: [9 1], [9 1 5], [1 5].
	assert.Equal(t, []float64{1, 5, 1}, got)
}
