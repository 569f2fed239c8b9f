package tlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filteredFromTraces(traces ...[]float64) *Filtered {
	frames := len(traces[0])
	pixels := len(traces)
	f := &Filtered{FP: 1, Frames: frames, Pixels: pixels, Vals: make([]float64, frames*pixels)}
	for p, trace := range traces {
		for fr, v := range trace {
			f.Vals[fr*pixels+p] = v
		}
	}
	return f
}

func TestDetectPeaks(t *testing.T) {
	f := filteredFromTraces(
		[]float64{0, 5, 80, 3, 1},  // clear peak at 2
		[]float64{9, 1, 1, 1, 1},   // peak at the start
		[]float64{1, 1, 1, 1, 42},  // peak at the end
		[]float64{7, 7, 7, 7, 7},   // flat: ties break to the smallest index
		[]float64{0, 30, 2, 30, 0}, // equal maxima: first wins
	)
	var prog Progress
	peaks, err := DetectPeaks(f, 3, &prog)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 0, 4, 0, 1}, peaks.Idx)
	assert.Equal(t, Fingerprint(3), peaks.FP)

	count, total := prog.Get()
	assert.Equal(t, uint32(5), count)
	assert.Equal(t, uint32(5), total)
}
