package tlc

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ApplyFilter smooths each pixel's temporal green trace with the selected
// method. Pixels are independent and processed in parallel chunks; prog is
// advanced once per pixel and doubles as the cancellation signal.
func ApplyFilter(g *Green2, m FilterMethod, fp Fingerprint, prog *Progress) (*Filtered, error) {
	out := &Filtered{
		FP:     fp,
		Frames: g.Frames,
		Pixels: g.Pixels,
		Vals:   make([]float64, len(g.Vals)),
	}
	prog.Start(uint32(g.Pixels))

	var grp errgroup.Group
	workers := runtime.NumCPU()
	chunk := (g.Pixels + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}
	for lo := 0; lo < g.Pixels; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > g.Pixels {
			hi = g.Pixels
		}
		grp.Go(func() error {
			trace := make([]float64, g.Frames)
			scratch := make([]float64, g.Frames)
			for p := lo; p < hi; p++ {
				if prog.Canceled() {
					return ErrCanceled
				}
				for f := 0; f < g.Frames; f++ {
					trace[f] = float64(g.Vals[f*g.Pixels+p])
				}
				switch m.Kind {
				case FilterNone:
					copy(scratch, trace)
				case FilterMedian:
					medianFilter(scratch, trace, m.Window, g.Vals, g.Pixels, p)
				case FilterWavelet:
					copy(scratch, trace)
					haarShrink(scratch, m.Threshold)
				}
				for f := 0; f < g.Frames; f++ {
					out.Vals[f*g.Pixels+p] = scratch[f]
				}
				prog.Add(1)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// byteCounter is a Fenwick tree over the 256-value green alphabet. Insert,
// delete and rank query are all O(log 256), which makes the running median a
// strict sliding window rather than a re-sort per sample.
type byteCounter struct {
	tree [257]int
	n    int
}

func (c *byteCounter) add(v uint8, delta int) {
	c.n += delta
	for i := int(v) + 1; i <= 256; i += i & -i {
		c.tree[i] += delta
	}
}

// kth returns the value with zero-based rank k.
func (c *byteCounter) kth(k int) uint8 {
	pos := 0
	rem := k + 1
	for bit := 256; bit > 0; bit >>= 1 {
		next := pos + bit
		if next <= 256 && c.tree[next] < rem {
			pos = next
			rem -= c.tree[next]
		}
	}
	return uint8(pos)
}

// median returns the lower median of the current window.
func (c *byteCounter) median() uint8 {
	return c.kth((c.n - 1) / 2)
}

// medianFilter writes the running median of pixel p's trace into dst. The
// window is centered and clamped to the available samples at both ends, so
// output length equals input length.
func medianFilter(dst, trace []float64, window int, raw []uint8, stride, p int) {
	frames := len(trace)
	if window <= 1 || frames == 0 {
		copy(dst, trace)
		return
	}
	if window > frames {
		window = frames
	}
	half := window / 2

	var c byteCounter
	lo, hi := 0, -1 // current window [lo, hi]
	for f := 0; f < frames; f++ {
		wantLo := f - half
		if wantLo < 0 {
			wantLo = 0
		}
		wantHi := f + (window-1)/2
		if wantHi > frames-1 {
			wantHi = frames - 1
		}
		for hi < wantHi {
			hi++
			c.add(raw[hi*stride+p], 1)
		}
		for lo < wantLo {
			c.add(raw[lo*stride+p], -1)
			lo++
		}
		dst[f] = float64(c.median())
	}
}

// haarShrink applies a single-level Haar transform along the trace, soft-
// thresholds the detail coefficients at threshold*max|detail| and inverts.
// An odd trailing sample passes through untouched.
func haarShrink(x []float64, threshold float64) {
	n := len(x)
	half := n / 2
	if half == 0 {
		return
	}
	const s = math.Sqrt2

	approx := make([]float64, half)
	detail := make([]float64, half)
	maxDetail := 0.0
	for i := 0; i < half; i++ {
		a, b := x[2*i], x[2*i+1]
		approx[i] = (a + b) / s
		detail[i] = (a - b) / s
		if d := math.Abs(detail[i]); d > maxDetail {
			maxDetail = d
		}
	}

	lambda := threshold * maxDetail
	for i := 0; i < half; i++ {
		d := detail[i]
		switch {
		case d > lambda:
			d -= lambda
		case d < -lambda:
			d += lambda
		default:
			d = 0
		}
		x[2*i] = (approx[i] + d) / s
		x[2*i+1] = (approx[i] - d) / s
	}
}
