package tlc

// Derived data products. Each carries the fingerprint of the Setting subset
// it was computed from; the reconcile loop compares fingerprints before
// admitting or serving a product. The large matrices are shared by reference
// and never mutated after publication.

// Green2 is the dense frame-by-pixel matrix of green channel values over the
// synchronized window. Pixels enumerate the region of interest in row-major
// order; Vals is frame-major, so frame f pixel p lives at f*Pixels+p.
type Green2 struct {
	FP     Fingerprint
	Frames int
	Pixels int
	Vals   []uint8
}

// History returns the temporal green trace of one pixel as a fresh slice.
func (g *Green2) History(pixel int) []uint8 {
	out := make([]uint8, g.Frames)
	for f := 0; f < g.Frames; f++ {
		out[f] = g.Vals[f*g.Pixels+pixel]
	}
	return out
}

// Filtered is the temporally smoothed green matrix, same layout as Green2.
// Values are real: the wavelet filter produces fractional output, and median
// and identity output embeds exactly.
type Filtered struct {
	FP     Fingerprint
	Frames int
	Pixels int
	Vals   []float64
}

// History returns the filtered trace of one pixel as a fresh slice.
func (f *Filtered) History(pixel int) []float64 {
	out := make([]float64, f.Frames)
	for fr := 0; fr < f.Frames; fr++ {
		out[fr] = f.Vals[fr*f.Pixels+pixel]
	}
	return out
}

// PeakIdx holds, per pixel, the frame offset of the maximum filtered green
// value within the synchronized window.
type PeakIdx struct {
	FP  Fingerprint
	Idx []uint32
}

// InterpResult is the dense interpolated temperature matrix, frame-major like
// Green2, plus the region shape for serving per-frame 2-D views.
type InterpResult struct {
	FP     Fingerprint
	Frames int
	Height int
	Width  int
	Vals   []float64
}

// FrameView returns the 2-D temperature field of one synchronized frame.
// The returned slice aliases the underlying matrix; callers must not mutate.
func (r *InterpResult) FrameView(frame int) ([]float64, bool) {
	if frame < 0 || frame >= r.Frames {
		return nil, false
	}
	n := r.Height * r.Width
	return r.Vals[frame*n : (frame+1)*n], true
}

// PixelTrace writes the temperature history of one pixel up to and including
// frame limit into dst and returns it. dst must have capacity limit+1.
func (r *InterpResult) PixelTrace(dst []float64, pixel, limit int) []float64 {
	n := r.Height * r.Width
	dst = dst[:limit+1]
	for f := 0; f <= limit; f++ {
		dst[f] = r.Vals[f*n+pixel]
	}
	return dst
}

// NuResult is the final product: the 2-D Nusselt field (NaN at pixels whose
// solve diverged) and the mean over finite values.
type NuResult struct {
	FP     Fingerprint
	Height int
	Width  int
	Nu     []float64
	Mean   float64
}

// Data aggregates the derived product slots owned by the reconcile loop.
type Data struct {
	Green2   *Green2
	Filtered *Filtered
	PeakIdx  *PeakIdx
	Interp   *InterpResult
	Nu       *NuResult
}

// Invalidate drops every slot whose fingerprint no longer matches the
// current Setting, returning the stages that were cleared.
func (d *Data) Invalidate(s *Setting) []Stage {
	var cleared []Stage
	if d.Green2 != nil && d.Green2.FP != s.Green2Fingerprint() {
		d.Green2 = nil
		cleared = append(cleared, StageGreen2)
	}
	if d.Filtered != nil && d.Filtered.FP != s.FilterFingerprint() {
		d.Filtered = nil
		cleared = append(cleared, StageFilter)
	}
	if d.PeakIdx != nil && d.PeakIdx.FP != s.PeakFingerprint() {
		d.PeakIdx = nil
		cleared = append(cleared, StagePeak)
	}
	if d.Interp != nil && d.Interp.FP != s.InterpFingerprint() {
		d.Interp = nil
		cleared = append(cleared, StageInterp)
	}
	if d.Nu != nil && d.Nu.FP != s.SolveFingerprint() {
		d.Nu = nil
		cleared = append(cleared, StageSolve)
	}
	return cleared
}
