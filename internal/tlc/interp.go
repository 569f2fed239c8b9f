package tlc

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// InterpInput is the immutable snapshot the interpolation stage works from.
type InterpInput struct {
	Daq        [][]float64
	StartRow   int
	FrameNum   int
	Area       Area
	Tcs        []Thermocouple
	Regulators []float64
	Method     InterpMethod
}

// Validate performs the admit-time checks: at least two thermocouples, and
// for the bilinear kinds a lattice whose arity matches the list.
func (in *InterpInput) Validate() error {
	if len(in.Tcs) < 2 {
		return Errf(KindInterpolationInvalid, "need at least 2 thermocouples, have %d", len(in.Tcs))
	}
	if in.Method.IsBilinear() {
		if in.Method.Rows < 2 || in.Method.Cols < 2 {
			return Errf(KindInterpolationInvalid, "bilinear lattice %dx%d must be at least 2x2",
				in.Method.Rows, in.Method.Cols)
		}
		if in.Method.Rows*in.Method.Cols != len(in.Tcs) {
			return Errf(KindInterpolationInvalid, "bilinear lattice %dx%d does not match %d thermocouples",
				in.Method.Rows, in.Method.Cols, len(in.Tcs))
		}
	}
	if in.StartRow+in.FrameNum > len(in.Daq) {
		return Errf(KindPreconditionUnsatisfied, "daq window [%d, %d) exceeds %d rows",
			in.StartRow, in.StartRow+in.FrameNum, len(in.Daq))
	}
	return nil
}

// sortedTc pairs a thermocouple with its regulator so the two stay aligned
// through sorting.
type sortedTc struct {
	Thermocouple
	reg float64
}

// orderTcs returns the thermocouples sorted for the method's axis: by x for
// horizontal, by y for vertical, row-major (y, then x) for bilinear.
func orderTcs(in *InterpInput) []sortedTc {
	out := make([]sortedTc, len(in.Tcs))
	for i, tc := range in.Tcs {
		reg := 1.0
		if i < len(in.Regulators) {
			reg = in.Regulators[i]
		}
		out[i] = sortedTc{Thermocouple: tc, reg: reg}
	}
	switch in.Method.Kind {
	case InterpHorizontal, InterpHorizontalExtrapolate:
		sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	case InterpVertical, InterpVerticalExtrapolate:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Y < out[j].Y })
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Y != out[j].Y {
				return out[i].Y < out[j].Y
			}
			return out[i].X < out[j].X
		})
	}
	return out
}

// Interpolate upsamples the sparse thermocouple traces to a dense per-frame
// temperature field over the region of interest. Frames are independent and
// run in parallel chunks; prog counts frames.
func Interpolate(in InterpInput, fp Fingerprint, prog *Progress) (*InterpResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	tcs := orderTcs(&in)

	h, w := in.Area.Height, in.Area.Width
	npx := h * w
	out := &InterpResult{
		FP:     fp,
		Frames: in.FrameNum,
		Height: h,
		Width:  w,
		Vals:   make([]float64, in.FrameNum*npx),
	}
	prog.Start(uint32(in.FrameNum))

	var grp errgroup.Group
	workers := runtime.NumCPU()
	chunk := (in.FrameNum + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}
	for lo := 0; lo < in.FrameNum; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > in.FrameNum {
			hi = in.FrameNum
		}
		grp.Go(func() error {
			temps := make([]float64, len(tcs))
			line := make([]float64, w)
			if in.Method.Kind == InterpVertical || in.Method.Kind == InterpVerticalExtrapolate {
				line = make([]float64, h)
			}
			for f := lo; f < hi; f++ {
				if prog.Canceled() {
					return ErrCanceled
				}
				row := in.Daq[in.StartRow+f]
				for i, tc := range tcs {
					if tc.Column >= len(row) {
						return Errf(KindDaqParseFailed, "row %d has %d columns, thermocouple wants %d",
							in.StartRow+f, len(row), tc.Column)
					}
					temps[i] = row[tc.Column] * tc.reg
				}
				dst := out.Vals[f*npx : (f+1)*npx]
				interpFrame(dst, &in, tcs, temps, line)
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

// interpFrame fills one frame's dense field from the per-frame thermocouple
// temperatures.
func interpFrame(dst []float64, in *InterpInput, tcs []sortedTc, temps, line []float64) {
	h, w := in.Area.Height, in.Area.Width
	switch in.Method.Kind {
	case InterpHorizontal, InterpHorizontalExtrapolate:
		extrap := in.Method.Kind == InterpHorizontalExtrapolate
		for x := 0; x < w; x++ {
			pos := float64(in.Area.Left + x)
			line[x] = interp1D(tcs, temps, pos, axisX, extrap)
		}
		for y := 0; y < h; y++ {
			copy(dst[y*w:(y+1)*w], line)
		}
	case InterpVertical, InterpVerticalExtrapolate:
		extrap := in.Method.Kind == InterpVerticalExtrapolate
		for y := 0; y < h; y++ {
			pos := float64(in.Area.Top + y)
			line[y] = interp1D(tcs, temps, pos, axisY, extrap)
		}
		for y := 0; y < h; y++ {
			v := line[y]
			row := dst[y*w : (y+1)*w]
			for x := range row {
				row[x] = v
			}
		}
	default:
		interpBilinearFrame(dst, in, tcs, temps)
	}
}

type axis int

const (
	axisX axis = iota
	axisY
)

func coord(tc sortedTc, a axis) float64 {
	if a == axisX {
		return tc.X
	}
	return tc.Y
}

// interp1D linearly interpolates along one axis. Outside the endpoints the
// value is clamped to the nearest endpoint, or the outermost segment's slope
// is extended when extrapolating.
func interp1D(tcs []sortedTc, temps []float64, pos float64, a axis, extrapolate bool) float64 {
	n := len(tcs)
	first, last := coord(tcs[0], a), coord(tcs[n-1], a)
	if pos <= first {
		if !extrapolate {
			return temps[0]
		}
		return segment(tcs, temps, 0, pos, a)
	}
	if pos >= last {
		if !extrapolate {
			return temps[n-1]
		}
		return segment(tcs, temps, n-2, pos, a)
	}
	i := sort.Search(n, func(i int) bool { return coord(tcs[i], a) > pos }) - 1
	if i > n-2 {
		i = n - 2
	}
	return segment(tcs, temps, i, pos, a)
}

// segment evaluates the line through points i and i+1 at pos. A degenerate
// segment (coincident coordinates) yields its left value.
func segment(tcs []sortedTc, temps []float64, i int, pos float64, a axis) float64 {
	x0, x1 := coord(tcs[i], a), coord(tcs[i+1], a)
	if x1 == x0 {
		return temps[i]
	}
	t := (pos - x0) / (x1 - x0)
	return temps[i] + t*(temps[i+1]-temps[i])
}

// interpBilinearFrame treats the sorted thermocouples as a regular lattice
// and evaluates classic bilinear interpolation per cell. Outside the lattice
// the clamping kind pins coordinates to the hull; the extrapolating kind lets
// the outermost cell's plane extend.
func interpBilinearFrame(dst []float64, in *InterpInput, tcs []sortedTc, temps []float64) {
	rows, cols := in.Method.Rows, in.Method.Cols
	extrap := in.Method.Kind == InterpBilinearExtrapolate

	ys := make([]float64, rows)
	for r := 0; r < rows; r++ {
		ys[r] = tcs[r*cols].Y
	}
	xs := make([]float64, cols)
	for c := 0; c < cols; c++ {
		xs[c] = tcs[c].X
	}

	h, w := in.Area.Height, in.Area.Width
	for y := 0; y < h; y++ {
		py := float64(in.Area.Top + y)
		if !extrap {
			py = clampf(py, ys[0], ys[rows-1])
		}
		r := cellIndex(ys, py)
		v := 0.0
		if dy := ys[r+1] - ys[r]; dy != 0 {
			v = (py - ys[r]) / dy
		}
		for x := 0; x < w; x++ {
			px := float64(in.Area.Left + x)
			if !extrap {
				px = clampf(px, xs[0], xs[cols-1])
			}
			c := cellIndex(xs, px)
			u := 0.0
			if dx := xs[c+1] - xs[c]; dx != 0 {
				u = (px - xs[c]) / dx
			}
			t00 := temps[r*cols+c]
			t01 := temps[r*cols+c+1]
			t10 := temps[(r+1)*cols+c]
			t11 := temps[(r+1)*cols+c+1]
			dst[y*w+x] = (1-v)*((1-u)*t00+u*t01) + v*((1-u)*t10+u*t11)
		}
	}
}

// cellIndex returns the lattice cell containing pos, clamped to the outermost
// cell so out-of-hull positions extrapolate from the edge cell.
func cellIndex(grid []float64, pos float64) int {
	i := sort.SearchFloat64s(grid, pos) - 1
	if i < 0 {
		i = 0
	}
	if i > len(grid)-2 {
		i = len(grid) - 2
	}
	return i
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
