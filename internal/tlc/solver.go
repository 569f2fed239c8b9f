package tlc

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Relative convergence tolerance for both Newton variants.
const newtonTol = 1e-4

// Maximum step halvings for the damped variant.
const maxHalvings = 6

// SolveInput is the immutable snapshot the solve stage works from.
type SolveInput struct {
	Peak      *PeakIdx
	Interp    *InterpResult
	Method    IterMethod
	FrameRate float64

	PeakTemperature          float64
	SolidThermalConductivity float64
	SolidThermalDiffusivity  float64
	CharacteristicLength     float64
	AirThermalConductivity   float64
}

// erfcx returns exp(x*x)*erfc(x) without overflowing for large x. The direct
// product is exact while erfc is representable; beyond that the asymptotic
// expansion takes over.
func erfcx(x float64) float64 {
	if x < 25 {
		return math.Exp(x*x) * math.Erfc(x)
	}
	inv2 := 1 / (x * x)
	return (1 - 0.5*inv2 + 0.75*inv2*inv2) / (x * math.SqrtPi)
}

// slabResponse evaluates the transient surface response and its derivative
// in h. The wall temperature after a sequence of fluid temperature steps is
//
//	T(t_p) = T0 + sum_i dTheta_i * (1 - exp(h^2 a tau/k^2) erfc(h sqrt(a tau)/k))
//
// by Duhamel superposition over the semi-infinite slab step response, with
// tau the elapsed time since step i evaluated at the interval midpoint.
// Straight-line arithmetic, no allocation: the hot loop vectorizes.
func slabResponse(h, dt, k, alpha float64, trace []float64) (value, deriv float64) {
	peak := len(trace) - 1
	invK := 1 / k
	twoOverSqrtPi := 2 / math.SqrtPi
	for i := 1; i <= peak; i++ {
		dTheta := trace[i] - trace[i-1]
		tau := (float64(peak-i) + 0.5) * dt
		at := alpha * tau
		sq := math.Sqrt(at) * invK
		e := erfcx(h * sq)
		value += dTheta * (1 - e)
		deriv += dTheta * (twoOverSqrtPi*sq - 2*h*at*invK*invK*e)
	}
	return value, deriv
}

// pixelEquation returns f(h) = predicted wall temperature minus the measured
// peak temperature, and f'(h). f is monotone increasing in h for a heating
// transient, so Newton from a positive start behaves.
func pixelEquation(h float64, in *SolveInput, trace []float64) (f, df float64) {
	dt := 1 / in.FrameRate
	v, d := slabResponse(h, dt, in.SolidThermalConductivity, in.SolidThermalDiffusivity, trace)
	return trace[0] + v - in.PeakTemperature, d
}

// newtonTangent runs the classical iteration. Returns NaN when the iteration
// leaves the domain (a non-finite or non-positive h) or fails to meet the tolerance within maxIter steps.
func newtonTangent(in *SolveInput, trace []float64) float64 {
	h := in.Method.H0
	for i := 0; i < in.Method.MaxIter; i++ {
		f, df := pixelEquation(h, in, trace)
		if math.IsNaN(f) || math.IsNaN(df) || df == 0 {
			return math.NaN()
		}
		next := h - f/df
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= 0 {
			return math.NaN()
		}
		if math.Abs(next-h) < newtonTol*math.Abs(next) {
			return next
		}
		h = next
	}
	return math.NaN()
}

// newtonDown runs the damped iteration: a full step is attempted and halved
// up to maxHalvings times while it fails to reduce |f|.
func newtonDown(in *SolveInput, trace []float64) float64 {
	h := in.Method.H0
	f, df := pixelEquation(h, in, trace)
	for i := 0; i < in.Method.MaxIter; i++ {
		if math.IsNaN(f) || math.IsNaN(df) || df == 0 {
			return math.NaN()
		}
		step := f / df
		next := h - step
		nf, ndf := pixelEquation(next, in, trace)
		for halved := 0; halved < maxHalvings && (math.IsNaN(nf) || math.Abs(nf) >= math.Abs(f)); halved++ {
			step /= 2
			next = h - step
			nf, ndf = pixelEquation(next, in, trace)
		}
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= 0 {
			return math.NaN()
		}
		if math.Abs(next-h) < newtonTol*math.Abs(next) {
			return next
		}
		h, f, df = next, nf, ndf
	}
	return math.NaN()
}

// Solve computes the per-pixel convective coefficient by Newton iteration and
// derives the Nusselt field and its mean over finite values. Divergent pixels
// yield NaN and do not fail the stage.
func Solve(in SolveInput, fp Fingerprint, prog *Progress) (*NuResult, error) {
	npx := in.Interp.Height * in.Interp.Width
	if len(in.Peak.Idx) != npx {
		return nil, Errf(KindInternal, "peak index length %d does not match %d pixels", len(in.Peak.Idx), npx)
	}
	out := &NuResult{
		FP:     fp,
		Height: in.Interp.Height,
		Width:  in.Interp.Width,
		Nu:     make([]float64, npx),
	}
	prog.Start(uint32(npx))

	nuScale := in.CharacteristicLength / in.AirThermalConductivity

	var grp errgroup.Group
	workers := runtime.NumCPU()
	chunk := (npx + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}
	for lo := 0; lo < npx; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > npx {
			hi = npx
		}
		grp.Go(func() error {
			trace := make([]float64, in.Interp.Frames)
			for p := lo; p < hi; p++ {
				if prog.Canceled() {
					return ErrCanceled
				}
				limit := int(in.Peak.Idx[p])
				if limit >= in.Interp.Frames {
					limit = in.Interp.Frames - 1
				}
				t := in.Interp.PixelTrace(trace, p, limit)
				var h float64
				if in.Method.Kind == IterNewtonDown {
					h = newtonDown(&in, t)
				} else {
					h = newtonTangent(&in, t)
				}
				out.Nu[p] = h * nuScale
				prog.Add(1)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	finite := make([]float64, 0, npx)
	for _, v := range out.Nu {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) > 0 {
		out.Mean = stat.Mean(finite, nil)
	} else {
		out.Mean = math.NaN()
	}
	return out, nil
}
