package tlc

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Fingerprint identifies the exact Setting subset a stage consumed. Two
// results belong to the same state iff their fingerprints are equal. Zero is
// reserved for "inputs incomplete".
type Fingerprint uint64

// fpHasher canonically encodes values into an FNV-1a stream. Field order is
// fixed per stage, so equal subsets hash equally across runs of one build.
type fpHasher struct {
	h interface {
		Write([]byte) (int, error)
		Sum64() uint64
	}
	buf [8]byte
}

func newFPHasher() *fpHasher { return &fpHasher{h: fnv.New64a()} }

func (f *fpHasher) str(s string) {
	f.int64(int64(len(s)))
	f.h.Write([]byte(s))
}

func (f *fpHasher) int64(v int64) {
	binary.LittleEndian.PutUint64(f.buf[:], uint64(v))
	f.h.Write(f.buf[:])
}

func (f *fpHasher) float(v float64) {
	binary.LittleEndian.PutUint64(f.buf[:], math.Float64bits(v))
	f.h.Write(f.buf[:])
}

func (f *fpHasher) sum() Fingerprint {
	v := Fingerprint(f.h.Sum64())
	if v == 0 {
		v = 1
	}
	return v
}

func (f *fpHasher) area(a Area) {
	f.int64(int64(a.Top))
	f.int64(int64(a.Left))
	f.int64(int64(a.Height))
	f.int64(int64(a.Width))
}

// Green2Fingerprint covers the inputs of the green matrix build: which video,
// which synchronized window, which region.
func (s *Setting) Green2Fingerprint() Fingerprint {
	if s.VideoMeta == nil || s.Area == nil || s.StartFrame == nil || s.FrameNum() < 1 {
		return 0
	}
	h := newFPHasher()
	h.str(s.VideoMeta.Path)
	h.int64(int64(*s.StartFrame))
	h.int64(int64(s.FrameNum()))
	h.area(*s.Area)
	return h.sum()
}

// FilterFingerprint covers the green inputs plus the filter selection.
func (s *Setting) FilterFingerprint() Fingerprint {
	base := s.Green2Fingerprint()
	if base == 0 || s.FilterMethod == nil {
		return 0
	}
	h := newFPHasher()
	h.int64(int64(base))
	h.str(string(s.FilterMethod.Kind))
	h.int64(int64(s.FilterMethod.Window))
	h.float(s.FilterMethod.Threshold)
	return h.sum()
}

// PeakFingerprint equals the filter fingerprint rehashed; peak detection has
// no inputs of its own.
func (s *Setting) PeakFingerprint() Fingerprint {
	base := s.FilterFingerprint()
	if base == 0 {
		return 0
	}
	h := newFPHasher()
	h.str("peak")
	h.int64(int64(base))
	return h.sum()
}

// InterpFingerprint covers the DAQ window, the region, the thermocouple
// layout, the regulators and the interpolation method.
func (s *Setting) InterpFingerprint() Fingerprint {
	if s.DaqMeta == nil || s.Area == nil || s.StartRow == nil ||
		s.InterpMethod == nil || len(s.Thermocouples) < 2 || s.FrameNum() < 1 {
		return 0
	}
	h := newFPHasher()
	h.str(s.DaqMeta.Path)
	h.int64(int64(*s.StartRow))
	h.int64(int64(s.FrameNum()))
	h.area(*s.Area)
	for _, tc := range s.Thermocouples {
		h.int64(int64(tc.Column))
		h.float(tc.Y)
		h.float(tc.X)
	}
	for _, r := range s.TemperatureRegulators {
		h.float(r)
	}
	h.str(string(s.InterpMethod.Kind))
	h.int64(int64(s.InterpMethod.Rows))
	h.int64(int64(s.InterpMethod.Cols))
	return h.sum()
}

// SolveFingerprint covers everything the Nusselt solve depends on.
func (s *Setting) SolveFingerprint() Fingerprint {
	peak := s.PeakFingerprint()
	interp := s.InterpFingerprint()
	if peak == 0 || interp == 0 || s.IterMethod == nil || !s.Physical.Complete() {
		return 0
	}
	h := newFPHasher()
	h.int64(int64(peak))
	h.int64(int64(interp))
	h.str(string(s.IterMethod.Kind))
	h.float(s.IterMethod.H0)
	h.int64(int64(s.IterMethod.MaxIter))
	h.float(*s.Physical.PeakTemperature)
	h.float(*s.Physical.SolidThermalConductivity)
	h.float(*s.Physical.SolidThermalDiffusivity)
	h.float(*s.Physical.CharacteristicLength)
	h.float(*s.Physical.AirThermalConductivity)
	h.float(s.VideoMeta.FrameRate)
	return h.sum()
}

// StageFingerprint returns the fingerprint of the Setting subset the given
// stage consumes, or 0 when that subset is incomplete.
func (s *Setting) StageFingerprint(stage Stage) Fingerprint {
	switch stage {
	case StageGreen2:
		return s.Green2Fingerprint()
	case StageFilter:
		return s.FilterFingerprint()
	case StagePeak:
		return s.PeakFingerprint()
	case StageInterp:
		return s.InterpFingerprint()
	case StageSolve:
		return s.SolveFingerprint()
	}
	return 0
}
