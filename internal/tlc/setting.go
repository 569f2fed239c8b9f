// Package tlc implements the computation core of the transient liquid
// crystal experiment processor: the experiment Setting, the derived-data
// pipeline stages, and the reconcile loop that schedules them.
package tlc

import (
	"time"
)

// VideoMeta describes the video file backing an experiment. It is set
// atomically when a video path is assigned and never partially populated.
type VideoMeta struct {
	Path        string  `json:"path"`
	TotalFrames int     `json:"total_frames"`
	FrameRate   float64 `json:"frame_rate"`
	Height      int     `json:"height"`
	Width       int     `json:"width"`
}

// DaqMeta describes the data-acquisition table backing an experiment.
type DaqMeta struct {
	Path      string `json:"path"`
	TotalRows int    `json:"total_rows"`
	NCols     int    `json:"n_columns"`
}

// Area is the region of interest within the video shape.
type Area struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// NumPixels returns the pixel count of the region.
func (a Area) NumPixels() int { return a.Height * a.Width }

// Thermocouple binds a DAQ column to a spatial anchor. The position is in
// absolute video coordinates and need not lie inside the region of interest.
type Thermocouple struct {
	Column int     `json:"column"`
	Y      float64 `json:"y"`
	X      float64 `json:"x"`
}

// InterpKind selects one of the six interpolation schemes.
type InterpKind string

const (
	InterpHorizontal            InterpKind = "horizontal"
	InterpHorizontalExtrapolate InterpKind = "horizontal_extrapolate"
	InterpVertical              InterpKind = "vertical"
	InterpVerticalExtrapolate   InterpKind = "vertical_extrapolate"
	InterpBilinear              InterpKind = "bilinear"
	InterpBilinearExtrapolate   InterpKind = "bilinear_extrapolate"
)

// InterpMethod is the tagged interpolation selection. Rows and Cols describe
// the thermocouple lattice and are meaningful only for the bilinear kinds.
type InterpMethod struct {
	Kind InterpKind `json:"kind"`
	Rows int        `json:"rows,omitempty"`
	Cols int        `json:"cols,omitempty"`
}

// IsBilinear reports whether the method interprets thermocouples as a lattice.
func (m InterpMethod) IsBilinear() bool {
	return m.Kind == InterpBilinear || m.Kind == InterpBilinearExtrapolate
}

// FilterKind selects the temporal smoothing applied to the green traces.
type FilterKind string

const (
	FilterNone    FilterKind = "none"
	FilterMedian  FilterKind = "median"
	FilterWavelet FilterKind = "wavelet"
)

// FilterMethod is the tagged filter selection. Window is meaningful for
// median, Threshold for wavelet.
type FilterMethod struct {
	Kind      FilterKind `json:"kind"`
	Window    int        `json:"window,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
}

// IterKind selects the Newton iteration variant used by the solver.
type IterKind string

const (
	IterNewtonTangent IterKind = "newton_tangent"
	IterNewtonDown    IterKind = "newton_down"
)

// IterMethod is the tagged solver selection.
type IterMethod struct {
	Kind    IterKind `json:"kind"`
	H0      float64  `json:"h0"`
	MaxIter int      `json:"max_iter"`
}

// PhysicalParams are the scalar constants of the governing equation. All are
// strictly positive once set.
type PhysicalParams struct {
	PeakTemperature          *float64 `json:"peak_temperature,omitempty"`
	SolidThermalConductivity *float64 `json:"solid_thermal_conductivity,omitempty"`
	SolidThermalDiffusivity  *float64 `json:"solid_thermal_diffusivity,omitempty"`
	CharacteristicLength     *float64 `json:"characteristic_length,omitempty"`
	AirThermalConductivity   *float64 `json:"air_thermal_conductivity,omitempty"`
}

// Complete reports whether every physical scalar has been chosen.
func (p PhysicalParams) Complete() bool {
	return p.PeakTemperature != nil &&
		p.SolidThermalConductivity != nil &&
		p.SolidThermalDiffusivity != nil &&
		p.CharacteristicLength != nil &&
		p.AirThermalConductivity != nil
}

// Sanity bounds for the wall peak temperature in degrees Celsius. The TLC
// coating changes color between ambient and the paint's clearing point, so a
// peak outside this range is a data-entry mistake.
const (
	minPeakTemperature = 0.0
	maxPeakTemperature = 200.0
)

// Setting is the user-configured half of the experiment state. It is built up
// over many small edits; nil pointer fields mean "not yet chosen".
type Setting struct {
	Name        string `json:"name"`
	SaveRootDir string `json:"save_root_dir,omitempty"`

	VideoMeta *VideoMeta `json:"video_metadata,omitempty"`
	DaqMeta   *DaqMeta   `json:"daq_metadata,omitempty"`

	StartFrame *int `json:"start_frame,omitempty"`
	StartRow   *int `json:"start_row,omitempty"`

	Area          *Area          `json:"area,omitempty"`
	Thermocouples []Thermocouple `json:"thermocouples,omitempty"`

	// TemperatureRegulators optionally scale each thermocouple trace before
	// interpolation; empty means identity.
	TemperatureRegulators []float64 `json:"temperature_regulators,omitempty"`

	InterpMethod *InterpMethod `json:"interpolation_method,omitempty"`
	FilterMethod *FilterMethod `json:"filter_method,omitempty"`
	IterMethod   *IterMethod   `json:"iteration_method,omitempty"`

	Physical PhysicalParams `json:"physical_parameters"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FrameNum returns the length of the synchronized window, or 0 when the
// synchronization inputs are incomplete.
func (s *Setting) FrameNum() int {
	if s.VideoMeta == nil || s.DaqMeta == nil || s.StartFrame == nil || s.StartRow == nil {
		return 0
	}
	nf := s.VideoMeta.TotalFrames - *s.StartFrame
	nr := s.DaqMeta.TotalRows - *s.StartRow
	n := nf
	if nr < n {
		n = nr
	}
	if n < 0 {
		return 0
	}
	return n
}

// SetName assigns the experiment label.
func (s *Setting) SetName(name string) error {
	if name == "" {
		return Errf(KindInvalidArgument, "name must not be empty")
	}
	s.Name = name
	return nil
}

// SetSaveRootDir assigns the output directory for artifacts.
func (s *Setting) SetSaveRootDir(dir string) error {
	if dir == "" {
		return Errf(KindInvalidArgument, "save root dir must not be empty")
	}
	s.SaveRootDir = dir
	return nil
}

// ApplyVideoMeta installs a freshly probed video metadata block. Assigning a
// video invalidates everything measured against the previous video: the start
// frame, the region of interest, and the thermocouple anchors.
func (s *Setting) ApplyVideoMeta(meta VideoMeta) error {
	if meta.TotalFrames < 1 || meta.Height < 1 || meta.Width < 1 || meta.FrameRate <= 0 {
		return Errf(KindInvalidArgument, "video metadata out of range: %+v", meta)
	}
	s.VideoMeta = &meta
	s.StartFrame = nil
	s.Area = nil
	s.Thermocouples = nil
	s.TemperatureRegulators = nil
	s.CompletedAt = nil
	return nil
}

// ApplyDaqMeta installs a freshly loaded DAQ metadata block. Assigning a DAQ
// file invalidates the start row and the thermocouple column bindings.
func (s *Setting) ApplyDaqMeta(meta DaqMeta) error {
	if meta.TotalRows < 1 || meta.NCols < 1 {
		return Errf(KindInvalidArgument, "daq metadata out of range: %+v", meta)
	}
	s.DaqMeta = &meta
	s.StartRow = nil
	s.Thermocouples = nil
	s.TemperatureRegulators = nil
	s.CompletedAt = nil
	return nil
}

// SetStartFrame sets the video-side synchronization index. When both indices
// are already synchronized, the row index is translated by the same delta so
// the frame/row pairing is preserved.
func (s *Setting) SetStartFrame(frame int) error {
	if s.VideoMeta == nil {
		return Errf(KindInvalidArgument, "video not loaded")
	}
	if frame < 0 || frame >= s.VideoMeta.TotalFrames {
		return Errf(KindInvalidArgument, "start frame %d out of [0, %d)", frame, s.VideoMeta.TotalFrames)
	}
	if s.StartFrame != nil && s.StartRow != nil && s.DaqMeta != nil {
		delta := frame - *s.StartFrame
		row := *s.StartRow + delta
		if row < 0 || row >= s.DaqMeta.TotalRows {
			return Errf(KindInvalidArgument, "translated start row %d out of [0, %d)", row, s.DaqMeta.TotalRows)
		}
		if min(s.VideoMeta.TotalFrames-frame, s.DaqMeta.TotalRows-row) < 1 {
			return Errf(KindInvalidArgument, "synchronized window would be empty")
		}
		s.StartFrame = &frame
		s.StartRow = &row
		s.CompletedAt = nil
		return nil
	}
	s.StartFrame = &frame
	s.CompletedAt = nil
	return nil
}

// SetStartRow sets the DAQ-side synchronization index, translating the frame
// index when the pair is already synchronized.
func (s *Setting) SetStartRow(row int) error {
	if s.DaqMeta == nil {
		return Errf(KindInvalidArgument, "daq not loaded")
	}
	if row < 0 || row >= s.DaqMeta.TotalRows {
		return Errf(KindInvalidArgument, "start row %d out of [0, %d)", row, s.DaqMeta.TotalRows)
	}
	if s.StartFrame != nil && s.StartRow != nil && s.VideoMeta != nil {
		delta := row - *s.StartRow
		frame := *s.StartFrame + delta
		if frame < 0 || frame >= s.VideoMeta.TotalFrames {
			return Errf(KindInvalidArgument, "translated start frame %d out of [0, %d)", frame, s.VideoMeta.TotalFrames)
		}
		if min(s.VideoMeta.TotalFrames-frame, s.DaqMeta.TotalRows-row) < 1 {
			return Errf(KindInvalidArgument, "synchronized window would be empty")
		}
		s.StartRow = &row
		s.StartFrame = &frame
		s.CompletedAt = nil
		return nil
	}
	s.StartRow = &row
	s.CompletedAt = nil
	return nil
}

// SetArea sets the region of interest, bounds-checked against the video shape.
func (s *Setting) SetArea(a Area) error {
	if s.VideoMeta == nil {
		return Errf(KindInvalidArgument, "video not loaded")
	}
	if a.Top < 0 || a.Left < 0 || a.Height < 1 || a.Width < 1 {
		return Errf(KindInvalidArgument, "area %+v out of range", a)
	}
	if a.Top+a.Height > s.VideoMeta.Height || a.Left+a.Width > s.VideoMeta.Width {
		return Errf(KindInvalidArgument, "area %+v exceeds video shape %dx%d",
			a, s.VideoMeta.Height, s.VideoMeta.Width)
	}
	s.Area = &a
	s.CompletedAt = nil
	return nil
}

// SetThermocouples replaces the thermocouple list. Columns must be unique and
// resolvable against the loaded DAQ table; positions are unconstrained.
func (s *Setting) SetThermocouples(tcs []Thermocouple) error {
	if s.DaqMeta == nil {
		return Errf(KindInvalidArgument, "daq not loaded")
	}
	seen := make(map[int]bool, len(tcs))
	for _, tc := range tcs {
		if tc.Column < 0 || tc.Column >= s.DaqMeta.NCols {
			return Errf(KindInvalidArgument, "thermocouple column %d out of [0, %d)", tc.Column, s.DaqMeta.NCols)
		}
		if seen[tc.Column] {
			return Errf(KindInvalidArgument, "duplicate thermocouple column %d", tc.Column)
		}
		seen[tc.Column] = true
	}
	s.Thermocouples = append([]Thermocouple(nil), tcs...)
	if len(s.TemperatureRegulators) != 0 && len(s.TemperatureRegulators) != len(tcs) {
		s.TemperatureRegulators = nil
	}
	s.CompletedAt = nil
	return nil
}

// SetTemperatureRegulators installs the per-thermocouple multiplicative
// correction vector. An empty slice clears it.
func (s *Setting) SetTemperatureRegulators(regs []float64) error {
	if len(regs) == 0 {
		s.TemperatureRegulators = nil
		s.CompletedAt = nil
		return nil
	}
	if len(regs) != len(s.Thermocouples) {
		return Errf(KindInvalidArgument, "%d regulators for %d thermocouples", len(regs), len(s.Thermocouples))
	}
	for i, r := range regs {
		if r <= 0 {
			return Errf(KindInvalidArgument, "regulator[%d] = %v must be positive", i, r)
		}
	}
	s.TemperatureRegulators = append([]float64(nil), regs...)
	s.CompletedAt = nil
	return nil
}

// SetInterpMethod selects the interpolation scheme. The bilinear lattice
// arity is validated here and again at interpolation admit time, because the
// thermocouple list may change after the method is chosen.
func (s *Setting) SetInterpMethod(m InterpMethod) error {
	switch m.Kind {
	case InterpHorizontal, InterpHorizontalExtrapolate, InterpVertical, InterpVerticalExtrapolate:
	case InterpBilinear, InterpBilinearExtrapolate:
		if m.Rows < 2 || m.Cols < 2 {
			return Errf(KindInvalidArgument, "bilinear lattice %dx%d must be at least 2x2", m.Rows, m.Cols)
		}
	default:
		return Errf(KindInvalidArgument, "unknown interpolation kind %q", m.Kind)
	}
	s.InterpMethod = &m
	s.CompletedAt = nil
	return nil
}

// SetFilterMethod selects the temporal filter.
func (s *Setting) SetFilterMethod(m FilterMethod) error {
	switch m.Kind {
	case FilterNone:
	case FilterMedian:
		if m.Window < 1 {
			return Errf(KindInvalidArgument, "median window %d must be at least 1", m.Window)
		}
	case FilterWavelet:
		if m.Threshold <= 0 || m.Threshold >= 1 {
			return Errf(KindInvalidArgument, "wavelet threshold %v must be in (0, 1)", m.Threshold)
		}
	default:
		return Errf(KindInvalidArgument, "unknown filter kind %q", m.Kind)
	}
	s.FilterMethod = &m
	s.CompletedAt = nil
	return nil
}

// SetIterMethod selects the Newton variant.
func (s *Setting) SetIterMethod(m IterMethod) error {
	switch m.Kind {
	case IterNewtonTangent, IterNewtonDown:
	default:
		return Errf(KindInvalidArgument, "unknown iteration kind %q", m.Kind)
	}
	if m.H0 <= 0 {
		return Errf(KindInvalidArgument, "h0 %v must be positive", m.H0)
	}
	if m.MaxIter < 1 {
		return Errf(KindInvalidArgument, "max iterations %d must be at least 1", m.MaxIter)
	}
	s.IterMethod = &m
	s.CompletedAt = nil
	return nil
}

// SetPeakTemperature sets the wall temperature at which the coating peaks.
func (s *Setting) SetPeakTemperature(v float64) error {
	if v <= minPeakTemperature || v >= maxPeakTemperature {
		return Errf(KindInvalidArgument, "peak temperature %v out of (%v, %v)", v, minPeakTemperature, maxPeakTemperature)
	}
	s.Physical.PeakTemperature = &v
	s.CompletedAt = nil
	return nil
}

// SetSolidThermalConductivity sets k_s.
func (s *Setting) SetSolidThermalConductivity(v float64) error {
	if v <= 0 {
		return Errf(KindInvalidArgument, "solid thermal conductivity %v must be positive", v)
	}
	s.Physical.SolidThermalConductivity = &v
	s.CompletedAt = nil
	return nil
}

// SetSolidThermalDiffusivity sets alpha_s.
func (s *Setting) SetSolidThermalDiffusivity(v float64) error {
	if v <= 0 {
		return Errf(KindInvalidArgument, "solid thermal diffusivity %v must be positive", v)
	}
	s.Physical.SolidThermalDiffusivity = &v
	s.CompletedAt = nil
	return nil
}

// SetCharacteristicLength sets L.
func (s *Setting) SetCharacteristicLength(v float64) error {
	if v <= 0 {
		return Errf(KindInvalidArgument, "characteristic length %v must be positive", v)
	}
	s.Physical.CharacteristicLength = &v
	s.CompletedAt = nil
	return nil
}

// SetAirThermalConductivity sets k_a.
func (s *Setting) SetAirThermalConductivity(v float64) error {
	if v <= 0 {
		return Errf(KindInvalidArgument, "air thermal conductivity %v must be positive", v)
	}
	s.Physical.AirThermalConductivity = &v
	s.CompletedAt = nil
	return nil
}
