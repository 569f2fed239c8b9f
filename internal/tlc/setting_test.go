package tlc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSetting(t *testing.T) *Setting {
	t.Helper()
	s := &Setting{Name: "exp-001"}
	require.NoError(t, s.ApplyVideoMeta(VideoMeta{
		Path: "/data/run.avi", TotalFrames: 2000, FrameRate: 25, Height: 480, Width: 640,
	}))
	require.NoError(t, s.ApplyDaqMeta(DaqMeta{
		Path: "/data/run.lvm", TotalRows: 2500, NCols: 8,
	}))
	return s
}

func TestApplyVideoMetaResetsDependents(t *testing.T) {
	s := newTestSetting(t)
	require.NoError(t, s.SetStartFrame(10))
	require.NoError(t, s.SetArea(Area{Top: 0, Left: 0, Height: 100, Width: 100}))
	require.NoError(t, s.SetThermocouples([]Thermocouple{{Column: 1, Y: 0, X: 0}, {Column: 2, Y: 0, X: 99}}))

	require.NoError(t, s.ApplyVideoMeta(VideoMeta{
		Path: "/data/other.avi", TotalFrames: 100, FrameRate: 30, Height: 240, Width: 320,
	}))
	assert.Nil(t, s.StartFrame)
	assert.Nil(t, s.Area)
	assert.Nil(t, s.Thermocouples)
	// The DAQ side is untouched.
	assert.NotNil(t, s.DaqMeta)
}

func TestApplyDaqMetaResetsDependents(t *testing.T) {
	s := newTestSetting(t)
	require.NoError(t, s.SetStartRow(20))
	require.NoError(t, s.SetThermocouples([]Thermocouple{{Column: 1}, {Column: 2}}))

	require.NoError(t, s.ApplyDaqMeta(DaqMeta{Path: "/data/other.lvm", TotalRows: 100, NCols: 4}))
	assert.Nil(t, s.StartRow)
	assert.Nil(t, s.Thermocouples)
	assert.NotNil(t, s.VideoMeta)
}

func TestSynchronizationWindow(t *testing.T) {
	s := newTestSetting(t)

	// First-time sets assign directly.
	require.NoError(t, s.SetStartFrame(100))
	require.NoError(t, s.SetStartRow(250))
	assert.Equal(t, 100, *s.StartFrame)
	assert.Equal(t, 250, *s.StartRow)
	assert.Equal(t, 1900, s.FrameNum()) // min(2000-100, 2500-250)

	// Once synchronized, moving one side translates the other.
	require.NoError(t, s.SetStartFrame(150))
	assert.Equal(t, 150, *s.StartFrame)
	assert.Equal(t, 300, *s.StartRow)

	require.NoError(t, s.SetStartRow(200))
	assert.Equal(t, 50, *s.StartFrame)
	assert.Equal(t, 200, *s.StartRow)
}

func TestSetStartFrameRejectsOutOfRange(t *testing.T) {
	s := newTestSetting(t)
	assert.Error(t, s.SetStartFrame(-1))
	assert.Error(t, s.SetStartFrame(2000))

	// Translation that would push the row negative is rejected and leaves
	// both indices unchanged.
	require.NoError(t, s.SetStartFrame(100))
	require.NoError(t, s.SetStartRow(5))
	err := s.SetStartFrame(50) // row would become -45
	assert.Error(t, err)
	assert.Equal(t, 100, *s.StartFrame)
	assert.Equal(t, 5, *s.StartRow)
}

func TestSetAreaBounds(t *testing.T) {
	s := newTestSetting(t)
	assert.NoError(t, s.SetArea(Area{Top: 380, Left: 540, Height: 100, Width: 100}))
	assert.Error(t, s.SetArea(Area{Top: 381, Left: 0, Height: 100, Width: 100}))
	assert.Error(t, s.SetArea(Area{Top: 0, Left: 541, Height: 100, Width: 100}))
	assert.Error(t, s.SetArea(Area{Top: 0, Left: 0, Height: 0, Width: 10}))
	assert.Error(t, s.SetArea(Area{Top: -1, Left: 0, Height: 10, Width: 10}))
}

func TestSetThermocouplesValidation(t *testing.T) {
	s := newTestSetting(t)
	assert.Error(t, s.SetThermocouples([]Thermocouple{{Column: 8}}), "column beyond table width")
	assert.Error(t, s.SetThermocouples([]Thermocouple{{Column: 1}, {Column: 1}}), "duplicate column")

	// Positions outside the region are fine.
	assert.NoError(t, s.SetThermocouples([]Thermocouple{
		{Column: 1, Y: -50, X: -10},
		{Column: 2, Y: 900, X: 900},
	}))
}

func TestRegulatorsMustMatchThermocouples(t *testing.T) {
	s := newTestSetting(t)
	require.NoError(t, s.SetThermocouples([]Thermocouple{{Column: 1}, {Column: 2}}))
	assert.Error(t, s.SetTemperatureRegulators([]float64{1.0}))
	assert.Error(t, s.SetTemperatureRegulators([]float64{1.0, -0.5}))
	assert.NoError(t, s.SetTemperatureRegulators([]float64{1.0, 1.02}))

	// Replacing the thermocouples with a different count drops the vector.
	require.NoError(t, s.SetThermocouples([]Thermocouple{{Column: 1}, {Column: 2}, {Column: 3}}))
	assert.Nil(t, s.TemperatureRegulators)
}

func TestMethodValidation(t *testing.T) {
	s := newTestSetting(t)

	assert.Error(t, s.SetFilterMethod(FilterMethod{Kind: FilterMedian, Window: 0}))
	assert.Error(t, s.SetFilterMethod(FilterMethod{Kind: FilterWavelet, Threshold: 1.5}))
	assert.NoError(t, s.SetFilterMethod(FilterMethod{Kind: FilterMedian, Window: 5}))

	assert.Error(t, s.SetInterpMethod(InterpMethod{Kind: InterpBilinear, Rows: 1, Cols: 4}))
	assert.NoError(t, s.SetInterpMethod(InterpMethod{Kind: InterpBilinear, Rows: 2, Cols: 2}))
	assert.Error(t, s.SetInterpMethod(InterpMethod{Kind: "diagonal"}))

	assert.Error(t, s.SetIterMethod(IterMethod{Kind: IterNewtonTangent, H0: 0, MaxIter: 10}))
	assert.Error(t, s.SetIterMethod(IterMethod{Kind: IterNewtonTangent, H0: 50, MaxIter: 0}))
	assert.NoError(t, s.SetIterMethod(IterMethod{Kind: IterNewtonDown, H0: 50, MaxIter: 10}))
}

func TestPhysicalValidation(t *testing.T) {
	s := newTestSetting(t)
	assert.Error(t, s.SetPeakTemperature(-3))
	assert.Error(t, s.SetPeakTemperature(250))
	assert.NoError(t, s.SetPeakTemperature(35.2))
	assert.Error(t, s.SetSolidThermalConductivity(0))
	assert.Error(t, s.SetAirThermalConductivity(-1))
	assert.NoError(t, s.SetSolidThermalConductivity(0.19))
	assert.NoError(t, s.SetSolidThermalDiffusivity(1.1e-7))
	assert.NoError(t, s.SetCharacteristicLength(0.015))
	assert.NoError(t, s.SetAirThermalConductivity(0.0266))
	assert.True(t, s.Physical.Complete())
}

func TestCompletedAtClearedByEdits(t *testing.T) {
	s := newTestSetting(t)
	now := time.Now()
	s.CompletedAt = &now
	require.NoError(t, s.SetPeakTemperature(40))
	assert.Nil(t, s.CompletedAt)
}
