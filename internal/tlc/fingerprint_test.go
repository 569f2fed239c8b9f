package tlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullSetting builds a Setting with every field populated.
func fullSetting(t *testing.T) *Setting {
	t.Helper()
	s := newTestSetting(t)
	require.NoError(t, s.SetStartFrame(100))
	require.NoError(t, s.SetStartRow(250))
	require.NoError(t, s.SetArea(Area{Top: 10, Left: 20, Height: 50, Width: 80}))
	require.NoError(t, s.SetThermocouples([]Thermocouple{
		{Column: 1, Y: 30, X: 20},
		{Column: 2, Y: 30, X: 99},
	}))
	require.NoError(t, s.SetInterpMethod(InterpMethod{Kind: InterpHorizontal}))
	require.NoError(t, s.SetFilterMethod(FilterMethod{Kind: FilterMedian, Window: 5}))
	require.NoError(t, s.SetIterMethod(IterMethod{Kind: IterNewtonTangent, H0: 50, MaxIter: 20}))
	require.NoError(t, s.SetPeakTemperature(35.5))
	require.NoError(t, s.SetSolidThermalConductivity(0.19))
	require.NoError(t, s.SetSolidThermalDiffusivity(1.1e-7))
	require.NoError(t, s.SetCharacteristicLength(0.015))
	require.NoError(t, s.SetAirThermalConductivity(0.0266))
	return s
}

func TestFingerprintZeroWhenIncomplete(t *testing.T) {
	s := newTestSetting(t)
	assert.Zero(t, s.Green2Fingerprint())
	assert.Zero(t, s.FilterFingerprint())
	assert.Zero(t, s.InterpFingerprint())
	assert.Zero(t, s.SolveFingerprint())

	full := fullSetting(t)
	assert.NotZero(t, full.Green2Fingerprint())
	assert.NotZero(t, full.FilterFingerprint())
	assert.NotZero(t, full.PeakFingerprint())
	assert.NotZero(t, full.InterpFingerprint())
	assert.NotZero(t, full.SolveFingerprint())
}

func TestFingerprintSubsetSensitivity(t *testing.T) {
	s := fullSetting(t)
	green := s.Green2Fingerprint()
	filter := s.FilterFingerprint()
	interp := s.InterpFingerprint()
	solve := s.SolveFingerprint()

	// The filter method touches Filter and Solve, not Green2 or Interp.
	require.NoError(t, s.SetFilterMethod(FilterMethod{Kind: FilterWavelet, Threshold: 0.5}))
	assert.Equal(t, green, s.Green2Fingerprint())
	assert.NotEqual(t, filter, s.FilterFingerprint())
	assert.Equal(t, interp, s.InterpFingerprint())
	assert.NotEqual(t, solve, s.SolveFingerprint())

	// The area feeds both branches.
	s2 := fullSetting(t)
	require.NoError(t, s2.SetArea(Area{Top: 10, Left: 20, Height: 50, Width: 81}))
	assert.NotEqual(t, green, s2.Green2Fingerprint())
	assert.NotEqual(t, interp, s2.InterpFingerprint())

	// Physical scalars touch only the solve.
	s3 := fullSetting(t)
	require.NoError(t, s3.SetPeakTemperature(36.0))
	assert.Equal(t, green, s3.Green2Fingerprint())
	assert.Equal(t, interp, s3.InterpFingerprint())
	assert.NotEqual(t, solve, s3.SolveFingerprint())
}

func TestFingerprintDeterministic(t *testing.T) {
	a := fullSetting(t)
	b := fullSetting(t)
	assert.Equal(t, a.Green2Fingerprint(), b.Green2Fingerprint())
	assert.Equal(t, a.SolveFingerprint(), b.SolveFingerprint())
}

func TestInterpFingerprintNeedsTwoThermocouples(t *testing.T) {
	s := fullSetting(t)
	require.NoError(t, s.SetThermocouples([]Thermocouple{{Column: 1}}))
	assert.Zero(t, s.InterpFingerprint())
}
