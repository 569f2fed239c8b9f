package tlc

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVideo is an in-memory VideoSource with a deterministic green pattern:
// green(frame, pixel) peaks at frame = pixel index modulo the window.
type fakeVideo struct {
	meta VideoMeta

	mu         sync.Mutex
	greenCalls int
	// gate, when non-nil, blocks the next GreenROI call until released.
	gate chan struct{}
}

func (v *fakeVideo) Probe(path string) (VideoMeta, error) {
	m := v.meta
	m.Path = path
	return m, nil
}

func (v *fakeVideo) RequestFrame(path string, index int) <-chan FrameResult {
	ch := make(chan FrameResult, 1)
	ch <- FrameResult{Data: []byte{0xff, 0xd8, byte(index)}}
	return ch
}

func (v *fakeVideo) GreenROI(path string, start, count int, area Area, dst []uint8, keep func(int) bool) error {
	v.mu.Lock()
	v.greenCalls++
	gate := v.gate
	v.gate = nil
	v.mu.Unlock()
	if gate != nil {
		<-gate
	}
	npx := area.NumPixels()
	for f := 0; f < count; f++ {
		for p := 0; p < npx; p++ {
			if f == p%count {
				dst[f*npx+p] = 200
			} else {
				dst[f*npx+p] = 10
			}
		}
		if !keep(1) {
			return nil
		}
	}
	return nil
}

func (v *fakeVideo) calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.greenCalls
}

// fakeDaq serves a fixed synthetic table: column 0 is a time axis, further
// columns heat up linearly at different rates.
type fakeDaq struct {
	rows, cols int
}

func (d fakeDaq) Load(path string) ([][]float64, error) {
	table := make([][]float64, d.rows)
	for r := range table {
		row := make([]float64, d.cols)
		row[0] = float64(r) * 0.04
		for c := 1; c < d.cols; c++ {
			row[c] = 20 + float64(r)*0.05*float64(c)
		}
		table[r] = row
	}
	return table, nil
}

// memStore records persisted settings.
type memStore struct {
	mu    sync.Mutex
	saved []Setting
}

func (m *memStore) Save(s *Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *s)
	return nil
}

func startTestCore(t *testing.T, v *fakeVideo) (*Core, *memStore) {
	t.Helper()
	store := &memStore{}
	core := NewCore(Config{
		Video:      v,
		Daq:        fakeDaq{rows: 200, cols: 4},
		Store:      store,
		CPUWorkers: 2,
		IOWorkers:  2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go core.Run(ctx)
	return core, store
}

// configureFull drives a Setting to fully-specified through the public
// request surface.
func configureFull(t *testing.T, core *Core) {
	t.Helper()
	require.NoError(t, core.SetName("exp-state"))
	require.NoError(t, core.SetVideoPath("/data/run.avi"))
	require.NoError(t, core.SetDaqPath("/data/run.lvm"))

	// The metadata probes are asynchronous.
	require.Eventually(t, func() bool {
		s := core.GetSetting()
		return s.VideoMeta != nil && s.DaqMeta != nil
	}, 2*time.Second, 5*time.Millisecond, "metadata probes should land")

	require.NoError(t, core.SetStartFrame(2))
	require.NoError(t, core.SetStartRow(10))
	require.NoError(t, core.SetArea(Area{Top: 0, Left: 0, Height: 2, Width: 3}))
	require.NoError(t, core.SetThermocouples([]Thermocouple{
		{Column: 1, Y: 0, X: 0},
		{Column: 2, Y: 0, X: 2},
	}))
	require.NoError(t, core.SetInterpMethod(InterpMethod{Kind: InterpHorizontal}))
	require.NoError(t, core.SetFilterMethod(FilterMethod{Kind: FilterNone}))
	require.NoError(t, core.SetIterMethod(IterMethod{Kind: IterNewtonTangent, H0: 50, MaxIter: 30}))
	require.NoError(t, core.SetPeakTemperature(25))
	require.NoError(t, core.SetSolidThermalConductivity(0.19))
	require.NoError(t, core.SetSolidThermalDiffusivity(1.1e-7))
	require.NoError(t, core.SetCharacteristicLength(0.015))
	require.NoError(t, core.SetAirThermalConductivity(0.0266))
}

func testMeta() VideoMeta {
	return VideoMeta{TotalFrames: 40, FrameRate: 25, Height: 48, Width: 64}
}

func TestPipelineRunsToCompletion(t *testing.T) {
	v := &fakeVideo{meta: testMeta()}
	core, store := startTestCore(t, v)
	configureFull(t, core)

	require.Eventually(t, core.Completed, 5*time.Second, 10*time.Millisecond, "solve should complete")

	nu, err := core.GetNu2()
	require.NoError(t, err)
	assert.Equal(t, 2, nu.Height)
	assert.Equal(t, 3, nu.Width)
	assert.Len(t, nu.Nu, 6)

	s := core.GetSetting()
	require.NotNil(t, s.CompletedAt)

	// Completion persists the setting.
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.saved) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	run := func() []float64 {
		v := &fakeVideo{meta: testMeta()}
		core, _ := startTestCore(t, v)
		configureFull(t, core)
		require.Eventually(t, core.Completed, 5*time.Second, 10*time.Millisecond)
		nu, err := core.GetNu2()
		require.NoError(t, err)
		return nu.Nu
	}
	first := run()
	second := run()
	require.Len(t, second, len(first))
	for i := range first {
		// Bit-level comparison so NaN pixels compare equal too.
		assert.Equalf(t, math.Float64bits(first[i]), math.Float64bits(second[i]), "pixel %d", i)
	}
}

func TestInvalidationCascade(t *testing.T) {
	v := &fakeVideo{meta: testMeta()}
	core, _ := startTestCore(t, v)
	configureFull(t, core)
	require.Eventually(t, core.Completed, 5*time.Second, 10*time.Millisecond)

	// Changing the filter clears Filtered, PeakIdx and Nu2 but keeps Green2.
	require.NoError(t, core.SetFilterMethod(FilterMethod{Kind: FilterMedian, Window: 3}))
	var (
		green []uint8
		err   error
	)
	green, err = core.GetGreenHistory(0, 0)
	require.NoError(t, err, "green2 survives a filter change")
	require.NotEmpty(t, green)

	// The pipeline re-converges for the new filter.
	require.Eventually(t, core.Completed, 5*time.Second, 10*time.Millisecond)

	// Changing the video path clears everything downstream.
	require.NoError(t, core.SetVideoPath("/data/other.avi"))
	_, err = core.GetGreenHistory(0, 0)
	assert.ErrorIs(t, err, &Error{Kind: KindNotReady})
	_, err = core.GetNu2()
	assert.ErrorIs(t, err, &Error{Kind: KindNotReady})
	s := core.GetSetting()
	assert.Nil(t, s.CompletedAt)
	assert.Nil(t, s.Area, "area is measured against the old video")
}

func TestStaleOutcomeRejected(t *testing.T) {
	v := &fakeVideo{meta: testMeta()}
	gate := make(chan struct{})
	v.gate = gate

	core, _ := startTestCore(t, v)
	configureFull(t, core)

	// The first green2 build is now blocked inside the fake decoder.
	require.Eventually(t, func() bool { return v.calls() >= 1 }, 2*time.Second, 5*time.Millisecond)

	// Change the area while the build is in flight: its outcome must be
	// discarded and a fresh build dispatched.
	require.NoError(t, core.SetArea(Area{Top: 1, Left: 1, Height: 3, Width: 2}))
	close(gate)

	require.Eventually(t, core.Completed, 5*time.Second, 10*time.Millisecond)
	nu, err := core.GetNu2()
	require.NoError(t, err)
	assert.Equal(t, 3, nu.Height, "result reflects the second area")
	assert.Equal(t, 2, nu.Width)
	assert.GreaterOrEqual(t, v.calls(), 2, "a fresh build ran after the edit")
}

func TestQueriesNotReady(t *testing.T) {
	v := &fakeVideo{meta: testMeta()}
	core, _ := startTestCore(t, v)

	_, err := core.GetNu2()
	assert.ErrorIs(t, err, &Error{Kind: KindNotReady})
	_, err = core.GetDaqRow(0)
	assert.ErrorIs(t, err, &Error{Kind: KindNotReady})
	_, _, _, err = core.GetInterpFrame(0)
	assert.ErrorIs(t, err, &Error{Kind: KindNotReady})
	_, err = core.GetFrame(context.Background(), 0)
	assert.ErrorIs(t, err, &Error{Kind: KindNotReady})
}

func TestGetFrameServedByVideoSource(t *testing.T) {
	v := &fakeVideo{meta: testMeta()}
	core, _ := startTestCore(t, v)
	require.NoError(t, core.SetVideoPath("/data/run.avi"))
	require.Eventually(t, func() bool { return core.GetSetting().VideoMeta != nil }, 2*time.Second, 5*time.Millisecond)

	data, err := core.GetFrame(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 7}, data)

	_, err = core.GetFrame(context.Background(), 4000)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidArgument})
}

func TestRejectedWriteLeavesStateUnchanged(t *testing.T) {
	v := &fakeVideo{meta: testMeta()}
	core, _ := startTestCore(t, v)
	configureFull(t, core)

	before := core.GetSetting()
	err := core.SetArea(Area{Top: 0, Left: 0, Height: 1000, Width: 1000})
	require.Error(t, err)
	after := core.GetSetting()
	assert.Equal(t, *before.Area, *after.Area)
}

func TestGetPointNuAndInterpFrame(t *testing.T) {
	v := &fakeVideo{meta: testMeta()}
	core, _ := startTestCore(t, v)
	configureFull(t, core)
	require.Eventually(t, core.Completed, 5*time.Second, 10*time.Millisecond)

	_, err := core.GetPointNu(0, 0)
	require.NoError(t, err)
	_, err = core.GetPointNu(5, 5)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidArgument})

	vals, h, w, err := core.GetInterpFrame(0)
	require.NoError(t, err)
	assert.Equal(t, 2, h)
	assert.Equal(t, 3, w)
	assert.Len(t, vals, 6)

	row, err := core.GetDaqRow(3)
	require.NoError(t, err)
	assert.Len(t, row, 4)
}
