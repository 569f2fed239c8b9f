package tlc

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/nusselt.report/internal/monitoring"
)

// FrameResult is the reply to an asynchronous frame request. A dropped reply
// channel (closed without a value) means the request was evicted from the
// seek ring.
type FrameResult struct {
	Data []byte
	Err  error
}

// VideoSource is the video collaborator: metadata probing, the seek-ring
// thumbnail path, and the bulk green pipeline.
type VideoSource interface {
	GreenSource
	Probe(path string) (VideoMeta, error)
	RequestFrame(path string, index int) <-chan FrameResult
}

// DaqSource loads a data-acquisition file into a row-major table.
type DaqSource interface {
	Load(path string) ([][]float64, error)
}

// SettingStore persists the named Setting. Persistence failures are logged,
// never fatal to the loop.
type SettingStore interface {
	Save(s *Setting) error
}

// ArtifactBundle collects the products of a completed solve for the artifact
// writer. All slots are shared immutable references; the bundle is only built
// when the solve and every upstream stage are current.
type ArtifactBundle struct {
	Setting  *Setting
	Green2   *Green2
	Filtered *Filtered
	Peak     *PeakIdx
	Nu       *NuResult
}

// ArtifactWriter writes the on-disk products of a completed solve under the
// Setting's save root.
type ArtifactWriter interface {
	WriteArtifacts(b *ArtifactBundle) error
}

// NuPlotter renders the palette-mapped view of a Nusselt field. Runs on the
// loop thread, so implementations must be cheap.
type NuPlotter interface {
	RenderPNG(nu *NuResult, vmin, vmax float64) ([]byte, error)
}

// outcome is a finished stage computation arriving back at the loop.
type outcome struct {
	stage Stage
	fp    Fingerprint
	gen   uint64
	id    uuid.UUID
	value interface{}
	err   error
}

// probeOutcome carries the products of the two metadata root stages.
type probeOutcome struct {
	video *VideoMeta
	daq   *DaqMeta
	table [][]float64
}

// stageError remembers a failed run together with the fingerprint it failed
// for, so the stage stays blocked until the user edits something.
type stageError struct {
	fp  Fingerprint
	err error
}

// workerPool bounds concurrent stage executions.
type workerPool struct {
	sem chan struct{}
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	return &workerPool{sem: make(chan struct{}, size)}
}

func (p *workerPool) Go(fn func()) {
	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Config wires the collaborators into a Core.
type Config struct {
	Video     VideoSource
	Daq       DaqSource
	Store     SettingStore
	Artifacts ArtifactWriter
	Plotter   NuPlotter
	// CPUWorkers bounds compute-stage concurrency; defaults to NumCPU.
	CPUWorkers int
	// IOWorkers bounds decode/load concurrency; defaults to 4.
	IOWorkers int
}

// Core owns the full experiment state: the Setting, every derived Data slot,
// the task registry and the per-stage progress monitors. All mutation happens
// on the single loop goroutine; exported methods marshal onto it.
type Core struct {
	video     VideoSource
	daq       DaqSource
	store     SettingStore
	artifacts ArtifactWriter
	plotter   NuPlotter

	cpuPool *workerPool
	ioPool  *workerPool

	reqCh chan func()
	outCh chan outcome

	// Loop-owned state below; untouched outside the loop goroutine.
	setting      Setting
	data         Data
	reg          TaskRegistry
	prog         [numStages]*Progress
	lastErr      [numStages]*stageError
	pendingVideo string
	pendingDaq   string
	daqTable     [][]float64
	vmin, vmax   float64
}

// NewCore builds a Core from its collaborators. Run must be called before
// any request is served.
func NewCore(cfg Config) *Core {
	cpu := cfg.CPUWorkers
	if cpu < 1 {
		cpu = runtime.NumCPU()
	}
	io := cfg.IOWorkers
	if io < 1 {
		io = 4
	}
	c := &Core{
		video:     cfg.Video,
		daq:       cfg.Daq,
		store:     cfg.Store,
		artifacts: cfg.Artifacts,
		plotter:   cfg.Plotter,
		cpuPool:   newWorkerPool(cpu),
		ioPool:    newWorkerPool(io),
		reqCh:     make(chan func(), 64),
		outCh:     make(chan outcome, numStages),
	}
	for i := range c.prog {
		c.prog[i] = &Progress{}
	}
	return c
}

// Run drives the reconcile loop until ctx is canceled. Pending outcomes are
// always drained before the next request so a write never observes a state
// older than a computation that finished before it.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case o := <-c.outCh:
			c.applyOutcome(o)
			c.reconcile()
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case o := <-c.outCh:
			c.applyOutcome(o)
			c.reconcile()
		case fn := <-c.reqCh:
			fn()
			c.reconcile()
		}
	}
}

// do runs fn on the loop goroutine and waits for it.
func (c *Core) do(fn func()) {
	done := make(chan struct{})
	c.reqCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// write runs a mutating closure on the loop; on success stale derived data is
// invalidated, in-flight work for changed fingerprints is canceled, and the
// ready set is re-dispatched by the loop's reconcile.
func (c *Core) write(fn func() error) error {
	var err error
	c.do(func() {
		err = fn()
		if err != nil {
			return
		}
		// A user edit is also the retry trigger for failed stages.
		for i := range c.lastErr {
			c.lastErr[i] = nil
		}
		c.invalidateStale()
	})
	return err
}

// invalidateStale drops every Data slot whose fingerprint no longer matches
// the Setting and cancels in-flight tasks computing for dead fingerprints.
func (c *Core) invalidateStale() {
	cleared := c.data.Invalidate(&c.setting)
	for _, stage := range cleared {
		monitoring.Debugf("invalidated %s", stage)
	}
	for _, stage := range Stages() {
		if c.inFlightStale(stage, c.currentFingerprint(stage)) {
			c.reg.Invalidate(stage)
			c.prog[stage].Cancel()
		}
	}
}

// inFlightStale reports whether the stage has an in-flight task whose
// fingerprint differs from fp.
func (c *Core) inFlightStale(stage Stage, fp Fingerprint) bool {
	e := &c.reg.entries[stage]
	return e.inflight && e.fp != fp
}

// currentFingerprint mirrors dagView fingerprints for the root stages.
func (c *Core) currentFingerprint(stage Stage) Fingerprint {
	switch stage {
	case StageVideoMeta:
		if c.pendingVideo != "" {
			return pathFingerprint(c.pendingVideo)
		}
		return 0
	case StageDaqMeta:
		if c.pendingDaq != "" {
			return pathFingerprint(c.pendingDaq)
		}
		return 0
	default:
		return c.setting.StageFingerprint(stage)
	}
}

// reconcile evaluates the stage DAG against the current state and dispatches
// every task that is both possible and not already in flight.
func (c *Core) reconcile() {
	view := dagView{
		setting:      &c.setting,
		data:         &c.data,
		pendingVideo: c.pendingVideo,
		pendingDaq:   c.pendingDaq,
		daqLoaded:    c.daqTable != nil,
	}
	states := view.Evaluate(&c.reg)
	for _, stage := range ReadyTasks(states) {
		fp := states[stage].FP
		if le := c.lastErr[stage]; le != nil && le.fp == fp {
			continue
		}
		c.dispatch(stage, fp)
	}
}

// dispatch snapshots the stage's inputs and hands a worker to the right pool.
// The worker carries the registry generation; its result is validated against
// both generation and fingerprint on return.
func (c *Core) dispatch(stage Stage, fp Fingerprint) {
	gen := c.reg.Dispatch(stage, fp)
	id := uuid.New()
	prog := c.prog[stage]
	monitoring.Debugf("dispatch %s fp=%016x gen=%d task=%s", stage, uint64(fp), gen, id)

	send := func(value interface{}, err error) {
		c.outCh <- outcome{stage: stage, fp: fp, gen: gen, id: id, value: value, err: err}
	}

	switch stage {
	case StageVideoMeta:
		path := c.pendingVideo
		c.ioPool.Go(func() {
			meta, err := c.video.Probe(path)
			send(probeOutcome{video: &meta}, err)
		})

	case StageDaqMeta:
		path := c.pendingDaq
		c.ioPool.Go(func() {
			table, err := c.daq.Load(path)
			if err != nil {
				send(nil, err)
				return
			}
			ncols := 0
			if len(table) > 0 {
				ncols = len(table[0])
			}
			meta := DaqMeta{Path: path, TotalRows: len(table), NCols: ncols}
			send(probeOutcome{daq: &meta, table: table}, nil)
		})

	case StageGreen2:
		in := Green2Input{
			VideoPath:  c.setting.VideoMeta.Path,
			StartFrame: *c.setting.StartFrame,
			FrameNum:   c.setting.FrameNum(),
			Area:       *c.setting.Area,
		}
		c.ioPool.Go(func() {
			g, err := BuildGreen2(c.video, in, fp, prog)
			send(g, err)
		})

	case StageFilter:
		g := c.data.Green2
		m := *c.setting.FilterMethod
		c.cpuPool.Go(func() {
			f, err := ApplyFilter(g, m, fp, prog)
			send(f, err)
		})

	case StagePeak:
		f := c.data.Filtered
		c.cpuPool.Go(func() {
			p, err := DetectPeaks(f, fp, prog)
			send(p, err)
		})

	case StageInterp:
		in := InterpInput{
			Daq:        c.daqTable,
			StartRow:   *c.setting.StartRow,
			FrameNum:   c.setting.FrameNum(),
			Area:       *c.setting.Area,
			Tcs:        append([]Thermocouple(nil), c.setting.Thermocouples...),
			Regulators: append([]float64(nil), c.setting.TemperatureRegulators...),
			Method:     *c.setting.InterpMethod,
		}
		c.cpuPool.Go(func() {
			r, err := Interpolate(in, fp, prog)
			send(r, err)
		})

	case StageSolve:
		in := SolveInput{
			Peak:                     c.data.PeakIdx,
			Interp:                   c.data.Interp,
			Method:                   *c.setting.IterMethod,
			FrameRate:                c.setting.VideoMeta.FrameRate,
			PeakTemperature:          *c.setting.Physical.PeakTemperature,
			SolidThermalConductivity: *c.setting.Physical.SolidThermalConductivity,
			SolidThermalDiffusivity:  *c.setting.Physical.SolidThermalDiffusivity,
			CharacteristicLength:     *c.setting.Physical.CharacteristicLength,
			AirThermalConductivity:   *c.setting.Physical.AirThermalConductivity,
		}
		c.cpuPool.Go(func() {
			nu, err := Solve(in, fp, prog)
			send(nu, err)
		})
	}
}

// applyOutcome validates a returned result against the current state and
// integrates or discards it.
func (c *Core) applyOutcome(o outcome) {
	if !c.reg.Complete(o.stage, o.gen) {
		monitoring.Debugf("discard %s task=%s: stale generation", o.stage, o.id)
		return
	}
	if o.err != nil {
		if KindOf(o.err) == KindCanceled {
			monitoring.Debugf("discard %s task=%s: canceled", o.stage, o.id)
			return
		}
		monitoring.Logf("stage %s failed: %v", o.stage, o.err)
		c.lastErr[o.stage] = &stageError{fp: o.fp, err: o.err}
		return
	}
	if o.fp != c.currentFingerprint(o.stage) {
		monitoring.Debugf("discard %s task=%s: fingerprint mismatch", o.stage, o.id)
		return
	}

	switch o.stage {
	case StageVideoMeta:
		po := o.value.(probeOutcome)
		if err := c.setting.ApplyVideoMeta(*po.video); err != nil {
			c.lastErr[o.stage] = &stageError{fp: o.fp, err: err}
			return
		}
		c.pendingVideo = ""
	case StageDaqMeta:
		po := o.value.(probeOutcome)
		// A reload of an unchanged table (opening a saved experiment) keeps
		// the start row and thermocouples valid; only a genuinely new table
		// resets them.
		if c.setting.DaqMeta == nil || *c.setting.DaqMeta != *po.daq {
			if err := c.setting.ApplyDaqMeta(*po.daq); err != nil {
				c.lastErr[o.stage] = &stageError{fp: o.fp, err: err}
				return
			}
		}
		c.daqTable = po.table
		c.pendingDaq = ""
	case StageGreen2:
		c.data.Green2 = o.value.(*Green2)
	case StageFilter:
		c.data.Filtered = o.value.(*Filtered)
	case StagePeak:
		c.data.PeakIdx = o.value.(*PeakIdx)
	case StageInterp:
		c.data.Interp = o.value.(*InterpResult)
	case StageSolve:
		c.data.Nu = o.value.(*NuResult)
		c.onSolveComplete()
	}
	c.invalidateStale()
}

// onSolveComplete stamps the completion marker, persists the Setting and
// fires the artifact writers.
func (c *Core) onSolveComplete() {
	now := time.Now()
	c.setting.CompletedAt = &now
	monitoring.Logf("solve complete: %s mean Nu %.2f", c.setting.Name, c.data.Nu.Mean)

	snapshot := c.snapshotSetting()
	bundle := &ArtifactBundle{
		Setting:  &snapshot,
		Green2:   c.data.Green2,
		Filtered: c.data.Filtered,
		Peak:     c.data.PeakIdx,
		Nu:       c.data.Nu,
	}
	store, artifacts := c.store, c.artifacts
	c.ioPool.Go(func() {
		if store != nil {
			if err := store.Save(&snapshot); err != nil {
				monitoring.Logf("persist setting %q: %v", snapshot.Name, err)
			}
		}
		if artifacts != nil && snapshot.SaveRootDir != "" {
			if err := artifacts.WriteArtifacts(bundle); err != nil {
				monitoring.Logf("write artifacts for %q: %v", snapshot.Name, err)
			}
		}
	})
}

// snapshotSetting deep-copies the Setting for use off the loop.
func (c *Core) snapshotSetting() Setting {
	s := c.setting
	s.Thermocouples = append([]Thermocouple(nil), c.setting.Thermocouples...)
	s.TemperatureRegulators = append([]float64(nil), c.setting.TemperatureRegulators...)
	if c.setting.VideoMeta != nil {
		v := *c.setting.VideoMeta
		s.VideoMeta = &v
	}
	if c.setting.DaqMeta != nil {
		d := *c.setting.DaqMeta
		s.DaqMeta = &d
	}
	cloneInt := func(p *int) *int {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	s.StartFrame = cloneInt(c.setting.StartFrame)
	s.StartRow = cloneInt(c.setting.StartRow)
	if c.setting.Area != nil {
		a := *c.setting.Area
		s.Area = &a
	}
	if c.setting.InterpMethod != nil {
		m := *c.setting.InterpMethod
		s.InterpMethod = &m
	}
	if c.setting.FilterMethod != nil {
		m := *c.setting.FilterMethod
		s.FilterMethod = &m
	}
	if c.setting.IterMethod != nil {
		m := *c.setting.IterMethod
		s.IterMethod = &m
	}
	cloneF := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	s.Physical.PeakTemperature = cloneF(c.setting.Physical.PeakTemperature)
	s.Physical.SolidThermalConductivity = cloneF(c.setting.Physical.SolidThermalConductivity)
	s.Physical.SolidThermalDiffusivity = cloneF(c.setting.Physical.SolidThermalDiffusivity)
	s.Physical.CharacteristicLength = cloneF(c.setting.Physical.CharacteristicLength)
	s.Physical.AirThermalConductivity = cloneF(c.setting.Physical.AirThermalConductivity)
	if c.setting.CompletedAt != nil {
		t := *c.setting.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

// ----- write requests -----

// SetName labels the active experiment.
func (c *Core) SetName(name string) error {
	return c.write(func() error { return c.setting.SetName(name) })
}

// SetSaveRootDir sets the artifact output directory.
func (c *Core) SetSaveRootDir(dir string) error {
	return c.write(func() error { return c.setting.SetSaveRootDir(dir) })
}

// SetVideoPath assigns a new video file. The metadata probe runs
// asynchronously; until it lands the video branch of the pipeline is blocked.
func (c *Core) SetVideoPath(path string) error {
	return c.write(func() error {
		if path == "" {
			return Errf(KindInvalidArgument, "video path must not be empty")
		}
		c.pendingVideo = path
		c.setting.VideoMeta = nil
		c.setting.StartFrame = nil
		c.setting.Area = nil
		c.setting.Thermocouples = nil
		c.setting.TemperatureRegulators = nil
		c.setting.CompletedAt = nil
		return nil
	})
}

// SetDaqPath assigns a new data-acquisition file, loaded asynchronously.
func (c *Core) SetDaqPath(path string) error {
	return c.write(func() error {
		if path == "" {
			return Errf(KindInvalidArgument, "daq path must not be empty")
		}
		c.pendingDaq = path
		c.setting.DaqMeta = nil
		c.daqTable = nil
		c.setting.StartRow = nil
		c.setting.Thermocouples = nil
		c.setting.TemperatureRegulators = nil
		c.setting.CompletedAt = nil
		return nil
	})
}

// SetStartFrame sets the video synchronization index.
func (c *Core) SetStartFrame(frame int) error {
	return c.write(func() error { return c.setting.SetStartFrame(frame) })
}

// SetStartRow sets the DAQ synchronization index.
func (c *Core) SetStartRow(row int) error {
	return c.write(func() error { return c.setting.SetStartRow(row) })
}

// SetArea sets the region of interest.
func (c *Core) SetArea(a Area) error {
	return c.write(func() error { return c.setting.SetArea(a) })
}

// SetThermocouples replaces the thermocouple list.
func (c *Core) SetThermocouples(tcs []Thermocouple) error {
	return c.write(func() error { return c.setting.SetThermocouples(tcs) })
}

// SetTemperatureRegulators installs per-thermocouple trace corrections.
func (c *Core) SetTemperatureRegulators(regs []float64) error {
	return c.write(func() error { return c.setting.SetTemperatureRegulators(regs) })
}

// SetInterpMethod selects the interpolation scheme.
func (c *Core) SetInterpMethod(m InterpMethod) error {
	return c.write(func() error { return c.setting.SetInterpMethod(m) })
}

// SetFilterMethod selects the temporal filter.
func (c *Core) SetFilterMethod(m FilterMethod) error {
	return c.write(func() error { return c.setting.SetFilterMethod(m) })
}

// SetIterMethod selects the Newton variant.
func (c *Core) SetIterMethod(m IterMethod) error {
	return c.write(func() error { return c.setting.SetIterMethod(m) })
}

// SetPeakTemperature sets the TLC peak wall temperature.
func (c *Core) SetPeakTemperature(v float64) error {
	return c.write(func() error { return c.setting.SetPeakTemperature(v) })
}

// SetSolidThermalConductivity sets k_s.
func (c *Core) SetSolidThermalConductivity(v float64) error {
	return c.write(func() error { return c.setting.SetSolidThermalConductivity(v) })
}

// SetSolidThermalDiffusivity sets alpha_s.
func (c *Core) SetSolidThermalDiffusivity(v float64) error {
	return c.write(func() error { return c.setting.SetSolidThermalDiffusivity(v) })
}

// SetCharacteristicLength sets L.
func (c *Core) SetCharacteristicLength(v float64) error {
	return c.write(func() error { return c.setting.SetCharacteristicLength(v) })
}

// SetAirThermalConductivity sets k_a.
func (c *Core) SetAirThermalConductivity(v float64) error {
	return c.write(func() error { return c.setting.SetAirThermalConductivity(v) })
}

// LoadSetting replaces the whole Setting, e.g. when the user opens a saved
// experiment. Derived data is rebuilt from scratch.
func (c *Core) LoadSetting(s Setting) error {
	return c.write(func() error {
		c.setting = s
		c.setting.CompletedAt = nil
		c.data = Data{}
		c.daqTable = nil
		c.pendingVideo = ""
		c.pendingDaq = ""
		// Reload the DAQ table; the metadata stays in place so the start
		// row and thermocouples survive the reload. The video needs no
		// reload because Green2 reads straight from the file.
		if s.DaqMeta != nil {
			c.pendingDaq = s.DaqMeta.Path
		}
		return nil
	})
}

// ----- read queries -----

// GetSetting returns a deep copy of the current Setting.
func (c *Core) GetSetting() Setting {
	var out Setting
	c.do(func() { out = c.snapshotSetting() })
	return out
}

// GetFrame requests a JPEG thumbnail of the raw frame. The decode happens on
// the video source's pool; only the validation touches the loop. A request
// evicted by newer seeks resolves to a Canceled error.
func (c *Core) GetFrame(ctx context.Context, index int) ([]byte, error) {
	var (
		path string
		err  error
	)
	c.do(func() {
		if c.setting.VideoMeta == nil {
			err = ErrNotReady
			return
		}
		if index < 0 || index >= c.setting.VideoMeta.TotalFrames {
			err = Errf(KindInvalidArgument, "frame %d out of [0, %d)", index, c.setting.VideoMeta.TotalFrames)
			return
		}
		path = c.setting.VideoMeta.Path
	})
	if err != nil {
		return nil, err
	}
	select {
	case res, ok := <-c.video.RequestFrame(path, index):
		if !ok {
			return nil, ErrCanceled
		}
		return res.Data, res.Err
	case <-ctx.Done():
		return nil, Wrapf(KindCanceled, ctx.Err(), "frame %d", index)
	}
}

// GetDaqRow returns a copy of one DAQ table row.
func (c *Core) GetDaqRow(row int) ([]float64, error) {
	var (
		out []float64
		err error
	)
	c.do(func() {
		if c.daqTable == nil {
			err = ErrNotReady
			return
		}
		if row < 0 || row >= len(c.daqTable) {
			err = Errf(KindInvalidArgument, "row %d out of [0, %d)", row, len(c.daqTable))
			return
		}
		out = append([]float64(nil), c.daqTable[row]...)
	})
	return out, err
}

// GetInterpFrame returns a copy of the interpolated 2-D temperature field of
// one synchronized frame.
func (c *Core) GetInterpFrame(frame int) (vals []float64, height, width int, err error) {
	c.do(func() {
		if c.data.Interp == nil {
			err = ErrNotReady
			return
		}
		view, ok := c.data.Interp.FrameView(frame)
		if !ok {
			err = Errf(KindInvalidArgument, "frame %d out of [0, %d)", frame, c.data.Interp.Frames)
			return
		}
		vals = append([]float64(nil), view...)
		height, width = c.data.Interp.Height, c.data.Interp.Width
	})
	return
}

// GetGreenHistory returns the green trace of one region pixel.
func (c *Core) GetGreenHistory(y, x int) ([]uint8, error) {
	var (
		out []uint8
		err error
	)
	c.do(func() {
		if c.data.Green2 == nil || c.setting.Area == nil {
			err = ErrNotReady
			return
		}
		a := *c.setting.Area
		if y < 0 || y >= a.Height || x < 0 || x >= a.Width {
			err = Errf(KindInvalidArgument, "pixel (%d, %d) outside %dx%d region", y, x, a.Height, a.Width)
			return
		}
		out = c.data.Green2.History(y*a.Width + x)
	})
	return out, err
}

// GetNu2 returns the current Nusselt result. The matrix is shared, immutable.
func (c *Core) GetNu2() (*NuResult, error) {
	var (
		out *NuResult
		err error
	)
	c.do(func() {
		if c.data.Nu == nil {
			err = ErrNotReady
			return
		}
		out = c.data.Nu
	})
	return out, err
}

// GetPointNu returns one pixel of the Nusselt field.
func (c *Core) GetPointNu(y, x int) (float64, error) {
	var (
		out float64
		err error
	)
	c.do(func() {
		if c.data.Nu == nil {
			err = ErrNotReady
			return
		}
		if y < 0 || y >= c.data.Nu.Height || x < 0 || x >= c.data.Nu.Width {
			err = Errf(KindInvalidArgument, "pixel (%d, %d) outside %dx%d field", y, x, c.data.Nu.Height, c.data.Nu.Width)
			return
		}
		out = c.data.Nu.Nu[y*c.data.Nu.Width+x]
	})
	return out, err
}

// SetColorRange re-renders the palette-mapped Nusselt image for a new value
// range without re-solving. Runs synchronously on the loop; the renderer is
// cheap by contract.
func (c *Core) SetColorRange(vmin, vmax float64) ([]byte, error) {
	var (
		out []byte
		err error
	)
	c.do(func() {
		if vmax <= vmin {
			err = Errf(KindInvalidArgument, "color range [%v, %v] is empty", vmin, vmax)
			return
		}
		if c.data.Nu == nil {
			err = ErrNotReady
			return
		}
		if c.plotter == nil {
			err = Errf(KindInternal, "no plotter configured")
			return
		}
		c.vmin, c.vmax = vmin, vmax
		out, err = c.plotter.RenderPNG(c.data.Nu, vmin, vmax)
	})
	return out, err
}

// GetProgress returns the (count, total) pair of a stage.
func (c *Core) GetProgress(stage Stage) (count, total uint32, err error) {
	if stage < 0 || stage >= numStages {
		return 0, 0, Errf(KindInvalidArgument, "unknown stage %d", int(stage))
	}
	count, total = c.prog[stage].Get()
	return count, total, nil
}

// LastStageError returns the stored error of a stage, or nil.
func (c *Core) LastStageError(stage Stage) error {
	var out error
	c.do(func() {
		if stage >= 0 && stage < numStages && c.lastErr[stage] != nil {
			out = c.lastErr[stage].err
		}
	})
	return out
}

// NuMean returns the mean Nusselt number over finite pixels.
func (c *Core) NuMean() (float64, error) {
	nu, err := c.GetNu2()
	if err != nil {
		return 0, err
	}
	return nu.Mean, nil
}

// Completed reports whether a full solve has been observed for the current
// fingerprint.
func (c *Core) Completed() bool {
	var done bool
	c.do(func() { done = c.setting.CompletedAt != nil })
	return done
}

// DescribeStages renders a one-line status per stage, for CLI display.
func (c *Core) DescribeStages() []string {
	var out []string
	c.do(func() {
		view := dagView{
			setting:      &c.setting,
			data:         &c.data,
			pendingVideo: c.pendingVideo,
			pendingDaq:   c.pendingDaq,
			daqLoaded:    c.daqTable != nil,
		}
		states := view.Evaluate(&c.reg)
		for _, stage := range Stages() {
			st := states[stage]
			switch st.Kind {
			case TaskCompleted:
				out = append(out, fmt.Sprintf("%s: complete", stage))
			case TaskReady:
				out = append(out, fmt.Sprintf("%s: ready", stage))
			case TaskDispatched:
				count, total := c.prog[stage].Get()
				out = append(out, fmt.Sprintf("%s: running %d/%d", stage, count, total))
			default:
				out = append(out, fmt.Sprintf("%s: blocked (%s)", stage, st.Reason))
			}
		}
	})
	return out
}
