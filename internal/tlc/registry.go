package tlc

import "sync/atomic"

// TaskRegistry tracks, per stage, the fingerprint of the most recently
// dispatched task and a monotonically increasing generation. A task whose
// fingerprint equals the in-flight one is suppressed. Workers do not read the
// generation: a worker that has fallen behind keeps running unless its
// stage's progress cancel flag stops it, and Complete rejects its result.
//
// Only the reconcile loop mutates the registry; Generation reads it through
// an atomic.
type TaskRegistry struct {
	entries [numStages]regEntry
}

type regEntry struct {
	inflight bool
	fp       Fingerprint
	gen      atomic.Uint64
}

// InFlight reports whether an identical task is currently dispatched.
func (r *TaskRegistry) InFlight(stage Stage, fp Fingerprint) bool {
	e := &r.entries[stage]
	return e.inflight && e.fp == fp
}

// Dispatch records a new in-flight task and returns the generation the
// worker must carry. Dispatching advances the stage's generation, so the
// result of any straggler still running for this stage is rejected by
// Complete; the straggler itself is not stopped.
func (r *TaskRegistry) Dispatch(stage Stage, fp Fingerprint) uint64 {
	e := &r.entries[stage]
	e.inflight = true
	e.fp = fp
	return e.gen.Add(1)
}

// Complete clears the in-flight entry if the finishing worker's generation is
// still current. A stale completion leaves the registry untouched.
func (r *TaskRegistry) Complete(stage Stage, gen uint64) bool {
	e := &r.entries[stage]
	if e.gen.Load() != gen {
		return false
	}
	e.inflight = false
	e.fp = 0
	return true
}

// Invalidate advances the generation without dispatching, so the result of a
// worker still running for this stage is rejected by Complete; the worker is
// not notified. The in-flight marker is dropped to let a fresh task through.
func (r *TaskRegistry) Invalidate(stage Stage) {
	e := &r.entries[stage]
	e.inflight = false
	e.fp = 0
	e.gen.Add(1)
}

// Generation returns the stage's current generation. Safe from any
// goroutine.
func (r *TaskRegistry) Generation(stage Stage) uint64 {
	return r.entries[stage].gen.Load()
}
