package tlc

import "sync/atomic"

// Progress packs a stage's (total, count) pair into one 64-bit atomic:
// total in the high 32 bits, count in the low 32. A total of zero is the
// cancel sentinel; workers poll it inside long loops and bail out.
type Progress struct {
	v atomic.Uint64
}

// Start arms the monitor for a run of the given size and zeroes the count.
func (p *Progress) Start(total uint32) {
	p.v.Store(uint64(total) << 32)
}

// Add records n completed units. Count never reaches 2^32 in practice, so a
// plain add cannot carry into the total half.
func (p *Progress) Add(n uint32) {
	p.v.Add(uint64(n))
}

// Get returns the current (count, total) pair from a single load.
func (p *Progress) Get() (count, total uint32) {
	v := p.v.Load()
	return uint32(v), uint32(v >> 32)
}

// Cancel sets the sentinel. Workers observing it abandon the run.
func (p *Progress) Cancel() {
	p.v.Store(0)
}

// Canceled reports whether the sentinel is set.
func (p *Progress) Canceled() bool {
	return p.v.Load()>>32 == 0
}
