package video

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/nusselt.report/internal/monitoring"
	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// Default seek-ring capacity: how many interactive frame requests may be
// pending before the oldest is evicted.
const defaultRingSize = 3

// Default packet cache capacity in frames.
const defaultCacheFrames = 256

// frameRequest is one slot of the seek ring.
type frameRequest struct {
	path  string
	index int
	reply chan tlc.FrameResult
}

// seekRing is the bounded admission queue of the interactive seek path. A
// full ring evicts its oldest slot; the evicted reply channel is closed,
// which the caller observes as cancellation. Workers drain newest-first so a
// burst of seeks resolves the user's final target before stale ones.
type seekRing struct {
	mu    sync.Mutex
	slots []frameRequest
	cap   int
}

func newSeekRing(capacity int) *seekRing {
	if capacity < 1 {
		capacity = 1
	}
	return &seekRing{cap: capacity}
}

// push admits a request, returning the evicted slot if the ring was full.
func (r *seekRing) push(req frameRequest) (evicted frameRequest, wasFull bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.slots) == r.cap {
		evicted = r.slots[0]
		r.slots = append(r.slots[:0], r.slots[1:]...)
		wasFull = true
	}
	r.slots = append(r.slots, req)
	return evicted, wasFull
}

// pop removes the newest pending request.
func (r *seekRing) pop() (frameRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.slots)
	if n == 0 {
		return frameRequest{}, false
	}
	req := r.slots[n-1]
	r.slots = r.slots[:n-1]
	return req, true
}

// Len returns the number of pending requests.
func (r *seekRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// SourceConfig tunes a Source.
type SourceConfig struct {
	Decoder Decoder
	// RingSize bounds pending interactive seeks; defaults to 3.
	RingSize int
	// CacheFrames bounds the packet cache; defaults to 256.
	CacheFrames int
	// Workers is the decode pool size; defaults to half the cores, min 1.
	Workers int
}

// Source implements the core's VideoSource: probing, the pooled seek path
// and the bulk green pipeline, all on one shared decoder and packet cache.
type Source struct {
	dec    Decoder
	ring   *seekRing
	cache  *packetCache
	wake   chan struct{}
	cancel context.CancelFunc

	mu    sync.Mutex
	metas map[string]tlc.VideoMeta
}

// NewSource builds a Source and starts its decode workers. Close releases
// them.
func NewSource(cfg SourceConfig) *Source {
	dec := cfg.Decoder
	if dec == nil {
		dec = FFmpegDecoder{}
	}
	ring := cfg.RingSize
	if ring < 1 {
		ring = defaultRingSize
	}
	cacheFrames := cfg.CacheFrames
	if cacheFrames < 1 {
		cacheFrames = defaultCacheFrames
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU() / 2
		if workers < 1 {
			workers = 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		dec:    dec,
		ring:   newSeekRing(ring),
		cache:  newPacketCache(cacheFrames),
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		metas:  make(map[string]tlc.VideoMeta),
	}
	for i := 0; i < workers; i++ {
		go s.worker(ctx)
	}
	return s
}

// Close stops the decode workers. Pending requests are abandoned.
func (s *Source) Close() {
	s.cancel()
}

// Probe reads and caches the metadata of a video file.
func (s *Source) Probe(path string) (tlc.VideoMeta, error) {
	meta, err := s.dec.Probe(path)
	if err != nil {
		return tlc.VideoMeta{}, tlc.Wrapf(tlc.KindDecodeFailed, err, "probe %s", path)
	}
	s.mu.Lock()
	s.metas[path] = meta
	s.mu.Unlock()
	s.cache.Purge(path)
	return meta, nil
}

// meta returns the cached metadata, probing on a miss.
func (s *Source) meta(path string) (tlc.VideoMeta, error) {
	s.mu.Lock()
	m, ok := s.metas[path]
	s.mu.Unlock()
	if ok {
		return m, nil
	}
	return s.Probe(path)
}

// RequestFrame queues an interactive decode of one frame and returns its
// reply channel. If the ring is full the oldest pending request is evicted
// and its channel closed. The wake signal send is non-blocking: a full
// signal buffer means a worker is already due to scan the ring.
func (s *Source) RequestFrame(path string, index int) <-chan tlc.FrameResult {
	reply := make(chan tlc.FrameResult, 1)
	if data, ok := s.cache.Get(path, index); ok {
		reply <- tlc.FrameResult{Data: data}
		return reply
	}
	evicted, wasFull := s.ring.push(frameRequest{path: path, index: index, reply: reply})
	if wasFull {
		close(evicted.reply)
		monitoring.Debugf("seek ring full: evicted frame %d", evicted.index)
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return reply
}

// worker drains the ring newest-first until empty, then sleeps on the wake
// signal.
func (s *Source) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for {
			req, ok := s.ring.pop()
			if !ok {
				break
			}
			s.serve(req)
		}
	}
}

func (s *Source) serve(req frameRequest) {
	if data, ok := s.cache.Get(req.path, req.index); ok {
		req.reply <- tlc.FrameResult{Data: data}
		return
	}
	meta, err := s.meta(req.path)
	if err != nil {
		req.reply <- tlc.FrameResult{Err: err}
		return
	}
	data, err := s.dec.DecodeFrame(meta, req.index)
	if err != nil {
		req.reply <- tlc.FrameResult{Err: err}
		return
	}
	s.cache.Put(req.path, req.index, data)
	req.reply <- tlc.FrameResult{Data: data}
}

// GreenROI decodes the synchronized window in parallel chunks, each chunk an
// independent seek writing a disjoint frame band of dst. This is the bulk
// pipeline behind the green matrix build; it bypasses the seek ring but
// shares the decoder.
func (s *Source) GreenROI(path string, start, count int, area tlc.Area, dst []uint8, keep func(frames int) bool) error {
	meta, err := s.meta(path)
	if err != nil {
		return err
	}
	npx := area.NumPixels()

	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	chunk := (count + workers - 1) / workers
	// Short seeks dominate tiny chunks; keep each ffmpeg run worthwhile.
	if chunk < 32 {
		chunk = 32
	}

	var grp errgroup.Group
	for lo := 0; lo < count; lo += chunk {
		lo, n := lo, chunk
		if lo+n > count {
			n = count - lo
		}
		grp.Go(func() error {
			band := dst[lo*npx : (lo+n)*npx]
			return s.dec.DecodeGreenBand(meta, start+lo, n, area, band, keep)
		})
	}
	return grp.Wait()
}
