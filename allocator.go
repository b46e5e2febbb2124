package pool

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Allocator is the top-level entry point:
// new_heap_buffer, new_direct_buffer, is_direct_pooled, plus the
// supplemented Close()/Metrics(). It owns every heap and
// direct Arena and the Router that assigns threads to them.
//
// Grounded on a top-level Arena as the one type users
// construct and call into directly, generalized
// here into a type that owns many arenas instead of being one.
type Allocator struct {
	cfg Config

	heapArenas   []*Arena
	directArenas []*Arena
	router       *router
	logger       *logrus.Entry
	metrics      *Metrics

	closeOnce sync.Once
	closed    bool
}

// New constructs an Allocator from cfg, applying defaults and validating
// it against the BadConfig rules in Config.Validate.
func New(cfg Config) (*Allocator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(cfg)
	metrics := NewMetrics()

	heapArenas := make([]*Arena, cfg.NumHeapArenas)
	for i := range heapArenas {
		heapArenas[i] = newArena(i, false, cfg, cfg.HeapProvider, logger)
	}
	directArenas := make([]*Arena, cfg.NumDirectArenas)
	for i := range directArenas {
		directArenas[i] = newArena(i, true, cfg, cfg.DirectProvider, logger)
	}

	r := newRouter(heapArenas, directArenas, cfg, logger)
	for _, a := range heapArenas {
		a.router = r
	}
	for _, a := range directArenas {
		a.router = r
	}

	return &Allocator{
		cfg:          cfg,
		heapArenas:   heapArenas,
		directArenas: directArenas,
		router:       r,
		logger:       logger,
		metrics:      metrics,
	}, nil
}

// NewHeapBuffer serves a pooled heap buffer of the requested size.
func (al *Allocator) NewHeapBuffer(size int, t *Thread) (*Buffer, error) {
	return al.newBuffer(size, t, false)
}

// NewDirectBuffer serves a pooled direct (off-heap intent) buffer of the
// requested size.
func (al *Allocator) NewDirectBuffer(size int, t *Thread) (*Buffer, error) {
	return al.newBuffer(size, t, true)
}

func (al *Allocator) newBuffer(size int, t *Thread, direct bool) (*Buffer, error) {
	if size < 0 {
		return nil, badConfig("negative buffer size requested: %d", size)
	}

	arenas := al.heapArenas
	kindLabel := "heap"
	if direct {
		arenas = al.directArenas
		kindLabel = "direct"
	}
	if len(arenas) == 0 {
		return nil, badConfig("%s pooling disabled (zero arenas configured)", kindLabel)
	}

	kind, classIdx, classSize := normalize(size, al.cfg.PageSize, al.cfg.ChunkSize())

	if kind == kindHuge {
		a := arenas[0]
		c, err := a.allocateHuge(classSize)
		if err != nil {
			al.metrics.recordOOM(kindLabel)
			return nil, err
		}
		al.metrics.recordAllocation(kindLabel, kind)
		return &Buffer{
			data:        c.buf[:size],
			capacity:    classSize,
			maxCapacity: classSize,
			arena:       a,
			chunk:       c,
			thread:      t,
			kind:        kind,
			huge:        true,
			metrics:     al.metrics,
			kindLabel:   kindLabel,
		}, nil
	}

	var tc *ThreadCache
	if t != nil {
		tc = al.router.cacheFor(t)
	}

	var h Handle
	var chunk *Chunk
	var a *Arena
	var err error

	if tc != nil {
		if hh, c, ok := tc.pop(direct, kind, classIdx); ok {
			h, chunk = hh, c
			a = c.arena
		}
	}
	if chunk == nil {
		if tc != nil {
			if bound := tc.boundArena(direct); bound != nil {
				a = bound
			}
		}
		if a == nil {
			a = arenas[classIdx%len(arenas)]
		}
		if kind == kindNormal {
			h, chunk, err = a.allocateNormal(classIdx, classSize)
		} else {
			h, chunk, err = a.allocateSmall(classIdx, classSize, kind)
		}
		if err != nil {
			al.metrics.recordOOM(kindLabel)
			return nil, err
		}
	}

	al.metrics.recordAllocation(kindLabel, kind)
	mem := bufferMem(chunk, h, classSize)
	return &Buffer{
		data:        mem[:size],
		capacity:    classSize,
		maxCapacity: classSize,
		arena:       a,
		chunk:       chunk,
		handle:      h,
		thread:      t,
		kind:        kind,
		classIdx:    classIdx,
		metrics:     al.metrics,
		kindLabel:   kindLabel,
	}, nil
}

// bufferMem resolves the byte range a handle addresses: page memory for a
// subpage slot, run memory otherwise.
func bufferMem(c *Chunk, h Handle, classSize int) []byte {
	if h.IsSubpage() {
		pageIdx := int(h.NodeID()) - (1 << uint(c.maxOrder))
		sp := c.subpages[pageIdx]
		slot, _ := h.slotAndGeneration()
		return sp.mem(slot)
	}
	return c.runMem(int(h.NodeID()))
}

// ChunkSize returns the configured chunk size (page_size << max_order),
// exposed for callers and tests that need to reason about huge-allocation
// thresholds.
func (al *Allocator) ChunkSize() int {
	return al.cfg.ChunkSize()
}

// IsDirectPooled reports whether the direct pool is actually backed by a
// real off-heap provider rather than the heap-backed default stand-in
// (provider.go).
func (al *Allocator) IsDirectPooled() bool {
	if len(al.directArenas) == 0 {
		return false
	}
	_, isDefault := al.cfg.DirectProvider.(directProvider)
	return !isDefault
}

// Metrics returns a snapshot per arena kind, refreshing the Prometheus
// gauges as a side effect.
func (al *Allocator) Metrics() (heap, direct []ArenaMetrics) {
	for _, a := range al.heapArenas {
		al.metrics.observeArena("heap", a)
		heap = append(heap, a.Metrics())
	}
	for _, a := range al.directArenas {
		al.metrics.observeArena("direct", a)
		direct = append(direct, a.Metrics())
	}
	return heap, direct
}

// ReleaseThread drains and forgets t's ThreadCache. Call this once a Thread's owning goroutine
// is known to be finished so its cached entries are returned promptly
// instead of waiting for the periodic dead-thread cleanup task.
func (al *Allocator) ReleaseThread(t *Thread) {
	al.router.release(t)
}

// Close drains every ThreadCache back to its arenas and releases every
// chunk back to its provider. Close is
// idempotent.
func (al *Allocator) Close() error {
	al.closeOnce.Do(func() {
		al.router.drainAll()
		for _, a := range al.heapArenas {
			a.releaseAllChunks()
		}
		for _, a := range al.directArenas {
			a.releaseAllChunks()
		}
		al.closed = true
	})
	return nil
}
