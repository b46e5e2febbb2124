package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Thread is an opaque handle identifying one logical caller of the
// allocator.
// Go exposes no public goroutine-id API, so callers obtain a Thread
// explicitly instead of the allocator inferring one from runtime state.
type Thread struct {
	id int64
}

var threadSeq int64

// NewThread allocates a fresh Thread handle. Callers typically create one
// per goroutine and reuse it for the goroutine's lifetime so its
// ThreadCache stays warm.
//
// A Thread carries no strong reference back into the router: once a
// caller drops every reference to the Thread it returns, the GC can
// collect it and the router's finalizer-based liveness sweep (see
// router.go's cleanup task) notices and drains its cache.
func NewThread() *Thread {
	return &Thread{id: atomic.AddInt64(&threadSeq, 1)}
}

// router assigns Threads to Arenas round robin and owns the ThreadCache
// registry, including draining caches belonging to Threads the caller has
// released or that have been garbage collected. Grounded on a
// single-mutex registry shape generalized from one shared resource to an
// indexed set of them.
//
// Thread liveness is detected via runtime.SetFinalizer rather than true
// thread-local storage (Go has neither public goroutine ids nor a
// thread-terminated signal): a Thread's finalizer marks its id
// terminated, and a self-rearming time.AfterFunc task periodically
// drains and forgets every terminated thread's cache, cancelling itself
// once the registry is empty and re-arming the next time a cache is
// created.
type router struct {
	mu sync.Mutex

	heapArenas   []*Arena
	directArenas []*Arena
	nextHeap     int
	nextDirect   int

	caches     map[int64]*ThreadCache
	terminated map[int64]struct{}

	cleanupTimer *time.Timer
	closed       bool

	cfg    Config
	logger *logrus.Entry
}

func newRouter(heapArenas, directArenas []*Arena, cfg Config, logger *logrus.Entry) *router {
	return &router{
		heapArenas:   heapArenas,
		directArenas: directArenas,
		caches:       make(map[int64]*ThreadCache),
		terminated:   make(map[int64]struct{}),
		cfg:          cfg,
		logger:       logger,
	}
}

// cacheFor implements round-robin assignment: the first time
// a Thread is seen it is bound to the next arena in rotation (separately
// for heap and direct) and a ThreadCache is created for it; subsequent
// calls return the same cache. A finalizer is attached to t the first
// time it is seen, and the cleanup task is (re-)armed if the registry was
// empty.
func (r *router) cacheFor(t *Thread) *ThreadCache {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tc, ok := r.caches[t.id]; ok {
		return tc
	}

	registryWasEmpty := len(r.caches) == 0

	var heapArena, directArena *Arena
	if len(r.heapArenas) > 0 {
		heapArena = r.heapArenas[r.nextHeap%len(r.heapArenas)]
		r.nextHeap++
	}
	if len(r.directArenas) > 0 {
		directArena = r.directArenas[r.nextDirect%len(r.directArenas)]
		r.nextDirect++
	}
	tc := newThreadCache(t, r.cfg, heapArena, directArena)
	r.caches[t.id] = tc
	delete(r.terminated, t.id)

	id := t.id
	// A Thread released earlier and now seen again still carries its old
	// finalizer; clear it first, since setting a second one is fatal.
	runtime.SetFinalizer(t, nil)
	runtime.SetFinalizer(t, func(dead *Thread) {
		_ = dead
		r.markTerminated(id)
	})

	if registryWasEmpty {
		r.armCleanupLocked()
	}
	return tc
}

// markTerminated records that the Thread owning id has been garbage
// collected, for the next cleanup pass to find.
func (r *router) markTerminated(id int64) {
	r.mu.Lock()
	r.terminated[id] = struct{}{}
	r.mu.Unlock()
}

// armCleanupLocked schedules the next cleanup pass. Callers must hold
// r.mu. A no-op if a pass is already scheduled or the router is closed.
func (r *router) armCleanupLocked() {
	if r.cleanupTimer != nil || r.closed {
		return
	}
	interval := time.Duration(r.cfg.CacheCleanupIntervalMS) * time.Millisecond
	r.cleanupTimer = time.AfterFunc(interval, r.runCleanup)
}

// runCleanup is the periodic task: it drains and forgets every cache
// whose owning Thread was marked terminated since the last pass, then
// re-arms itself unless the registry is now empty, per the router's
// self-cancel/re-arm contract.
func (r *router) runCleanup() {
	r.mu.Lock()
	r.cleanupTimer = nil
	if r.closed {
		r.mu.Unlock()
		return
	}

	type drained struct {
		id int64
		tc *ThreadCache
	}
	var dead []drained
	for id := range r.terminated {
		if tc, ok := r.caches[id]; ok {
			dead = append(dead, drained{id: id, tc: tc})
			delete(r.caches, id)
		}
		delete(r.terminated, id)
	}
	if len(r.caches) > 0 {
		r.armCleanupLocked()
	}
	r.mu.Unlock()

	for _, d := range dead {
		d.tc.drainAll()
		if r.logger != nil {
			r.logger.WithField("thread", d.id).Debug("pool: dead-thread cache drained by cleanup task")
		}
	}
}

// release drains and forgets a Thread's cache, returning all of its
// cached entries to their owning arenas. Safe to call once a Thread is known to be finished.
func (r *router) release(t *Thread) {
	r.mu.Lock()
	tc, ok := r.caches[t.id]
	if ok {
		delete(r.caches, t.id)
	}
	delete(r.terminated, t.id)
	r.mu.Unlock()
	if ok {
		tc.drainAll()
	}
}

// drainAll tears down every live ThreadCache and stops the cleanup task,
// used by Allocator.Close().
func (r *router) drainAll() {
	r.mu.Lock()
	caches := make([]*ThreadCache, 0, len(r.caches))
	for id, tc := range r.caches {
		caches = append(caches, tc)
		delete(r.caches, id)
	}
	r.closed = true
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
		r.cleanupTimer = nil
	}
	r.mu.Unlock()
	for _, tc := range caches {
		tc.drainAll()
	}
}
