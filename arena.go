package pool

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// band is one of the six usage-tier lists an Arena keeps its chunks
// sorted into.
type band int

const (
	bandQInit band = iota
	bandQ000
	bandQ025
	bandQ050
	bandQ075
	bandQ100
	numBands
)

func (b band) String() string {
	switch b {
	case bandQInit:
		return "qInit"
	case bandQ000:
		return "q000"
	case bandQ025:
		return "q025"
	case bandQ050:
		return "q050"
	case bandQ075:
		return "q075"
	case bandQ100:
		return "q100"
	default:
		return "?"
	}
}

// classifyBand implements the q-band thresholds: qInit is usage < 25% AND
// fresh; once a chunk has left qInit it never returns there, so low usage
// for a non-qInit chunk lands in q000 instead.
func classifyBand(usage float64, cur band) band {
	switch {
	case usage >= 1:
		return bandQ100
	case usage >= 0.75:
		return bandQ075
	case usage >= 0.50:
		return bandQ050
	case usage >= 0.25:
		return bandQ025
	default:
		if cur == bandQInit {
			return bandQInit
		}
		return bandQ000
	}
}

// chunkList is an arena-owned intrusive doubly linked list of Chunks
// sharing a usage band.
type chunkList struct {
	head *Chunk
	len  int
}

func (l *chunkList) pushFront(c *Chunk) {
	c.listPrev = nil
	c.listNext = l.head
	if l.head != nil {
		l.head.listPrev = c
	}
	l.head = c
	l.len++
}

func (l *chunkList) remove(c *Chunk) {
	if c.listPrev != nil {
		c.listPrev.listNext = c.listNext
	} else if l.head == c {
		l.head = c.listNext
	}
	if c.listNext != nil {
		c.listNext.listPrev = c.listPrev
	}
	c.listPrev = nil
	c.listNext = nil
	l.len--
}

// Arena owns a set of Chunks and a registry of partially-used Subpages,
// serving allocations and deallocations under a single lock. Grounded on
// Go's own mheap/mcentral single-lock design and on a sharded-cache
// pattern for the idea of an arena as one lock-protected shard among
// several.
type Arena struct {
	mu sync.Mutex

	id       int
	direct   bool
	cfg      Config
	provider ChunkProvider
	logger   *logrus.Entry

	bands [numBands]chunkList

	tinySubpages  [numTinyClasses]subpageList
	smallSubpages []subpageList // numSmallClasses(pageSize)+1: the last class is pageSize itself

	numChunks int

	// router back-reference lets a Buffer find its owner's ThreadCache on
	// release without the Allocator threading it through every call.
	router *router
}

func newArena(id int, direct bool, cfg Config, provider ChunkProvider, logger *logrus.Entry) *Arena {
	return &Arena{
		id:            id,
		direct:        direct,
		cfg:           cfg,
		provider:      provider,
		logger:        logger,
		smallSubpages: make([]subpageList, numSmallClasses(cfg.PageSize)+1),
	}
}

func (a *Arena) subpageListFor(kind sizeClassKind, classIdx int) *subpageList {
	switch kind {
	case kindTiny:
		return &a.tinySubpages[classIdx]
	case kindSmall:
		return &a.smallSubpages[classIdx]
	default:
		return nil
	}
}

func (a *Arena) bandList(b band) *chunkList {
	return &a.bands[b]
}

// reclassify migrates c between bands after its usage changed. A chunk
// that drops to fully-unused in q000 while qInit still holds a fresh
// chunk is handed back to the provider rather than kept idle.
func (a *Arena) reclassify(c *Chunk) {
	usage := c.usage()
	newBand := classifyBand(usage, c.band)
	if newBand != c.band {
		a.bandList(c.band).remove(c)
		c.band = newBand
		a.bandList(newBand).pushFront(c)
	}
	if newBand == bandQ000 && c.freeBytes == c.chunkSize && a.bandList(bandQInit).len > 0 {
		a.bandList(bandQ000).remove(c)
		a.releaseChunk(c)
	}
}

func (a *Arena) releaseChunk(c *Chunk) {
	a.provider.ReleaseChunk(c.buf)
	a.numChunks--
	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{"arena": a.id, "direct": a.direct}).Debug("pool: released idle chunk back to provider")
	}
}

func (a *Arena) newChunk() (*Chunk, error) {
	size := a.cfg.ChunkSize()
	buf, err := a.provider.NewChunk(size)
	if err != nil {
		return nil, outOfMemory(a.kindLabel(), a.id, size, err)
	}
	c := newChunk(a, buf, a.cfg.PageSize, a.cfg.MaxOrder)
	a.bandList(bandQInit).pushFront(c)
	a.numChunks++
	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{"arena": a.id, "direct": a.direct, "size": size}).Debug("pool: acquired new chunk from provider")
	}
	return c, nil
}

func (a *Arena) kindLabel() string {
	if a.direct {
		return "direct"
	}
	return "heap"
}

// allocateSmall serves a tiny/small allocation, taking the arena lock on
// cache miss" step 2).
func (a *Arena) allocateSmall(classIdx, classSize int, kind sizeClassKind) (Handle, *Chunk, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.subpageListFor(kind, classIdx)
	if list.head != nil {
		sp := list.head
		if slot, ok := sp.allocate(); ok {
			return encodeSubpageHandle(uint32(subpageNodeID(sp)), slot, sp.generation), sp.chunk, nil
		}
	}
	return a.allocateSubpageOnChunk(classSize, list)
}

func subpageNodeID(sp *subpage) int {
	return sp.pageIdx + (1 << uint(sp.chunk.maxOrder))
}

// allocateSubpageOnChunk tries the q-band search order for a chunk with
// room for another subpage slot, creating a new chunk from the provider if
// none has room.
func (a *Arena) allocateSubpageOnChunk(classSize int, list *subpageList) (Handle, *Chunk, error) {
	for _, b := range searchOrder {
		for c := a.bandList(b).head; c != nil; c = c.listNext {
			if h, ok := c.allocateSubpage(classSize, list); ok {
				a.reclassify(c)
				return h, c, nil
			}
		}
	}
	c, err := a.newChunk()
	if err != nil {
		return 0, nil, err
	}
	h, ok := c.allocateSubpage(classSize, list)
	if !ok {
		return 0, nil, outOfMemory(a.kindLabel(), a.id, classSize, errFreshChunkHasNoRoom)
	}
	a.reclassify(c)
	return h, c, nil
}

// searchOrder is the allocation search order: q050 -> q025 -> q000 ->
// qInit -> q075; q100 is never searched since chunks there are nearly
// full and reclaimable on drain, not worth a scan.
var searchOrder = [...]band{bandQ050, bandQ025, bandQ000, bandQInit, bandQ075}

// allocateNormal serves a normal-size allocation by scanning searchOrder
// for a chunk with room, falling back to a fresh chunk.
func (a *Arena) allocateNormal(classIdx, classSize int) (Handle, *Chunk, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pages := classSize / a.cfg.PageSize
	for _, b := range searchOrder {
		for c := a.bandList(b).head; c != nil; c = c.listNext {
			if id := c.allocateRun(pages); id >= 0 {
				a.reclassify(c)
				return encodeNormalHandle(uint32(id)), c, nil
			}
		}
	}
	c, err := a.newChunk()
	if err != nil {
		return 0, nil, err
	}
	id := c.allocateRun(pages)
	if id < 0 {
		return 0, nil, outOfMemory(a.kindLabel(), a.id, classSize, errFreshChunkHasNoRoom)
	}
	a.reclassify(c)
	return encodeNormalHandle(uint32(id)), c, nil
}

// allocateHuge bypasses the pool entirely for allocations above chunk
// size. The returned Chunk is a standalone, untracked region — never cached,
// freed directly on release.
func (a *Arena) allocateHuge(size int) (*Chunk, error) {
	buf, err := a.provider.NewChunk(size)
	if err != nil {
		return nil, outOfMemory(a.kindLabel(), a.id, size, err)
	}
	return &Chunk{arena: a, buf: buf, pageSize: size, chunkSize: size, freeBytes: 0}, nil
}

func (a *Arena) freeHuge(c *Chunk) {
	a.provider.ReleaseChunk(c.buf)
}

// free is the arena lock path taken when the thread cache could not
// absorb the freed entry (queue full, or the class is not cacheable).
func (a *Arena) free(c *Chunk, h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c.free(h)
	a.reclassify(c)
}

// releaseAllChunks returns every chunk the arena owns to its provider,
// used by Allocator.Close() after caches have been drained.
func (a *Arena) releaseAllChunks() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for b := range a.bands {
		for c := a.bands[b].head; c != nil; {
			next := c.listNext
			a.provider.ReleaseChunk(c.buf)
			a.numChunks--
			c = next
		}
		a.bands[b] = chunkList{}
	}
}

var errFreshChunkHasNoRoom = &freshChunkErr{}

type freshChunkErr struct{}

func (*freshChunkErr) Error() string { return "newly acquired chunk reported no room" }
