package pool

import "math/bits"

// Chunk is a single large backing region partitioned into pages via a
// complete binary tree. Node id's depth
// in the tree is floor(log2(id)); the root is memoryMap[1]. A run of
// 2^(maxOrder-d) pages lives at depth d.
//
// Grounded on Go's own mheap/mcentral free-list-per-order design for the
// overall "single lock, per-arena free structure" shape, and on a
// runtime-style per-chunk bookkeeping layout distinct from the arena
// that owns it.
type Chunk struct {
	arena *Arena

	buf       []byte
	pageSize  int
	maxOrder  int
	chunkSize int

	// memoryMap[id] is the smallest depth d' >= depth(id) such that some
	// descendant at depth d' is free; maxOrder+1 means "fully allocated."
	// depthMap[id] is id's immutable original depth. Both use unsigned
	// 8-bit values since max_order never exceeds 14.
	memoryMap []uint8
	depthMap  []uint8

	// subpages[pageIdx] is the Subpage occupying that page, or nil if the
	// page is either free or allocated as a plain run.
	subpages []*subpage

	freeBytes int

	// q-band list membership: prev/next for an intrusive doubly linked
	// list, rather than a separate container/list element.
	band       band
	listPrev   *Chunk
	listNext   *Chunk
}

func newChunk(a *Arena, buf []byte, pageSize, maxOrder int) *Chunk {
	numNodes := 1 << uint(maxOrder+1)
	c := &Chunk{
		arena:     a,
		buf:       buf,
		pageSize:  pageSize,
		maxOrder:  maxOrder,
		chunkSize: pageSize << uint(maxOrder),
		memoryMap: make([]uint8, numNodes),
		depthMap:  make([]uint8, numNodes),
		subpages:  make([]*subpage, 1<<uint(maxOrder)),
		freeBytes: pageSize << uint(maxOrder),
		band:      bandQInit,
	}
	for id := 1; id < numNodes; id++ {
		d := depthOf(id)
		c.memoryMap[id] = uint8(d)
		c.depthMap[id] = uint8(d)
	}
	return c
}

func depthOf(id int) int {
	return bits.Len(uint(id)) - 1
}

// usage returns the fraction of the chunk currently allocated, in [0,1].
func (c *Chunk) usage() float64 {
	return 1 - float64(c.freeBytes)/float64(c.chunkSize)
}

// allocateNode descends to the first free node at depth d, marking it (and
// propagating up) as fully allocated. Returns
// -1 if no run of this size is free anywhere in the chunk.
func (c *Chunk) allocateNode(d int) int {
	if int(c.memoryMap[1]) > d {
		return -1
	}
	id := 1
	for int(c.depthMap[id]) < d {
		left := 2 * id
		// Tie-break: always prefer the left child when both are equally
		// free, which packs allocations into
		// low addresses and keeps large runs available on the right.
		if int(c.memoryMap[left]) <= d {
			id = left
		} else {
			id = left + 1
		}
	}
	c.memoryMap[id] = uint8(c.maxOrder + 1)
	c.propagateUp(id)
	return id
}

// propagateUp recomputes memoryMap for every ancestor of id as the min of
// its two children. Used after both allocation
// (children became less free) and free (children became more free) since
// the update rule is identical in both directions.
func (c *Chunk) propagateUp(id int) {
	id >>= 1
	for id >= 1 {
		left := c.memoryMap[2*id]
		right := c.memoryMap[2*id+1]
		if left < right {
			c.memoryMap[id] = left
		} else {
			c.memoryMap[id] = right
		}
		id >>= 1
	}
}

func (c *Chunk) freeNode(id int) {
	c.memoryMap[id] = c.depthMap[id]
	c.propagateUp(id)
}

// allocateRun allocates a run of sizeInPages pages. Returns
// -1 on failure rather than an error: the arena decides whether failure
// here means "try the next chunk" or "ask the provider for a new one," so
// this layer stays infallible-looking by convention, matching the chunk
// tree's role as a pure data structure under the arena's lock.
func (c *Chunk) allocateRun(sizeInPages int) int {
	k := ceilLog2(sizeInPages)
	d := c.maxOrder - k
	if d < 0 {
		return -1
	}
	id := c.allocateNode(d)
	if id < 0 {
		return -1
	}
	c.freeBytes -= sizeInPages * c.pageSize
	return id
}

// allocateSubpage carves a fresh page and hands it to a newly created (or, defensively,
// reused) Subpage. list is the arena's subpage list for elemSize's class;
// the new subpage inserts itself into it.
func (c *Chunk) allocateSubpage(elemSize int, list *subpageList) (Handle, bool) {
	id := c.allocateRun(1)
	if id < 0 {
		return 0, false
	}
	pageIdx := id - (1 << uint(c.maxOrder))
	sp := c.subpages[pageIdx]
	if sp == nil {
		sp = newSubpage(c, pageIdx, elemSize, list)
		c.subpages[pageIdx] = sp
	}
	slot, ok := sp.allocate()
	if !ok {
		return 0, false
	}
	return encodeSubpageHandle(uint32(id), slot, sp.generation), true
}

// pageMem returns the byte range backing page leaf id.
func (c *Chunk) pageMem(id int) []byte {
	pageIdx := id - (1 << uint(c.maxOrder))
	start := pageIdx * c.pageSize
	return c.buf[start : start+c.pageSize]
}

// runMem returns the byte range backing a normal-size run rooted at id.
func (c *Chunk) runMem(id int) []byte {
	d := int(c.depthMap[id])
	runBytes := c.chunkSize >> uint(d)
	nodesAtDepth := 1 << uint(d)
	indexAtDepth := id - nodesAtDepth
	start := indexAtDepth * runBytes
	return c.buf[start : start+runBytes]
}

// free releases the region h addresses. Returns the number of bytes
// returned to the chunk (0 if a subpage free did not release its page).
func (c *Chunk) free(h Handle) int {
	if h.IsSubpage() {
		id := int(h.NodeID())
		pageIdx := id - (1 << uint(c.maxOrder))
		if pageIdx < 0 || pageIdx >= len(c.subpages) || c.subpages[pageIdx] == nil {
			debugAssert(false, "free: foreign or double-freed subpage handle")
			return 0
		}
		sp := c.subpages[pageIdx]
		slot, generation := h.slotAndGeneration()
		if generation != sp.generation&0x7fff {
			debugAssert(false, "free: stale generation on subpage handle")
			return 0
		}
		if sp.stillUsedAfterFree(slot) {
			return 0
		}
		c.subpages[pageIdx] = nil
		c.freeNode(id)
		c.freeBytes += c.pageSize
		return c.pageSize
	}

	id := int(h.NodeID())
	if id <= 0 || id >= len(c.memoryMap) || c.memoryMap[id] != uint8(c.maxOrder+1) {
		debugAssert(false, "free: foreign or double-freed normal handle")
		return 0
	}
	pages := 1 << uint(c.maxOrder-int(c.depthMap[id]))
	c.freeNode(id)
	n := pages * c.pageSize
	c.freeBytes += n
	return n
}
