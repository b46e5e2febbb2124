package pool

import "math/bits"

// subpage is a single page subdivided into equal-sized slots, tracked with a
// free-bit bitmap instead of a free list. Grounded on a Couchbase-style
// slab allocator's chunk-free-list-per-slab-class design (see
// pushFreeChunk/popFreeChunk) combined with a bitmap frame allocator's
// free-bitmap-plus-freeCount shape.
type subpage struct {
	chunk    *Chunk
	pageIdx  int
	elemSize int
	numSlots int

	// bitmap bit = 1 iff the slot is free.
	bitmap    []uint64
	freeCount int
	hint      int // rotating search hint for allocate()

	// generation distinguishes successive subpages that reuse the same
	// page.
	generation uint32

	list     *subpageList
	inList   bool
	listPrev *subpage
	listNext *subpage
}

func newSubpage(c *Chunk, pageIdx, elemSize int, list *subpageList) *subpage {
	numSlots := c.pageSize / elemSize
	words := (numSlots + 63) / 64
	bitmap := make([]uint64, words)
	for i := range bitmap {
		bitmap[i] = ^uint64(0)
	}
	if rem := numSlots % 64; rem != 0 {
		bitmap[words-1] = (uint64(1) << uint(rem)) - 1
	}
	gen := list.nextGeneration()
	sp := &subpage{
		chunk:      c,
		pageIdx:    pageIdx,
		elemSize:   elemSize,
		numSlots:   numSlots,
		bitmap:     bitmap,
		freeCount:  numSlots,
		generation: gen,
		list:       list,
	}
	list.pushFront(sp)
	return sp
}

// allocate finds the next free slot starting from a rotating hint, clears
// it, and removes the subpage from its arena list if it is now full.
func (sp *subpage) allocate() (slot uint16, ok bool) {
	if sp.freeCount == 0 {
		return 0, false
	}
	idx := sp.findNextFree(sp.hint)
	if idx < 0 {
		return 0, false
	}
	sp.clearBit(idx)
	sp.freeCount--
	sp.hint = idx + 1
	if sp.hint >= sp.numSlots {
		sp.hint = 0
	}
	if sp.freeCount == 0 {
		sp.list.remove(sp)
	}
	return uint16(idx), true
}

// stillUsedAfterFree marks slot free and returns whether the caller
// (Chunk.free) must NOT reclaim the underlying page run
// — either because the subpage still has slots in use, or because it is
// the sole subpage for its class and is kept around rather than being torn
// down immediately.
func (sp *subpage) stillUsedAfterFree(slot uint16) bool {
	wasFull := sp.freeCount == 0
	sp.setBit(int(slot))
	sp.freeCount++
	if wasFull {
		sp.list.pushFront(sp)
	}
	if sp.freeCount == sp.numSlots {
		if sp.list.len > 1 {
			sp.list.remove(sp)
			return false
		}
	}
	return true
}

func (sp *subpage) findNextFree(from int) int {
	for i := 0; i < sp.numSlots; i++ {
		idx := (from + i) % sp.numSlots
		word := sp.bitmap[idx/64]
		if word&(uint64(1)<<uint(idx%64)) != 0 {
			return idx
		}
	}
	return -1
}

func (sp *subpage) clearBit(idx int) {
	sp.bitmap[idx/64] &^= uint64(1) << uint(idx%64)
}

func (sp *subpage) setBit(idx int) {
	sp.bitmap[idx/64] |= uint64(1) << uint(idx%64)
}

// popcount returns the number of free slots currently recorded in the
// bitmap, used by tests to check the subpage invariant "counter equals
// popcount(bitmap)".
func (sp *subpage) popcount() int {
	n := 0
	for _, w := range sp.bitmap {
		n += bits.OnesCount64(w)
	}
	return n
}

// mem returns the byte range for slot within the subpage's page.
func (sp *subpage) mem(slot uint16) []byte {
	page := sp.chunk.pageMem(sp.pageIdx + (1 << uint(sp.chunk.maxOrder)))
	start := int(slot) * sp.elemSize
	return page[start : start+sp.elemSize]
}

// subpageList is an arena-owned, intrusive doubly linked list of subpages
// sharing one size class, LRU-by-last-touched via push-to-front
//.
type subpageList struct {
	head       *subpage
	len        int
	generation uint32
}

func (l *subpageList) nextGeneration() uint32 {
	l.generation++
	return l.generation
}

func (l *subpageList) pushFront(sp *subpage) {
	if sp.inList {
		return
	}
	sp.listPrev = nil
	sp.listNext = l.head
	if l.head != nil {
		l.head.listPrev = sp
	}
	l.head = sp
	sp.inList = true
	l.len++
}

func (l *subpageList) remove(sp *subpage) {
	if !sp.inList {
		return
	}
	if sp.listPrev != nil {
		sp.listPrev.listNext = sp.listNext
	} else {
		l.head = sp.listNext
	}
	if sp.listNext != nil {
		sp.listNext.listPrev = sp.listPrev
	}
	sp.listPrev = nil
	sp.listNext = nil
	sp.inList = false
	l.len--
}
