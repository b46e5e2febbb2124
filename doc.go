// Package pool implements a pooled byte-buffer allocator in the style of
// Netty's PooledByteBufAllocator: a buddy-tree chunk allocator backed by
// bitmap subpage slabs, fronted by per-thread caches so that most
// allocate/release pairs never touch a shared lock.
//
// # Overview
//
// Buffers are served from one of several size-class tiers:
//
//   - tiny:   multiples of 16 bytes, below 512
//   - small:  powers of two, 512 up to the configured page size
//   - normal: page-size multiples, up to one chunk
//   - huge:   larger than one chunk; bypasses the pool entirely
//
// Each tier maps a requested size up to the smallest class not smaller
// than it, so a Buffer's Capacity() may exceed the size originally
// requested.
//
// # Basic Usage
//
//	allocator, err := pool.New(pool.NewConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer allocator.Close()
//
//	thread := pool.NewThread()
//	buf, err := allocator.NewHeapBuffer(1024, thread)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer buf.Release()
//
//	data := buf.Bytes()
//
// # Thread Caches
//
// A *pool.Thread identifies one logical caller. Buffers allocated and
// released with the same Thread are served from that thread's cache
// whenever possible, with no lock contention against other threads.
// Call Allocator.ReleaseThread when a thread's owning goroutine is done
// so its cached buffers are returned promptly.
//
// # Memory Layout
//
// Each arena owns a set of chunks, organized as a complete binary tree
// for buddy-style splitting and coalescing. Pages within a chunk may be
// further subdivided into equal-sized slots by a Subpage when serving
// tiny or small allocations. Chunks migrate between six usage-tier lists
// (qInit, q000, q025, q050, q075, q100) as their occupancy changes, and
// allocation searches those lists in an order that favors partially full
// chunks over empty or nearly-full ones.
//
// # Important Notes
//
//   - A Buffer must be released exactly once; a second Release is a bug.
//   - Huge allocations are never cached and always freed immediately.
//   - Metrics() returns a snapshot per arena kind and also refreshes the
//     Allocator's own Prometheus gauges (which New does not register).
package pool
