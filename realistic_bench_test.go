package pool

import "testing"

// BenchmarkAllocatorRequestResponseCycle simulates a web-server-style
// request handler that allocates a small request buffer and a larger
// response buffer, then releases both, using one Thread per goroutine so
// the hot path stays thread-cached.
func BenchmarkAllocatorRequestResponseCycle(b *testing.B) {
	al, err := New(testConfig())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	defer al.Close()

	thread := NewThread()
	defer al.ReleaseThread(thread)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req, err := al.NewHeapBuffer(256, thread)
		if err != nil {
			b.Fatalf("NewHeapBuffer: %v", err)
		}
		resp, err := al.NewHeapBuffer(4096, thread)
		if err != nil {
			b.Fatalf("NewHeapBuffer: %v", err)
		}
		req.Release()
		resp.Release()
	}
}

// BenchmarkAllocatorParallelMixedSizes exercises concurrent goroutines each
// with their own Thread, covering tiny, small and normal size classes.
func BenchmarkAllocatorParallelMixedSizes(b *testing.B) {
	al, err := New(testConfig())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	defer al.Close()

	sizes := []int{16, 64, 512, 2048}

	b.RunParallel(func(pb *testing.PB) {
		thread := NewThread()
		defer al.ReleaseThread(thread)
		i := 0
		for pb.Next() {
			size := sizes[i%len(sizes)]
			i++
			buf, err := al.NewHeapBuffer(size, thread)
			if err != nil {
				b.Fatalf("NewHeapBuffer: %v", err)
			}
			buf.Release()
		}
	})
}

// BenchmarkBuiltinMakeMixedSizes is the non-pooled baseline these
// benchmarks compare against.
func BenchmarkBuiltinMakeMixedSizes(b *testing.B) {
	sizes := []int{16, 64, 512, 2048}
	for i := 0; i < b.N; i++ {
		buf := make([]byte, sizes[i%len(sizes)])
		_ = buf
	}
}
