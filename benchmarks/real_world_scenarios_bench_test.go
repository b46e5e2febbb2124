package pool_test

import (
	"sync"
	"testing"

	pool "github.com/netpool/pooledbuf"
)

// BenchmarkWebServerScenarios simulates real web server workloads: a
// request handler that pulls several differently-sized buffers from the
// pool and releases them at the end of the request.
func BenchmarkWebServerScenarios(b *testing.B) {
	b.Run("HTTPRequestHandler", func(b *testing.B) {
		b.Run("Pool", func(b *testing.B) {
			al := newBenchAllocator(b)
			thread := pool.NewThread()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				headers, err := al.NewHeapBuffer(20*16, thread)
				if err != nil {
					b.Fatalf("NewHeapBuffer: %v", err)
				}
				reqBody, _ := al.NewHeapBuffer(1024, thread)
				respBody, _ := al.NewHeapBuffer(2048, thread)
				temp, _ := al.NewHeapBuffer(50*8, thread)

				headers.Bytes()[0] = 1
				reqBody.Bytes()[0] = 1
				respBody.Bytes()[0] = 2
				temp.Bytes()[0] = 3

				headers.Release()
				reqBody.Release()
				respBody.Release()
				temp.Release()
			}
		})

		b.Run("Builtin", func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				requestHeaders := make([]string, 20)
				requestBody := make([]byte, 1024)
				responseBody := make([]byte, 2048)
				tempObjects := make([]int64, 50)

				for j := range requestHeaders {
					requestHeaders[j] = "header"
				}
				requestBody[0] = 1
				responseBody[0] = 2
				tempObjects[0] = 3
			}
		})
	})

	b.Run("ConnectionPool", func(b *testing.B) {
		const numConnections = 100

		b.Run("Pool_ThreadPerConnection", func(b *testing.B) {
			al := newBenchAllocator(b)
			threads := make([]*pool.Thread, numConnections)
			for i := range threads {
				threads[i] = pool.NewThread()
			}
			defer func() {
				for _, t := range threads {
					al.ReleaseThread(t)
				}
			}()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				t := threads[i%numConnections]

				buffer, err := al.NewHeapBuffer(256, t)
				if err != nil {
					b.Fatalf("NewHeapBuffer: %v", err)
				}
				meta, err := al.NewHeapBuffer(8, t)
				if err != nil {
					b.Fatalf("NewHeapBuffer: %v", err)
				}

				buffer.Bytes()[0] = byte(i)
				meta.Bytes()[0] = byte(i)

				buffer.Release()
				meta.Release()
			}
		})

		b.Run("Builtin", func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buffer := make([]byte, 256)
				metadata := new(int64)

				buffer[0] = byte(i)
				*metadata = int64(i)
			}
		})
	})
}

// BenchmarkDatabaseScenarios simulates bulk query-result buffering, the
// teacher's QueryResultProcessing benchmark translated to raw row buffers
// instead of a generic AllocSlice[DatabaseRow].
func BenchmarkDatabaseScenarios(b *testing.B) {
	const rowSize = 8 + 32 + 32 + 128 + 8 // id+name+email+data+timestamp, packed
	const rowsPerQuery = 1000

	b.Run("QueryResultProcessing", func(b *testing.B) {
		b.Run("Pool", func(b *testing.B) {
			al := newBenchAllocator(b)
			thread := pool.NewThread()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				rows, err := al.NewHeapBuffer(rowSize*rowsPerQuery, thread)
				if err != nil {
					b.Fatalf("NewHeapBuffer: %v", err)
				}
				data := rows.Bytes()
				var sum byte
				for j := 0; j < rowsPerQuery; j++ {
					data[j*rowSize] = byte(j)
					sum += data[j*rowSize]
				}
				rows.Release()
			}
		})

		b.Run("Builtin", func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rows := make([]byte, rowSize*rowsPerQuery)
				var sum byte
				for j := 0; j < rowsPerQuery; j++ {
					rows[j*rowSize] = byte(j)
					sum += rows[j*rowSize]
				}
			}
		})
	})
}

// BenchmarkConcurrentWorkloadScenarios tests a worker-pool pattern: one
// Thread per worker goroutine versus one Thread shared by every worker.
func BenchmarkConcurrentWorkloadScenarios(b *testing.B) {
	const numWorkers = 8
	const jobsPerWorker = 100

	b.Run("WorkerPoolPattern", func(b *testing.B) {
		b.Run("Pool_ThreadPerWorker", func(b *testing.B) {
			al := newBenchAllocator(b)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				wg.Add(numWorkers)
				for w := 0; w < numWorkers; w++ {
					go func(workerID int) {
						defer wg.Done()
						thread := pool.NewThread()
						defer al.ReleaseThread(thread)

						for j := 0; j < jobsPerWorker; j++ {
							buf, err := al.NewHeapBuffer(512, thread)
							if err != nil {
								return
							}
							result, err := al.NewHeapBuffer(8, thread)
							if err != nil {
								buf.Release()
								return
							}
							buf.Bytes()[0] = byte(workerID)
							result.Bytes()[0] = byte(workerID*jobsPerWorker + j)
							buf.Release()
							result.Release()
						}
					}(w)
				}
				wg.Wait()
			}
		})

		b.Run("Pool_SharedThread", func(b *testing.B) {
			al := newBenchAllocator(b)
			thread := pool.NewThread()
			defer al.ReleaseThread(thread)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				wg.Add(numWorkers)
				for w := 0; w < numWorkers; w++ {
					go func(workerID int) {
						defer wg.Done()
						for j := 0; j < jobsPerWorker; j++ {
							buf, err := al.NewHeapBuffer(512, thread)
							if err != nil {
								return
							}
							result, err := al.NewHeapBuffer(8, thread)
							if err != nil {
								buf.Release()
								return
							}
							buf.Bytes()[0] = byte(workerID)
							result.Bytes()[0] = byte(workerID*jobsPerWorker + j)
							buf.Release()
							result.Release()
						}
					}(w)
				}
				wg.Wait()
			}
		})

		b.Run("Builtin", func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				wg.Add(numWorkers)
				for w := 0; w < numWorkers; w++ {
					go func(workerID int) {
						defer wg.Done()
						for j := 0; j < jobsPerWorker; j++ {
							buffer := make([]byte, 512)
							result := new(int64)
							buffer[0] = byte(workerID)
							*result = int64(workerID*jobsPerWorker + j)
						}
					}(w)
				}
				wg.Wait()
			}
		})
	})
}
