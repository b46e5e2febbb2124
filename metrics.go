package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SizeInUse returns the number of bytes currently allocated across all of
// the arena's chunks, generalizing a single bump-offset SizeInUse metric
// into chunkSize-freeBytes summed over chunks.
func (a *Arena) SizeInUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	sum := 0
	a.forEachChunk(func(c *Chunk) {
		sum += c.chunkSize - c.freeBytes
	})
	return sum
}

// NumChunks returns the number of chunks currently owned by the arena.
func (a *Arena) NumChunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.numChunks
}

// Capacity returns the total backing capacity of all chunks in the arena.
func (a *Arena) Capacity() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	sum := 0
	a.forEachChunk(func(c *Chunk) {
		sum += c.chunkSize
	})
	return sum
}

// Utilization returns SizeInUse/Capacity, or 0 if the arena holds no
// chunks (teacher's ArenaMetrics.Utilization, same divide-by-zero guard).
func (a *Arena) Utilization() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	used := 0
	a.forEachChunk(func(c *Chunk) {
		total += c.chunkSize
		used += c.chunkSize - c.freeBytes
	})
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total)
}

// forEachChunk walks every band list. Callers must already hold a.mu.
func (a *Arena) forEachChunk(fn func(*Chunk)) {
	for b := range a.bands {
		for c := a.bands[b].head; c != nil; c = c.listNext {
			fn(c)
		}
	}
}

// ArenaMetrics is a point-in-time snapshot of one arena's statistics,
// generalizing a single bump-arena's offset/capacity pair into the
// chunked q-band design.
type ArenaMetrics struct {
	SizeInUse   int
	Capacity    int
	NumChunks   int
	ChunkSize   int
	Utilization float64
}

// Metrics returns a snapshot of a single arena's statistics.
func (a *Arena) Metrics() ArenaMetrics {
	return ArenaMetrics{
		SizeInUse:   a.SizeInUse(),
		Capacity:    a.Capacity(),
		NumChunks:   a.NumChunks(),
		ChunkSize:   a.cfg.ChunkSize(),
		Utilization: a.Utilization(),
	}
}

// Metrics is the Allocator-wide Prometheus collector set, created once per
// Allocator, using github.com/prometheus/client_golang gauges and
// counters.
type Metrics struct {
	bytesInUse  *prometheus.GaugeVec
	chunks      *prometheus.GaugeVec
	allocations *prometheus.CounterVec
	releases    *prometheus.CounterVec
	oom         *prometheus.CounterVec
}

// NewMetrics builds an unregistered Metrics collector set. Allocator.New
// builds one this way and does not register it; its collectors stay live
// but unexposed, and Allocator.Metrics() works without Prometheus wired up.
func NewMetrics() *Metrics {
	return &Metrics{
		bytesInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pool",
			Name:      "bytes_in_use",
			Help:      "Bytes currently allocated, by arena kind.",
		}, []string{"kind"}),
		chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pool",
			Name:      "chunks",
			Help:      "Chunks currently owned by arenas, by arena kind.",
		}, []string{"kind"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pool",
			Name:      "allocations_total",
			Help:      "Allocation requests served, by arena kind and size class.",
		}, []string{"kind", "class"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pool",
			Name:      "releases_total",
			Help:      "Buffers released, by arena kind.",
		}, []string{"kind"}),
		oom: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pool",
			Name:      "out_of_memory_total",
			Help:      "OutOfMemory errors returned to callers, by arena kind.",
		}, []string{"kind"}),
	}
}

// Register adds every collector to reg. Safe to skip entirely: an
// Allocator built without Register'd metrics still updates its counters,
// it just has no Prometheus exposition.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.bytesInUse, m.chunks, m.allocations, m.releases, m.oom} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) recordAllocation(kindLabel string, class sizeClassKind) {
	m.allocations.WithLabelValues(kindLabel, class.String()).Inc()
}

func (m *Metrics) recordRelease(kindLabel string) {
	m.releases.WithLabelValues(kindLabel).Inc()
}

func (m *Metrics) recordOOM(kindLabel string) {
	m.oom.WithLabelValues(kindLabel).Inc()
}

func (m *Metrics) observeArena(kindLabel string, a *Arena) {
	m.bytesInUse.WithLabelValues(kindLabel).Set(float64(a.SizeInUse()))
	m.chunks.WithLabelValues(kindLabel).Set(float64(a.NumChunks()))
}
