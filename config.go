package pool

import (
	"math/bits"
	"runtime"

	"github.com/sirupsen/logrus"
)

// Default tunables for an Allocator's configuration.
const (
	DefaultPageSize                = 8192
	DefaultMaxOrder                = 11
	DefaultTinyCacheSize           = 512
	DefaultSmallCacheSize          = 256
	DefaultNormalCacheSize         = 64
	DefaultMaxCachedBufferCapacity = 32 * 1024
	DefaultCacheTrimInterval       = 8192
	DefaultCacheCleanupInterval    = 5000 // milliseconds

	maxAllowedOrder = 14
	maxChunkSize    = 1 << 30
)

// Config holds every allocator tunable. Zero-valued
// fields are replaced by their documented default in withDefaults(), the
// same "0 means use the default" convention applied field by field instead
// of to a single constructor parameter.
type Config struct {
	// NumHeapArenas is the number of pooled heap arenas. 0 triggers the
	// default formula (see withDefaults); a negative value is a BadConfig
	// error. Use HeapArenasExplicit to request "0 disables pooled heap
	// allocation" instead of "0 means compute the default."
	NumHeapArenas int
	// HeapArenasExplicit marks whether NumHeapArenas was deliberately set
	// to 0 to disable pooled heap, as opposed to left unset. Constructed
	// configs should use NewConfig() which sets this correctly; zero-value
	// Config{} is treated as "apply all defaults."
	HeapArenasExplicit bool

	NumDirectArenas      int
	DirectArenasExplicit bool

	// MaxHeapBytes/MaxDirectBytes feed the default arena-count formula
	// min(cores, max_bytes/chunk_size/6). Exposing them here is the only
	// way to make that formula computable when a caller wants an explicit
	// memory budget rather than one arena per core.
	MaxHeapBytes   int64
	MaxDirectBytes int64

	PageSize int
	MaxOrder int

	TinyCacheSize           int
	SmallCacheSize          int
	NormalCacheSize         int
	MaxCachedBufferCapacity int
	CacheTrimInterval       int
	CacheCleanupIntervalMS  int

	// HeapProvider/DirectProvider override the default chunk providers
	// (provider.go). Nil means use the built-in heap/direct providers.
	HeapProvider   ChunkProvider
	DirectProvider ChunkProvider

	// Logger overrides the default logrus entry (logging.go).
	Logger *logrus.Entry
}

// NewConfig returns a Config with every field at its spec-default value.
func NewConfig() Config {
	return Config{
		PageSize:                DefaultPageSize,
		MaxOrder:                DefaultMaxOrder,
		TinyCacheSize:           DefaultTinyCacheSize,
		SmallCacheSize:          DefaultSmallCacheSize,
		NormalCacheSize:         DefaultNormalCacheSize,
		MaxCachedBufferCapacity: DefaultMaxCachedBufferCapacity,
		CacheTrimInterval:       DefaultCacheTrimInterval,
		CacheCleanupIntervalMS:  DefaultCacheCleanupInterval,
	}
}

// withDefaults returns a copy of cfg with every unset field replaced by its
// documented default, and the heap/direct arena counts resolved via
// defaultArenaCount when not explicitly provided.
func (cfg Config) withDefaults() Config {
	out := cfg
	if out.PageSize == 0 {
		out.PageSize = DefaultPageSize
	}
	if out.MaxOrder == 0 {
		out.MaxOrder = DefaultMaxOrder
	}
	if out.TinyCacheSize == 0 {
		out.TinyCacheSize = DefaultTinyCacheSize
	}
	if out.SmallCacheSize == 0 {
		out.SmallCacheSize = DefaultSmallCacheSize
	}
	if out.NormalCacheSize == 0 {
		out.NormalCacheSize = DefaultNormalCacheSize
	}
	if out.MaxCachedBufferCapacity == 0 {
		out.MaxCachedBufferCapacity = DefaultMaxCachedBufferCapacity
	}
	if out.CacheTrimInterval == 0 {
		out.CacheTrimInterval = DefaultCacheTrimInterval
	}
	if out.CacheCleanupIntervalMS == 0 {
		out.CacheCleanupIntervalMS = DefaultCacheCleanupInterval
	}

	chunkSize := out.PageSize << uint(out.MaxOrder)
	if !out.HeapArenasExplicit && out.NumHeapArenas == 0 {
		out.NumHeapArenas = defaultArenaCount(out.MaxHeapBytes, chunkSize)
	}
	if !out.DirectArenasExplicit && out.NumDirectArenas == 0 {
		out.NumDirectArenas = defaultArenaCount(out.MaxDirectBytes, chunkSize)
	}
	if out.HeapProvider == nil {
		out.HeapProvider = heapProvider{}
	}
	if out.DirectProvider == nil {
		out.DirectProvider = directProvider{}
	}
	if out.Logger == nil {
		out.Logger = logrus.NewEntry(logrus.New())
	}
	return out
}

// defaultArenaCount computes min(cores, max_bytes / chunk_size / 6). When
// maxBytes is 0 (not configured) it falls back to one arena per
// core, since a zero memory budget would otherwise always yield 0 arenas
// and silently disable pooling for callers who never set a budget.
func defaultArenaCount(maxBytes int64, chunkSize int) int {
	cores := runtime.NumCPU()
	if maxBytes <= 0 {
		return cores
	}
	byBudget := int(maxBytes / int64(chunkSize) / 6)
	if byBudget < cores {
		return byBudget
	}
	return cores
}

// ChunkSize returns page_size << max_order.
func (cfg Config) ChunkSize() int {
	return cfg.PageSize << uint(cfg.MaxOrder)
}

// Validate checks cfg against every BadConfig condition.
func (cfg Config) Validate() error {
	if cfg.PageSize < 4096 || !isPowerOfTwo(cfg.PageSize) {
		return badConfig("pageSize must be power of two >= 4096, got %d", cfg.PageSize)
	}
	if cfg.MaxOrder < 0 || cfg.MaxOrder > maxAllowedOrder {
		return badConfig("maxOrder expected 0-%d, got %d", maxAllowedOrder, cfg.MaxOrder)
	}
	chunkSize := cfg.PageSize << uint(cfg.MaxOrder)
	if chunkSize <= 0 || chunkSize > maxChunkSize {
		return badConfig("chunkSize overflow: pageSize=%d maxOrder=%d", cfg.PageSize, cfg.MaxOrder)
	}
	if cfg.NumHeapArenas < 0 {
		return badConfig("numHeapArenas must be >= 0, got %d", cfg.NumHeapArenas)
	}
	if cfg.NumDirectArenas < 0 {
		return badConfig("numDirectArenas must be >= 0, got %d", cfg.NumDirectArenas)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
