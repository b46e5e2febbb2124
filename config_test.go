package pool

import "testing"

func TestConfigValidateRejectsBadPageSize(t *testing.T) {
	cfg := NewConfig()
	cfg.PageSize = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a non-power-of-two page size")
	}
}

func TestConfigValidateRejectsExcessiveOrder(t *testing.T) {
	cfg := NewConfig()
	cfg.MaxOrder = maxAllowedOrder + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for maxOrder beyond the allowed ceiling")
	}
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	cfg := NewConfig().withDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestConfigWithDefaultsFillsProviders(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.HeapProvider == nil || cfg.DirectProvider == nil {
		t.Fatal("withDefaults must supply default providers")
	}
	if cfg.Logger == nil {
		t.Fatal("withDefaults must supply a default logger")
	}
}

func TestDefaultArenaCountUsesBudgetWhenSet(t *testing.T) {
	chunkSize := 1 << 20
	maxBytes := int64(chunkSize) * 6 * 3 // exactly 3 arenas worth
	if got := defaultArenaCount(maxBytes, chunkSize); got > 3 {
		t.Errorf("defaultArenaCount with a 3-arena budget returned %d, expected <= 3", got)
	}
}

func TestDefaultArenaCountFallsBackToCoresWithNoBudget(t *testing.T) {
	if got := defaultArenaCount(0, 1<<20); got <= 0 {
		t.Errorf("defaultArenaCount with no budget should return a positive core count, got %d", got)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 4, 1024, 4096} {
		if !isPowerOfTwo(n) {
			t.Errorf("isPowerOfTwo(%d) = false, want true", n)
		}
	}
	for _, n := range []int{0, -1, 3, 100, 6000} {
		if isPowerOfTwo(n) {
			t.Errorf("isPowerOfTwo(%d) = true, want false", n)
		}
	}
}
