package pool

import "testing"

func TestHandleNormalRoundTrip(t *testing.T) {
	h := encodeNormalHandle(12345)
	if h.IsSubpage() {
		t.Fatal("normal handle must not report IsSubpage")
	}
	if h.NodeID() != 12345 {
		t.Fatalf("NodeID() = %d, want 12345", h.NodeID())
	}
}

func TestHandleSubpageRoundTrip(t *testing.T) {
	h := encodeSubpageHandle(777, 200, 42)
	if !h.IsSubpage() {
		t.Fatal("subpage handle must report IsSubpage")
	}
	if h.NodeID() != 777 {
		t.Fatalf("NodeID() = %d, want 777", h.NodeID())
	}
	slot, gen := h.slotAndGeneration()
	if slot != 200 {
		t.Fatalf("slot = %d, want 200", slot)
	}
	if gen != 42 {
		t.Fatalf("generation = %d, want 42", gen)
	}
}

func TestHandleDistinctSlotsDistinctHandles(t *testing.T) {
	h1 := encodeSubpageHandle(1, 0, 1)
	h2 := encodeSubpageHandle(1, 1, 1)
	if h1 == h2 {
		t.Fatal("distinct slots on the same page must produce distinct handles")
	}
}

func TestHandleGenerationDistinguishesReuse(t *testing.T) {
	h1 := encodeSubpageHandle(1, 0, 1)
	h2 := encodeSubpageHandle(1, 0, 2)
	if h1 == h2 {
		t.Fatal("same node/slot with different generation must produce distinct handles")
	}
}
