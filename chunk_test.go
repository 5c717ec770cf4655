package vmem

import (
	"math"
	"testing"

	"github.com/ember-lang/vmem/host"
)

func newTestChunk(t *testing.T, capacity uint32) *Chunk {
	t.Helper()

	c, err := newChunk(host.Heap{}, capacity)
	if err != nil {
		t.Fatalf("newChunk: %v", err)
	}

	return c
}

func TestChunkReserveFirstFit(t *testing.T) {
	c := newTestChunk(t, 64)

	s, ok := c.Reserve(16)
	if !ok {
		t.Fatal("expected Reserve to succeed")
	}

	if s.Size != 16 {
		t.Errorf("Size = %d, want 16", s.Size)
	}

	if !c.Owns(s) {
		t.Error("chunk should own its own reservation")
	}

	if c.table.freeFront().size != 48 {
		t.Errorf("remaining free = %d, want 48", c.table.freeFront().size)
	}
}

func TestChunkReserveRejectsZeroAndMax(t *testing.T) {
	c := newTestChunk(t, 64)

	if _, ok := c.Reserve(0); ok {
		t.Error("Reserve(0) should fail")
	}

	if _, ok := c.Reserve(math.MaxUint32); ok {
		t.Error("Reserve(MaxUint32) should fail")
	}
}

func TestChunkReserveFailsWhenTooLarge(t *testing.T) {
	c := newTestChunk(t, 64)

	if _, ok := c.Reserve(128); ok {
		t.Error("Reserve beyond capacity should fail")
	}
}

func TestChunkReleaseRoundTrip(t *testing.T) {
	c := newTestChunk(t, 64)

	s, _ := c.Reserve(32)

	if status := c.Release(s); status != StatusOK {
		t.Fatalf("Release() = %s, want ok", status)
	}

	if c.table.freeTotal() != 64 {
		t.Errorf("freeTotal() = %d, want 64 after release", c.table.freeTotal())
	}

	if c.Owns(s) {
		t.Error("chunk should not own a released slice")
	}
}

func TestChunkReleaseNullAndUnknown(t *testing.T) {
	c := newTestChunk(t, 64)

	if status := c.Release(nil); status != StatusNullMemory {
		t.Errorf("Release(nil) = %s, want null memory", status)
	}

	foreign := &Slice{Addr: 0xdead, Size: 4}

	if status := c.Release(foreign); status != StatusUnknownAddress {
		t.Errorf("Release(foreign) = %s, want unknown address", status)
	}
}

func TestChunkResizeGrowInPlace(t *testing.T) {
	c := newTestChunk(t, 64)

	s, _ := c.Reserve(16)
	// Leave a neighbour reservation between s and the rest of free space,
	// then free it so s has room to grow into exactly that space.
	spacer, _ := c.Reserve(16)
	c.Release(spacer)

	if status := c.Resize(s, 32); status != StatusOK {
		t.Fatalf("Resize() = %s, want ok", status)
	}

	if s.Size != 32 {
		t.Errorf("Size = %d, want 32", s.Size)
	}
}

func TestChunkResizeShrinkReleasesTail(t *testing.T) {
	c := newTestChunk(t, 64)

	s, _ := c.Reserve(32)

	if status := c.Resize(s, 8); status != StatusOK {
		t.Fatalf("Resize() = %s, want ok", status)
	}

	if s.Size != 8 {
		t.Errorf("Size = %d, want 8", s.Size)
	}

	if c.table.freeTotal() != 56 {
		t.Errorf("freeTotal() = %d, want 56", c.table.freeTotal())
	}
}

func TestChunkResizeNoOpWhenSizeUnchanged(t *testing.T) {
	c := newTestChunk(t, 64)

	s, _ := c.Reserve(32)
	addr := s.Addr

	if status := c.Resize(s, 32); status != StatusOK {
		t.Fatalf("Resize() = %s, want ok", status)
	}

	if s.Addr != addr {
		t.Error("no-op resize should not move the slice")
	}
}

func TestChunkResizeStatuses(t *testing.T) {
	c := newTestChunk(t, 64)
	s, _ := c.Reserve(16)

	if status := c.Resize(nil, 16); status != StatusNullMemory {
		t.Errorf("Resize(nil, _) = %s, want null memory", status)
	}

	foreign := &Slice{Addr: 0xdead, Size: 4}
	if status := c.Resize(foreign, 8); status != StatusUnknownAddress {
		t.Errorf("Resize(foreign, _) = %s, want unknown address", status)
	}

	if status := c.Resize(s, 0); status != StatusZeroSize {
		t.Errorf("Resize(s, 0) = %s, want zero size", status)
	}

	if status := c.Resize(s, 128); status != StatusZeroCapacity {
		t.Errorf("Resize(s, 128) = %s, want zero capacity", status)
	}
}

func TestChunkResizeFragmentedVsNoMemory(t *testing.T) {
	c := newTestChunk(t, 64)

	a, _ := c.Reserve(16)
	b, _ := c.Reserve(16)
	_, _ = c.Reserve(16) // b's right-hand neighbour; 16 bytes stay free at the tail

	c.Release(a)
	// Now 16 free bytes exist past b's neighbour, plus the 16 bytes at
	// the front (from a) which are not adjacent to b: growing b by 16
	// should report fragmented memory (total free suffices, no single
	// adjacent region does), not no-memory.
	if status := c.Resize(b, 32); status != StatusFragmentedMemory {
		t.Errorf("Resize(b, 32) = %s, want fragmented memory", status)
	}

	if status := c.Resize(b, 50); status != StatusNoMemory {
		t.Errorf("Resize(b, 50) = %s, want no memory", status)
	}
}

func TestChunkDefragmentCompactsAndUpdatesAddresses(t *testing.T) {
	c := newTestChunk(t, 48)

	a, _ := c.Reserve(16)
	b, _ := c.Reserve(16)
	cc, _ := c.Reserve(16)

	c.Release(a)
	c.Release(cc)

	if c.CanReserve(32) {
		t.Fatal("32 bytes should not fit in any single free region before defragmentation")
	}

	if !c.IsFragmented(32) {
		t.Fatal("chunk should report fragmentation for a 32-byte request")
	}

	if !c.WorthDefragmentation() {
		t.Fatal("chunk should report defragmentation as worthwhile")
	}

	bAddrBefore := b.Addr

	c.Defragment()

	if b.Addr == bAddrBefore {
		t.Error("defragment should have moved b toward the base")
	}

	if b.Addr != c.base {
		t.Errorf("b.Addr = %#x, want chunk base %#x", b.Addr, c.base)
	}

	if !c.CanReserve(32) {
		t.Error("32 bytes should fit after defragmentation")
	}
}

func TestChunkDefragmentIdempotent(t *testing.T) {
	c := newTestChunk(t, 64)

	a, _ := c.Reserve(16)
	_, _ = c.Reserve(16)
	c.Release(a)

	c.Defragment()
	freeLenAfterFirst := c.table.free.Len()

	c.Defragment()

	if c.table.free.Len() != freeLenAfterFirst {
		t.Error("repeated defragment should be idempotent")
	}
}

func TestChunkWorthDefragmentationFalseWithoutFragmentation(t *testing.T) {
	c := newTestChunk(t, 64)

	if c.WorthDefragmentation() {
		t.Error("a single free region is never worth defragmenting")
	}

	c.Reserve(32)

	if c.WorthDefragmentation() {
		t.Error("a single remaining free region is never worth defragmenting")
	}
}
