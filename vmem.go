package vmem

import (
	"fmt"
	"math"

	"github.com/ember-lang/vmem/host"
)

const (
	// MinChunkCapacity is the smallest capacity a chunk may be created with.
	MinChunkCapacity uint32 = 64
	// MaxChunkCapacity is the largest capacity a chunk may be created with.
	MaxChunkCapacity uint32 = math.MaxUint32
)

// VirtualMemory owns an ordered sequence of chunks and implements the
// placement policy that decides, on a miss, whether to grow (add a chunk)
// or defragment an existing one.
//
// VirtualMemory is not thread-safe. All public methods require exclusive
// access to the instance; a caller sharing one across goroutines must wrap
// it in its own mutual-exclusion primitive.
type VirtualMemory struct {
	chunks []*Chunk

	allocatedTotal    uint32
	maxAllocatedBytes uint32

	hostAlloc host.Allocator
	diag      DiagnosticSink
}

// Option configures a VirtualMemory at construction time.
type Option func(*VirtualMemory)

// WithHostAllocator overrides the default heap-backed host.Allocator.
func WithHostAllocator(alloc host.Allocator) Option {
	return func(vm *VirtualMemory) { vm.hostAlloc = alloc }
}

// WithDiagnosticSink overrides the default log-backed DiagnosticSink.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(vm *VirtualMemory) { vm.diag = sink }
}

// New constructs a VirtualMemory with one initial chunk sized to
// initialCapacity (rounded up to a power of two, at least MinChunkCapacity).
func New(initialCapacity uint32, opts ...Option) (*VirtualMemory, error) {
	vm := &VirtualMemory{
		hostAlloc: host.Heap{},
		diag:      newLogSink(),
	}

	for _, opt := range opts {
		opt(vm)
	}

	if err := vm.addChunk(initialCapacity); err != nil {
		return nil, err
	}

	return vm, nil
}

// nextPowerOfTwo returns the smallest power of two >= max(n, MinChunkCapacity),
// clamped to MaxChunkCapacity if doubling would overflow uint32.
func nextPowerOfTwo(n uint32) uint32 {
	if n < MinChunkCapacity {
		n = MinChunkCapacity
	}

	p := MinChunkCapacity

	for p < n {
		if p > MaxChunkCapacity/2 {
			return MaxChunkCapacity
		}

		p *= 2
	}

	return p
}

// addChunk requests a new chunk from the host allocator, sized to the
// high-water mark of every capacity ever requested (not to requested
// itself), and appends it to the chunk list.
func (vm *VirtualMemory) addChunk(requested uint32) error {
	requested = nextPowerOfTwo(requested)

	if requested > vm.maxAllocatedBytes {
		vm.maxAllocatedBytes = requested
	}

	c, err := newChunk(vm.hostAlloc, vm.maxAllocatedBytes)
	if err != nil {
		return err
	}

	vm.chunks = append(vm.chunks, c)

	return nil
}

func (vm *VirtualMemory) findChunk(pred func(*Chunk) bool) *Chunk {
	for _, c := range vm.chunks {
		if pred(c) {
			return c
		}
	}

	return nil
}

func (vm *VirtualMemory) reserveScan(size uint32) (*Slice, bool) {
	c := vm.findChunk(func(c *Chunk) bool { return c.CanReserve(size) })
	if c == nil {
		return nil, false
	}

	s, ok := c.Reserve(size)
	if !ok {
		return nil, false
	}

	vm.allocatedTotal += size

	return s, true
}

func (vm *VirtualMemory) growAndAlloc(size uint32) (*Slice, bool) {
	before := len(vm.chunks)

	if err := vm.addChunk(size); err == nil {
		c := vm.chunks[len(vm.chunks)-1]

		if c.CanReserve(size) {
			if s, ok := c.Reserve(size); ok {
				vm.allocatedTotal += size
				return s, true
			}
		}

		vm.chunks = vm.chunks[:before]
		if err := c.close(vm.hostAlloc); err != nil {
			vm.diag.Report(Diagnostic{Kind: DiagUnknownFault, Message: fmt.Sprintf("closing unused chunk: %v", err)})
		}
	}

	for _, c := range vm.chunks {
		c.Defragment()
	}

	return vm.reserveScan(size)
}

func (vm *VirtualMemory) defragmentOrGrow(size uint32) (*Slice, bool) {
	c := vm.findChunk(func(c *Chunk) bool { return c.IsFragmented(size) && c.WorthDefragmentation() })
	if c == nil {
		return vm.growAndAlloc(size)
	}

	c.Defragment()

	if s, ok := c.Reserve(size); ok {
		vm.allocatedTotal += size
		return s, true
	}

	return vm.reserveScan(size)
}

// Alloc reserves size bytes somewhere in the virtual memory, scanning
// existing chunks first and falling back to defragmentation or growth on a
// miss. It returns (nil, false) for size == 0, size == math.MaxUint32, or
// when no chunk can be grown to satisfy the request.
func (vm *VirtualMemory) Alloc(size uint32) (*Slice, bool) {
	if size == 0 || size == math.MaxUint32 {
		return nil, false
	}

	if s, ok := vm.reserveScan(size); ok {
		return s, true
	}

	return vm.defragmentOrGrow(size)
}

func (vm *VirtualMemory) copyAndMove(old, fresh *Slice, oldChunk *Chunk) {
	n := old.Size
	if fresh.Size < n {
		n = fresh.Size
	}

	freshChunk := vm.findChunk(func(c *Chunk) bool { return c.Owns(fresh) })
	if freshChunk != nil {
		srcOff := oldChunk.offset(old.Addr)
		dstOff := freshChunk.offset(fresh.Addr)
		copy(freshChunk.buf[dstOff:dstOff+n], oldChunk.buf[srcOff:srcOff+n])
	}

	if status := oldChunk.Release(old); status == StatusOK {
		vm.allocatedTotal -= old.Size
	}
}

// Realloc resizes s to newSize, in place when possible and via
// alloc-copy-free otherwise, in which case the returned Slice differs from s
// and s is released. Realloc(nil, n) behaves as Alloc(n). If s is
// not owned by any chunk in this VirtualMemory, DiagUnknownChunk is
// reported and s is returned unchanged.
func (vm *VirtualMemory) Realloc(s *Slice, newSize uint32) *Slice {
	if s == nil {
		fresh, _ := vm.Alloc(newSize)
		return fresh
	}

	c := vm.findChunk(func(c *Chunk) bool { return c.Owns(s) })
	if c == nil {
		vm.diag.Report(Diagnostic{Kind: DiagUnknownChunk, Message: "realloc of a slice not owned by any chunk"})
		return s
	}

	oldSize := s.Size

	// A size the owning chunk could not hold even when empty is moved to a
	// new chunk instead of being resized in place.
	status := StatusNoMemory
	if newSize <= c.capacity || newSize == math.MaxUint32 {
		status = c.Resize(s, newSize)
	}

	switch status {
	case StatusOK:
		vm.allocatedTotal = uint32(int64(vm.allocatedTotal) - int64(oldSize) + int64(newSize))
		return s

	case StatusNoMemory:
		fresh, ok := vm.growAndAlloc(newSize)
		if !ok {
			return s
		}

		vm.copyAndMove(s, fresh, c)

		return fresh

	case StatusFragmentedMemory:
		fresh, ok := vm.defragmentOrGrow(newSize)
		if !ok {
			return s
		}

		vm.copyAndMove(s, fresh, c)

		return fresh

	case StatusNullMemory:
		fresh, _ := vm.Alloc(newSize)
		return fresh

	case StatusZeroCapacity:
		vm.diag.Report(Diagnostic{Kind: DiagZeroCapacity, Message: fmt.Sprintf("resize to %d exceeds owned chunk capacity", newSize)})
		return s

	default:
		vm.diag.Report(Diagnostic{Kind: DiagUnknownFault, Message: fmt.Sprintf("resize returned %s", status)})
		return s
	}
}

// Free releases s. Free(nil) is a silent no-op. If s is not owned by any
// chunk, DiagUnknownChunk is reported and nothing is freed.
func (vm *VirtualMemory) Free(s *Slice) {
	if s == nil {
		return
	}

	c := vm.findChunk(func(c *Chunk) bool { return c.Owns(s) })
	if c == nil {
		vm.diag.Report(Diagnostic{Kind: DiagUnknownChunk, Message: "free of a slice not owned by any chunk"})
		return
	}

	size := s.Size

	switch status := c.Release(s); status {
	case StatusOK:
		vm.allocatedTotal -= size
	default:
		vm.diag.Report(Diagnostic{Kind: DiagUnknownFault, Message: fmt.Sprintf("release returned %s", status)})
	}
}

// AllocatedTotal returns the sum of sizes of every live reservation across
// all chunks.
func (vm *VirtualMemory) AllocatedTotal() uint32 {
	return vm.allocatedTotal
}

// Close returns every chunk's backing buffer to the host allocator. It is
// required for host.Mmap-backed VirtualMemory instances, where it unmaps the
// pages; it is a no-op per chunk under host.Heap.
func (vm *VirtualMemory) Close() error {
	for _, c := range vm.chunks {
		if err := c.close(vm.hostAlloc); err != nil {
			return err
		}
	}

	vm.chunks = nil

	return nil
}
