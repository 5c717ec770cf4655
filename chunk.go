package vmem

import (
	"math"
	"unsafe"

	"github.com/ember-lang/vmem/host"
)

// minFragmentedRegions is the smallest free-region count WorthDefragmentation
// considers worth compacting for. Below this there is no possible
// fragmentation to relieve.
const minFragmentedRegions = 2

// Chunk wraps one contiguous host-allocated buffer and the region table that
// tracks free and reserved ranges within it. A Chunk is created with exactly
// one free region spanning the whole buffer, and is destroyed (returning its
// buffer to the host allocator) only via VirtualMemory's own chunk
// lifecycle.
type Chunk struct {
	buf      []byte
	base     uintptr
	capacity uint32
	table    *regionTable
}

func newChunk(alloc host.Allocator, capacity uint32) (*Chunk, error) {
	buf, err := alloc.Alloc(capacity)
	if err != nil {
		return nil, err
	}

	var base uintptr
	if len(buf) > 0 {
		base = uintptr(unsafe.Pointer(&buf[0]))
	}

	return &Chunk{
		buf:      buf,
		base:     base,
		capacity: capacity,
		table:    newRegionTable(base, capacity),
	}, nil
}

func (c *Chunk) close(alloc host.Allocator) error {
	return alloc.Free(c.buf)
}

func (c *Chunk) offset(addr uintptr) uint32 {
	return uint32(addr - c.base)
}

// CanReserve reports whether some free region is large enough to satisfy size.
func (c *Chunk) CanReserve(size uint32) bool {
	return c.table.freeFind(func(r *region) bool { return r.size >= size }) != nil
}

// Reserve carves a size-byte reservation out of the first free region large
// enough to hold it (first-fit, by current free-list order). It returns
// (nil, false) if size is 0, math.MaxUint32, or no free region fits.
func (c *Chunk) Reserve(size uint32) (*Slice, bool) {
	if size == 0 || size == math.MaxUint32 {
		return nil, false
	}

	f := c.table.freeFind(func(r *region) bool { return r.size >= size })
	if f == nil {
		return nil, false
	}

	addr := f.addr

	if f.size == size {
		c.table.freeRemove(f)
	} else {
		f.addr += uintptr(size)
		f.size -= size
	}

	return c.table.reservedAdd(addr, size), true
}

// Release returns s's bytes to the free set and unions them with any
// touching neighbours.
func (c *Chunk) Release(s *Slice) Status {
	if s == nil {
		return StatusNullMemory
	}

	found := c.table.reservedLookup(s)
	if found == nil {
		return StatusUnknownAddress
	}

	c.table.reservedRemove(found)
	c.table.freeAdd(found.Addr, found.Size)
	c.table.freeUnion()

	return StatusOK
}

// Resize attempts to grow or shrink s in place. See Status for the meaning
// of each returned value.
func (c *Chunk) Resize(s *Slice, newSize uint32) Status {
	if s == nil {
		return StatusNullMemory
	}

	found := c.table.reservedLookup(s)
	if found == nil {
		return StatusUnknownAddress
	}

	if newSize == 0 {
		return StatusZeroSize
	}

	if newSize > c.capacity {
		return StatusZeroCapacity
	}

	if newSize == found.Size {
		return StatusOK
	}

	if newSize > found.Size {
		delta := newSize - found.Size
		growAddr := found.Addr + uintptr(found.Size)

		f := c.table.freeFind(func(r *region) bool { return r.addr == growAddr && r.size >= delta })
		if f == nil {
			if c.table.freeTotal() >= delta {
				return StatusFragmentedMemory
			}

			return StatusNoMemory
		}

		if f.size == delta {
			c.table.freeRemove(f)
		} else {
			f.addr += uintptr(delta)
			f.size -= delta
		}

		found.Size = newSize

		return StatusOK
	}

	// Shrink: release the tail back to the free set.
	delta := found.Size - newSize
	tailAddr := found.Addr + uintptr(newSize)

	c.table.freeAdd(tailAddr, delta)
	found.Size = newSize
	c.table.freeUnion()

	return StatusOK
}

// Defragment compacts all reserved regions to the low end of the chunk,
// preserving their relative order by address, and collapses the remaining
// space into a single free region. Slice addresses are updated in place.
func (c *Chunk) Defragment() {
	c.table.reservedSort()

	var offset uint32

	for e := c.table.reserved.Front(); e != nil; e = e.Next() {
		s := e.Value.(*Slice)
		newAddr := c.base + uintptr(offset)

		if s.Addr != newAddr {
			src := c.offset(s.Addr)
			copy(c.buf[offset:offset+s.Size], c.buf[src:src+s.Size])
			s.Addr = newAddr
		}

		offset += s.Size
	}

	c.table.free.Init()

	if remainder := c.capacity - offset; remainder > 0 {
		c.table.freeAdd(c.base+uintptr(offset), remainder)
	}
}

// IsFragmented reports whether size cannot be satisfied by any single free
// region even though total free bytes would suffice — i.e. whether
// defragmentation could unlock the request.
func (c *Chunk) IsFragmented(size uint32) bool {
	return !c.CanReserve(size) && c.table.freeTotal() >= size
}

// WorthDefragmentation is a pure function of the free-region shape (never of
// a pending request size) that gates whether Defragment is likely to help,
// to avoid thrashing on chunks with only trivial free-region counts.
func (c *Chunk) WorthDefragmentation() bool {
	if c.table.free.Len() < minFragmentedRegions {
		return false
	}

	var total, largest uint32

	for e := c.table.free.Front(); e != nil; e = e.Next() {
		size := e.Value.(*region).size
		total += size

		if size > largest {
			largest = size
		}
	}

	return largest < total
}

// Owns reports whether s's address lies within this chunk's buffer and s is
// present in the reserved set by identity.
func (c *Chunk) Owns(s *Slice) bool {
	if s == nil {
		return false
	}

	if s.Addr < c.base || s.Addr+uintptr(s.Size) > c.base+uintptr(c.capacity) {
		return false
	}

	return c.table.reservedLookup(s) != nil
}
