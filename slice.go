package vmem

import "github.com/google/uuid"

// Slice is the handle a caller holds to a reserved memory region. Addr may
// change across a Defragment triggered by Alloc or Realloc — the allocator
// mutates Addr in place on this very struct. A Realloc that cannot resize in
// place returns a different Slice and releases this one. A Slice is invalid
// once released, whether by Free or by such a Realloc.
type Slice struct {
	// Addr is the byte address of the reservation. Mutable only by the
	// allocator.
	Addr uintptr
	// Size is the current size in bytes of the reservation.
	Size uint32

	// id is a stable identity independent of Addr, used by the owning
	// chunk's reserved index so lookup, resize, and defragmentation never
	// need a linear scan over the reserved set.
	id uuid.UUID
}
