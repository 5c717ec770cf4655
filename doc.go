// Package vmem implements a user-space virtual-memory allocator that sits
// above a pluggable host allocator (see package host) and hands out
// fixed-address memory regions ("slices") to a higher-level runtime, such as
// an interpreter whose values live in those slices.
//
// A VirtualMemory owns an ordered list of chunks, each wrapping one
// contiguous host-allocated buffer. Reservations are carved out of a chunk's
// free regions first-fit; when no chunk has a large enough free region, the
// allocator either grows (adds a new chunk) or defragments an existing,
// fragmented chunk, whichever the placement policy in Alloc decides is more
// promising.
//
// vmem assumes a single cooperating tenant per instance and is not
// thread-safe on its own; see the VirtualMemory doc comment.
package vmem
