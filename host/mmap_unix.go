//go:build linux || darwin

package host

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mmap is an Allocator backed by an anonymous, private memory mapping
// obtained directly from the kernel. Unlike Heap, the returned buffer is
// never scanned or moved by the Go garbage collector, and its address
// remains stable for the lifetime of the mapping. Free must be called
// exactly once per buffer returned by Alloc.
type Mmap struct{}

// Alloc implements Allocator.
func (Mmap) Alloc(size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("host: mmap %d bytes: %w", size, err)
	}

	return buf, nil
}

// Free implements Allocator.
func (Mmap) Free(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("host: munmap: %w", err)
	}

	return nil
}
