//go:build !linux && !darwin

package host

// Mmap falls back to Heap on platforms without an anonymous-mmap
// implementation wired up here.
type Mmap = Heap
