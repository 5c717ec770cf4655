// Package host abstracts the boundary across which a memory chunk's backing
// buffer is obtained from, and returned to, the underlying process. It is the
// "host allocator" referred to throughout the vmem package: vmem never calls
// make([]byte, n) or unix.Mmap directly, it always goes through an
// Allocator.
package host

// Allocator requests and releases the backing buffers chunks are carved
// from. Implementations must be safe to call with size == 0, returning a
// nil, non-error buffer in that case.
type Allocator interface {
	// Alloc returns a buffer of exactly size bytes, or an error if the host
	// cannot satisfy the request.
	Alloc(size uint32) ([]byte, error)

	// Free returns buf to the host. buf must have been returned by a prior
	// call to Alloc on the same Allocator. Free must be idempotent-safe
	// against a nil/empty buf.
	Free(buf []byte) error
}
