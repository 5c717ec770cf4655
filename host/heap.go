package host

// Heap is the default Allocator, backed by the Go heap. Free is a no-op, the
// garbage collector reclaims the buffer once the chunk drops its last
// reference.
type Heap struct{}

// Alloc implements Allocator.
func (Heap) Alloc(size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	return make([]byte, size), nil
}

// Free implements Allocator.
func (Heap) Free(buf []byte) error {
	return nil
}
