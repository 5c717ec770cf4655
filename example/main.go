// Command example demonstrates allocating, resizing and releasing memory
// through a vmem.VirtualMemory instance.
package main

import (
	"fmt"
	"log"

	"github.com/ember-lang/vmem"
)

func main() {
	vm, err := vmem.New(vmem.MinChunkCapacity)
	if err != nil {
		log.Fatalf("vmem.New: %v", err)
	}
	defer vm.Close()

	fmt.Printf("allocating %d slices\n", 8)

	slices := make([]*vmem.Slice, 0, 8)

	for i := 0; i < 8; i++ {
		s, ok := vm.Alloc(256)
		if !ok {
			log.Fatalf("Alloc failed at slice %d", i)
		}

		slices = append(slices, s)
	}

	fmt.Printf("allocated total: %d bytes\n", vm.AllocatedTotal())

	// Free every other slice to create a fragmented free pattern, then
	// grow a survivor beyond what any single free region can satisfy.
	for i := 0; i < len(slices); i += 2 {
		vm.Free(slices[i])
	}

	grown := vm.Realloc(slices[1], 1024)
	slices[1] = grown
	fmt.Printf("grown slice: addr=%#x size=%d\n", grown.Addr, grown.Size)

	for i := 1; i < len(slices); i += 2 {
		if slices[i] == grown {
			vm.Free(grown)
			continue
		}

		vm.Free(slices[i])
	}

	fmt.Printf("allocated total after cleanup: %d bytes\n", vm.AllocatedTotal())
}
