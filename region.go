package vmem

import (
	"container/list"
	"sort"

	"github.com/google/uuid"
)

// region is a plain (address, size) free byte range. Reserved ranges are
// tracked directly as *Slice values instead (see regionTable.reserved),
// since those are the structs callers hold and the allocator must be able
// to mutate in place.
type region struct {
	addr uintptr
	size uint32
}

// regionTable holds the two disjoint collections of ranges that partition
// one chunk's backing buffer: free regions and reserved slices. All
// operations here are infallible; invalid inputs (zero size, nil argument)
// are no-ops, matching the calling conventions of the chunk that owns this
// table.
type regionTable struct {
	free     *list.List // Value: *region
	reserved *list.List // Value: *Slice, ordered; sorted by address after reservedSort
	index    map[uuid.UUID]*list.Element
}

func newRegionTable(base uintptr, capacity uint32) *regionTable {
	t := &regionTable{
		free:     list.New(),
		reserved: list.New(),
		index:    make(map[uuid.UUID]*list.Element),
	}

	if capacity > 0 {
		t.free.PushBack(&region{addr: base, size: capacity})
	}

	return t
}

func (t *regionTable) freeAdd(addr uintptr, size uint32) {
	if size == 0 {
		return
	}

	t.free.PushBack(&region{addr: addr, size: size})
}

func (t *regionTable) freeRemove(r *region) {
	if r == nil {
		return
	}

	for e := t.free.Front(); e != nil; e = e.Next() {
		if e.Value.(*region) == r {
			t.free.Remove(e)
			return
		}
	}
}

func (t *regionTable) freeFind(pred func(*region) bool) *region {
	for e := t.free.Front(); e != nil; e = e.Next() {
		r := e.Value.(*region)
		if pred(r) {
			return r
		}
	}

	return nil
}

func (t *regionTable) freeFront() *region {
	if e := t.free.Front(); e != nil {
		return e.Value.(*region)
	}

	return nil
}

func (t *regionTable) freeTotal() uint32 {
	var total uint32

	for e := t.free.Front(); e != nil; e = e.Next() {
		total += e.Value.(*region).size
	}

	return total
}

// freeUnion sorts free regions by address and merges neighbours whose
// ranges touch, so that no two free regions remain adjacent afterwards.
func (t *regionTable) freeUnion() {
	regions := make([]*region, 0, t.free.Len())

	for e := t.free.Front(); e != nil; e = e.Next() {
		regions = append(regions, e.Value.(*region))
	}

	if len(regions) < 2 {
		return
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].addr < regions[j].addr })

	merged := regions[:1]

	for _, r := range regions[1:] {
		last := merged[len(merged)-1]

		if last.addr+uintptr(last.size) == r.addr {
			last.size += r.size
			continue
		}

		merged = append(merged, r)
	}

	t.free.Init()

	for _, r := range merged {
		t.free.PushBack(r)
	}
}

func (t *regionTable) reservedAdd(addr uintptr, size uint32) *Slice {
	if size == 0 {
		return nil
	}

	s := &Slice{Addr: addr, Size: size, id: uuid.New()}
	e := t.reserved.PushBack(s)
	t.index[s.id] = e

	return s
}

func (t *regionTable) reservedRemove(s *Slice) {
	if s == nil {
		return
	}

	e, ok := t.index[s.id]
	if !ok {
		return
	}

	t.reserved.Remove(e)
	delete(t.index, s.id)
}

func (t *regionTable) reservedLookup(s *Slice) *Slice {
	if s == nil {
		return nil
	}

	e, ok := t.index[s.id]
	if !ok {
		return nil
	}

	found := e.Value.(*Slice)
	if found != s {
		return nil
	}

	return found
}

func (t *regionTable) reservedFront() *Slice {
	if e := t.reserved.Front(); e != nil {
		return e.Value.(*Slice)
	}

	return nil
}

func (t *regionTable) reservedBack() *Slice {
	if e := t.reserved.Back(); e != nil {
		return e.Value.(*Slice)
	}

	return nil
}

func (t *regionTable) reservedTotal() uint32 {
	var total uint32

	for e := t.reserved.Front(); e != nil; e = e.Next() {
		total += e.Value.(*Slice).Size
	}

	return total
}

// reservedSort re-orders the reserved list ascending by address and rebuilds
// the identity index, since every element is re-inserted.
func (t *regionTable) reservedSort() {
	slices := make([]*Slice, 0, t.reserved.Len())

	for e := t.reserved.Front(); e != nil; e = e.Next() {
		slices = append(slices, e.Value.(*Slice))
	}

	sort.Slice(slices, func(i, j int) bool { return slices[i].Addr < slices[j].Addr })

	t.reserved.Init()
	t.index = make(map[uuid.UUID]*list.Element, len(slices))

	for _, s := range slices {
		e := t.reserved.PushBack(s)
		t.index[s.id] = e
	}
}
