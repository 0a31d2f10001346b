package guest

import "sync"

// Allocator hands out guest memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32) error
}

// Allocation records one guest allocation.
type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// AllocationList records the allocations made while lowering one object so a
// failed lower can return all of them.
type AllocationList struct {
	allocations []Allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{allocations: make([]Allocation, 0, 8)}
	},
}

const maxPooledAllocationCapacity = 128

// NewAllocationList returns an empty list from the pool.
func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

// Release returns the list to the pool. The list is invalid afterwards.
func (al *AllocationList) Release() {
	// Only pool small lists to prevent memory bloat
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.Reset()
	allocationListPool.Put(al)
}

// Add records an allocation.
func (al *AllocationList) Add(ptr, size, align uint32) {
	al.allocations = append(al.allocations, Allocation{Ptr: ptr, Size: size, Align: align})
}

// Free returns every recorded allocation to allocator, newest first, and
// reports how many could not be freed.
func (al *AllocationList) Free(allocator Allocator) int {
	if allocator == nil {
		return 0
	}
	failed := 0
	for i := len(al.allocations) - 1; i >= 0; i-- {
		a := al.allocations[i]
		if a.Ptr == 0 {
			continue
		}
		if err := allocator.Free(a.Ptr, a.Size, a.Align); err != nil {
			failed++
		}
	}
	al.Reset()
	return failed
}

// Reset forgets every recorded allocation without freeing it.
func (al *AllocationList) Reset() {
	al.allocations = al.allocations[:0]
}

// Count returns the number of recorded allocations.
func (al *AllocationList) Count() int {
	return len(al.allocations)
}
