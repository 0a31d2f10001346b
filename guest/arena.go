package guest

import (
	"sort"

	"github.com/wippyai/ffiobject/errors"
)

// arenaGranule is the rounding unit for block sizes. It keeps every block
// start aligned to the object alignment when requests ask for less.
const arenaGranule = 8

type span struct {
	ptr  uint32
	size uint32
}

// Arena is a first-fit allocator over the tail of guest memory. The host owns
// every block it hands out; the guest reads and writes them but never frees
// them directly. Freed blocks are coalesced and the arena grows the memory a
// page at a time when it runs out. Pages the guest grows on its own are
// skipped, never handed out.
//
// Arena is not safe for concurrent use.
type Arena struct {
	mem   *Memory
	base  uint32
	top   uint32
	end   uint32 // memory the arena may bump into without growing
	free  []span // sorted by ptr, never adjacent
	used  map[uint32]uint32
	inUse uint64
}

// NewArena creates an arena whose blocks start at base. Memory between base
// and the current memory size belongs to the arena.
func NewArena(mem *Memory, base uint32) *Arena {
	base = max(alignUp(base, arenaGranule), arenaGranule)
	return &Arena{
		mem:  mem,
		base: base,
		top:  base,
		end:  max(base, mem.Size()),
		used: make(map[uint32]uint32),
	}
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// Alloc returns a block of at least size bytes aligned to align. A zero size
// returns a zero pointer.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseLower, "alignment must be a power of two")
	}
	if uint64(size)+arenaGranule > 1<<32 {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align)
	}
	size = alignUp(size, arenaGranule)

	for i, s := range a.free {
		start := alignUp(s.ptr, align)
		if start < s.ptr || uint64(start)+uint64(size) > uint64(s.ptr)+uint64(s.size) {
			continue
		}
		a.carve(i, start, size)
		a.used[start] = size
		a.inUse += uint64(size)
		return start, nil
	}

	a.skipGuestGrowth()
	start := uint64(alignUp(a.top, align))
	end := start + uint64(size)
	if start < uint64(a.top) || end > 1<<32 {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align)
	}
	if err := a.ensure(end); err != nil {
		return 0, err
	}
	a.end = max(a.end, a.mem.Size())
	if uint32(start) > a.top {
		a.insert(span{ptr: a.top, size: uint32(start) - a.top})
	}
	a.top = uint32(end)
	a.used[uint32(start)] = size
	a.inUse += uint64(size)
	return uint32(start), nil
}

// skipGuestGrowth moves the bump pointer past pages the guest grew itself.
// The unused tail of the arena's own memory stays available as a free span.
func (a *Arena) skipGuestGrowth() {
	size := a.mem.Size()
	if size <= a.end {
		return
	}
	if a.top < a.end {
		a.insert(span{ptr: a.top, size: a.end - a.top})
	}
	a.top = size
	a.end = size
}

// carve removes [start, start+size) from free span i.
func (a *Arena) carve(i int, start, size uint32) {
	s := a.free[i]
	var rest []span
	if start > s.ptr {
		rest = append(rest, span{ptr: s.ptr, size: start - s.ptr})
	}
	if end := start + size; end < s.ptr+s.size {
		rest = append(rest, span{ptr: end, size: s.ptr + s.size - end})
	}
	a.free = append(a.free[:i], append(rest, a.free[i+1:]...)...)
}

func (a *Arena) ensure(end uint64) error {
	size := uint64(a.mem.Size())
	if end <= size {
		return nil
	}
	pages := (end - size + PageSize - 1) / PageSize
	if _, ok := a.mem.Grow(uint32(pages)); !ok {
		return errors.New(errors.PhaseLower, errors.KindAllocation).
			Detail("cannot grow guest memory by %d pages", pages).
			Build()
	}
	return nil
}

// Free returns a block. Freeing a pointer the arena did not hand out, or
// freeing twice, is an error and changes nothing.
func (a *Arena) Free(ptr, size, align uint32) error {
	if ptr == 0 {
		return nil
	}
	recorded, ok := a.used[ptr]
	if !ok {
		return errors.New(errors.PhaseRelease, errors.KindInvalidInput).
			Value(ptr).
			Detail("free of unknown guest pointer 0x%x", ptr).
			Build()
	}
	if uint64(size) > uint64(recorded) {
		return errors.New(errors.PhaseRelease, errors.KindInvalidInput).
			Value(ptr).
			Detail("free of %d bytes exceeds block size %d", size, recorded).
			Build()
	}

	delete(a.used, ptr)
	a.inUse -= uint64(recorded)
	a.insert(span{ptr: ptr, size: recorded})
	a.trim()
	return nil
}

// insert adds a free span and merges it with its neighbours.
func (a *Arena) insert(s span) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].ptr > s.ptr })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s

	if i+1 < len(a.free) && a.free[i].ptr+a.free[i].size == a.free[i+1].ptr {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].ptr+a.free[i-1].size == a.free[i].ptr {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// trim folds a free span touching the bump pointer back into it.
func (a *Arena) trim() {
	if n := len(a.free); n > 0 {
		last := a.free[n-1]
		if last.ptr+last.size == a.top {
			a.top = last.ptr
			a.free = a.free[:n-1]
		}
	}
}

// Block returns the size of the block starting at ptr.
func (a *Arena) Block(ptr uint32) (uint32, bool) {
	size, ok := a.used[ptr]
	return size, ok
}

// Owns reports whether ptr is the start of a live block.
func (a *Arena) Owns(ptr uint32) bool {
	_, ok := a.used[ptr]
	return ok
}

// InUse returns the number of bytes in live blocks.
func (a *Arena) InUse() uint64 {
	return a.inUse
}

// Blocks returns the number of live blocks.
func (a *Arena) Blocks() int {
	return len(a.used)
}

// Base returns the first address the arena may hand out.
func (a *Arena) Base() uint32 {
	return a.base
}
