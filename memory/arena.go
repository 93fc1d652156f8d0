package memory

import (
	"sort"

	"github.com/wippyai/so-runtime/errors"
)

type span struct {
	addr uint32
	size uint32
}

// Arena is a first-fit allocator over the window [base, limit). It only
// tracks addresses; callers own the backing storage and the locking.
type Arena struct {
	free   []span            // sorted by addr, coalesced
	blocks map[uint32]uint32 // live allocation -> size
}

// NewArena creates an arena covering [base, limit). A zero base is bumped so
// that address 0 is never handed out.
func NewArena(base, limit uint32) *Arena {
	if base == 0 {
		base = minAlign
	}
	a := &Arena{blocks: make(map[uint32]uint32)}
	if limit > base {
		a.free = []span{{addr: base, size: limit - base}}
	}
	return a
}

// Alloc returns a block of at least size bytes. Memory is not cleared.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if align < minAlign {
		align = minAlign
	}
	if align&(align-1) != 0 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("alignment %d is not a power of two", align).Build()
	}
	if size == 0 {
		size = 1
	}
	size = (size + minAlign - 1) &^ (minAlign - 1)

	for i, s := range a.free {
		start := (uint64(s.addr) + uint64(align) - 1) &^ (uint64(align) - 1)
		end := start + uint64(size)
		if end > uint64(s.addr)+uint64(s.size) {
			continue
		}
		var repl []span
		if lead := uint32(start) - s.addr; lead > 0 {
			repl = append(repl, span{addr: s.addr, size: lead})
		}
		if tail := uint32(uint64(s.addr) + uint64(s.size) - end); tail > 0 {
			repl = append(repl, span{addr: uint32(end), size: tail})
		}
		a.free = append(a.free[:i], append(repl, a.free[i+1:]...)...)
		a.blocks[uint32(start)] = size
		return uint32(start), nil
	}
	return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
}

// Free releases a block returned by Alloc. Unknown pointers are ignored.
func (a *Arena) Free(ptr uint32) {
	size, ok := a.blocks[ptr]
	if !ok {
		return
	}
	delete(a.blocks, ptr)

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].addr > ptr })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{addr: ptr, size: size}

	if i+1 < len(a.free) && uint64(a.free[i].addr)+uint64(a.free[i].size) == uint64(a.free[i+1].addr) {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && uint64(a.free[i-1].addr)+uint64(a.free[i-1].size) == uint64(a.free[i].addr) {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// BlockSize returns the recorded size of a live allocation.
func (a *Arena) BlockSize(ptr uint32) (uint32, bool) {
	size, ok := a.blocks[ptr]
	return size, ok
}

// Live reports the number of live allocations.
func (a *Arena) Live() int {
	return len(a.blocks)
}
