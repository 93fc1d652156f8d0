package libc

import (
	"sync"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/memory"
)

const minAlign = 8

// Heap implements malloc and friends over a foreign allocator, remembering
// block sizes for realloc and malloc_usable_size.
// It is safe for concurrent use.
type Heap struct {
	sizes map[uint32]heapBlock
	mu    sync.Mutex
	bytes uint64
}

type heapBlock struct {
	size  uint32
	align uint32
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{sizes: make(map[uint32]heapBlock)}
}

// Malloc allocates size bytes. A zero size allocates a minimal block.
func (h *Heap) Malloc(mem soruntime.Space, size uint32) (uint32, error) {
	return h.Memalign(mem, minAlign, size)
}

// Memalign allocates size bytes aligned to align.
func (h *Heap) Memalign(mem soruntime.Space, align, size uint32) (uint32, error) {
	if align < minAlign {
		align = minAlign
	}
	if size == 0 {
		size = 1
	}
	p, err := mem.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	h.sizes[p] = heapBlock{size: size, align: align}
	h.bytes += uint64(size)
	h.mu.Unlock()
	return p, nil
}

// Calloc allocates n*size zeroed bytes.
func (h *Heap) Calloc(mem soruntime.Space, n, size uint32) (uint32, error) {
	total := uint64(n) * uint64(size)
	if total > uint64(^uint32(0)) {
		return 0, errOverflow
	}
	p, err := h.Malloc(mem, uint32(total))
	if err != nil {
		return 0, err
	}
	if err := memory.Fill(mem, p, 0, uint32(total)); err != nil {
		h.Free(mem, p)
		return 0, err
	}
	return p, nil
}

// Realloc resizes ptr, moving its contents.
func (h *Heap) Realloc(mem soruntime.Space, ptr, size uint32) (uint32, error) {
	if ptr == 0 {
		return h.Malloc(mem, size)
	}
	if size == 0 {
		h.Free(mem, ptr)
		return 0, nil
	}
	old, ok := h.block(ptr)
	if !ok {
		return 0, errUnknownBlock
	}
	if size <= old.size {
		return ptr, nil
	}
	p, err := h.Malloc(mem, size)
	if err != nil {
		return 0, err
	}
	data, err := mem.Read(ptr, old.size)
	if err == nil {
		err = mem.Write(p, data)
	}
	if err != nil {
		h.Free(mem, p)
		return 0, err
	}
	h.Free(mem, ptr)
	return p, nil
}

// Free releases ptr. Null and unknown pointers are ignored.
func (h *Heap) Free(mem soruntime.Space, ptr uint32) {
	if ptr == 0 {
		return
	}
	h.mu.Lock()
	b, ok := h.sizes[ptr]
	delete(h.sizes, ptr)
	if ok {
		h.bytes -= uint64(b.size)
	}
	h.mu.Unlock()
	if ok {
		mem.Free(ptr, b.size, b.align)
	}
}

// UsableSize reports the size of the block at ptr.
func (h *Heap) UsableSize(ptr uint32) uint32 {
	b, _ := h.block(ptr)
	return b.size
}

// Live reports the number of live blocks and their total size.
func (h *Heap) Live() (int, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sizes), h.bytes
}

func (h *Heap) block(ptr uint32) (heapBlock, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.sizes[ptr]
	return b, ok
}
