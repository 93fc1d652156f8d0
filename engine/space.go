package engine

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/memory"
)

// guestSpace exposes the core's linear memory as a Space. The heap grows
// memory on demand.
type guestSpace struct {
	mem   api.Memory
	heap  *memory.Arena
	limit uint64
	mu    sync.RWMutex
}

var _ soruntime.Space = (*guestSpace)(nil)
var _ soruntime.MemorySizer = (*guestSpace)(nil)

func newGuestSpace(mem api.Memory, cfg Config) *guestSpace {
	limit := cfg.memoryLimit()
	heapLimit := uint32(0xFFFFFFFF)
	if limit < 1<<32 {
		heapLimit = uint32(limit)
	}
	return &guestSpace{
		mem:   mem,
		heap:  memory.NewArena(cfg.HeapBase, heapLimit),
		limit: limit,
	}
}

// ensure grows memory so that [0, end) is addressable. Caller holds s.mu.
func (s *guestSpace) ensure(end uint64) error {
	if end > s.limit {
		return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
			Detail("need %d bytes, memory is capped at %d", end, s.limit).Build()
	}
	want := uint32((end + pageSize - 1) / pageSize)
	have := s.mem.Size() / pageSize
	if want <= have {
		return nil
	}
	if _, ok := s.mem.Grow(want - have); !ok {
		return errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Detail("grow memory by %d pages", want-have).Build()
	}
	debugf("memory grown to %d pages", want)
	return nil
}

// Reserve makes [base, base+size) addressable without allocating it.
func (s *guestSpace) Reserve(base, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure(uint64(base) + uint64(size))
}

func (s *guestSpace) Size() uint32 {
	return s.mem.Size()
}

func (s *guestSpace) Read(offset uint32, length uint32) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, offset, length)
	}
	return append([]byte(nil), view...), nil
}

func (s *guestSpace) Write(offset uint32, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, uint32(len(data)))
	}
	return nil
}

func (s *guestSpace) ReadU8(offset uint32) (uint8, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, offset, 1)
	}
	return v, nil
}

func (s *guestSpace) ReadU16(offset uint32) (uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.mem.ReadUint16Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, offset, 2)
	}
	return v, nil
}

func (s *guestSpace) ReadU32(offset uint32) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	return v, nil
}

func (s *guestSpace) ReadU64(offset uint32) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, offset, 8)
	}
	return v, nil
}

func (s *guestSpace) WriteU8(offset uint32, value uint8) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.mem.WriteByte(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, 1)
	}
	return nil
}

func (s *guestSpace) WriteU16(offset uint32, value uint16) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.mem.WriteUint16Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, 2)
	}
	return nil
}

func (s *guestSpace) WriteU32(offset uint32, value uint32) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	return nil
}

func (s *guestSpace) WriteU64(offset uint32, value uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, 8)
	}
	return nil
}

// CompareAndSwapU32 is atomic with respect to host accesses. Guest code only
// runs under the engine lock and never concurrently with another guest.
func (s *guestSpace) CompareAndSwapU32(offset, old, new uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.mem.ReadUint32Le(offset)
	if !ok {
		return false, errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	if cur != old {
		return false, nil
	}
	s.mem.WriteUint32Le(offset, new)
	return true, nil
}

func (s *guestSpace) Alloc(size, align uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ptr, err := s.heap.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	block, _ := s.heap.BlockSize(ptr)
	if err := s.ensure(uint64(ptr) + uint64(block)); err != nil {
		s.heap.Free(ptr)
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	return ptr, nil
}

func (s *guestSpace) Free(ptr, _, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap.Free(ptr)
}

// Live reports the number of live heap blocks.
func (s *guestSpace) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heap.Live()
}
