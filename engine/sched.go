package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/so-runtime/hostcall"
)

// scheduler serializes guest execution and gives each thread its own slice of
// the shared shadow stack.
type scheduler struct {
	gil    sync.Mutex
	sp     api.MutableGlobal
	alloc  func(size, align uint32) (uint32, error)
	stacks map[uint32]uint32 // thread -> saved stack pointer
	size   uint32
	mu     sync.Mutex
}

func newScheduler(sp api.MutableGlobal, mainTop, size uint32, alloc func(size, align uint32) (uint32, error)) *scheduler {
	return &scheduler{
		sp:     sp,
		alloc:  alloc,
		size:   size,
		stacks: map[uint32]uint32{hostcall.MainThread: mainTop},
	}
}

// enter takes the guest lock for the calling thread and installs its stack
// pointer. A thread seen for the first time gets a fresh stack.
func (s *scheduler) enter(ctx context.Context) error {
	tid := hostcall.ThreadID(ctx)
	s.mu.Lock()
	sp, ok := s.stacks[tid]
	s.mu.Unlock()
	if !ok {
		base, err := s.alloc(s.size, 16)
		if err != nil {
			return err
		}
		sp = base + s.size
		s.mu.Lock()
		s.stacks[tid] = sp
		s.mu.Unlock()
		Logger().Debug("thread stack", zap.Uint32("tid", tid), zap.Uint32("top", sp))
	}
	s.gil.Lock()
	s.sp.Set(uint64(sp))
	return nil
}

// leave saves the calling thread's stack pointer and releases the lock.
func (s *scheduler) leave(ctx context.Context) {
	sp := uint32(s.sp.Get())
	s.mu.Lock()
	s.stacks[hostcall.ThreadID(ctx)] = sp
	s.mu.Unlock()
	s.gil.Unlock()
}

// threads reports how many threads have a stack.
func (s *scheduler) threads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stacks)
}
