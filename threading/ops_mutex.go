package threading

import (
	"context"
	"time"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/resource"
)

// MutexAt returns the mutex behind the word at slot, materializing it.
func (s *Shim) MutexAt(mem soruntime.Space, slot uint32) (*Mutex, int32) {
	h, rc := materialize(mem, slot, func(f Flavor) (resource.Handle, bool) {
		h := s.mutexes.Insert(newMutex(f))
		return h, h != 0
	})
	if rc != 0 {
		return nil, rc
	}
	m, ok := s.mutexes.Get(h)
	if !ok {
		return nil, soruntime.EINVAL
	}
	return m, 0
}

// MutexInit builds a mutex at slot with the type stored at attr (0 for none).
func (s *Shim) MutexInit(mem soruntime.Space, slot, attr uint32) int32 {
	f := FlavorNormal
	if attr != 0 {
		v, err := mem.ReadU32(attr)
		if err != nil {
			return -1
		}
		f = flavorFromAttr(v)
	}
	h := s.mutexes.Insert(newMutex(f))
	if h == 0 {
		return -1
	}
	if err := mem.WriteU32(slot, uint32(h)); err != nil {
		s.mutexes.Remove(h)
		return -1
	}
	return 0
}

func (s *Shim) MutexLock(ctx context.Context, mem soruntime.Space, slot uint32) int32 {
	m, rc := s.MutexAt(mem, slot)
	if rc != 0 {
		return rc
	}
	return m.Lock(ctx, hostcall.ThreadID(ctx))
}

func (s *Shim) MutexTryLock(ctx context.Context, mem soruntime.Space, slot uint32) int32 {
	m, rc := s.MutexAt(mem, slot)
	if rc != 0 {
		return rc
	}
	return m.TryLock(hostcall.ThreadID(ctx))
}

func (s *Shim) MutexUnlock(ctx context.Context, mem soruntime.Space, slot uint32) int32 {
	m, rc := s.MutexAt(mem, slot)
	if rc != 0 {
		return rc
	}
	return m.Unlock(hostcall.ThreadID(ctx))
}

// MutexDestroy clears a ready word and frees its mutex. Empty and pending
// words are left alone.
func (s *Shim) MutexDestroy(mem soruntime.Space, slot uint32) int32 {
	if h, ok := release(mem, slot); ok {
		s.mutexes.Remove(h)
	}
	return 0
}

// CondAt returns the condition variable behind the word at slot.
func (s *Shim) CondAt(mem soruntime.Space, slot uint32) (*Cond, int32) {
	h, rc := materialize(mem, slot, func(Flavor) (resource.Handle, bool) {
		h := s.conds.Insert(newCond())
		return h, h != 0
	})
	if rc != 0 {
		return nil, rc
	}
	c, ok := s.conds.Get(h)
	if !ok {
		return nil, soruntime.EINVAL
	}
	return c, 0
}

func (s *Shim) CondInit(mem soruntime.Space, slot uint32) int32 {
	h := s.conds.Insert(newCond())
	if h == 0 {
		return -1
	}
	if err := mem.WriteU32(slot, uint32(h)); err != nil {
		s.conds.Remove(h)
		return -1
	}
	return 0
}

func (s *Shim) CondSignal(mem soruntime.Space, slot uint32) int32 {
	c, rc := s.CondAt(mem, slot)
	if rc != 0 {
		return rc
	}
	c.Signal()
	return 0
}

func (s *Shim) CondBroadcast(mem soruntime.Space, slot uint32) int32 {
	c, rc := s.CondAt(mem, slot)
	if rc != 0 {
		return rc
	}
	c.Broadcast()
	return 0
}

// CondWait waits on the condition at slot. A non-zero timespec pointer gives
// an absolute deadline, or a relative timeout when relative is set.
func (s *Shim) CondWait(ctx context.Context, mem soruntime.Space, slot, mutexSlot, ts uint32, relative bool) int32 {
	c, rc := s.CondAt(mem, slot)
	if rc != 0 {
		return rc
	}
	m, rc := s.MutexAt(mem, mutexSlot)
	if rc != 0 {
		return rc
	}
	var deadline time.Time
	if ts != 0 {
		d, err := readTimespec(mem, ts)
		if err != nil {
			return soruntime.EFAULT
		}
		if !relative {
			// absolute deadlines are on the module's wall clock
			d = time.Unix(0, 0).Add(d).Sub(s.opts.Now())
		}
		deadline = time.Now().Add(d)
	}
	return c.Wait(ctx, m, hostcall.ThreadID(ctx), deadline)
}

func (s *Shim) CondDestroy(mem soruntime.Space, slot uint32) int32 {
	if h, ok := release(mem, slot); ok {
		s.conds.Remove(h)
	}
	return 0
}
