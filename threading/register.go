package threading

import (
	"context"
	"runtime"
	"time"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

// pthread_attr_t is 24 bytes; bit 0 of the flags word requests a detached thread.
const (
	attrSize         = 24
	attrFlagDetached = 1
)

func ret(stack []uint64, v int32) {
	stack[0] = uint64(uint32(v))
}

func arg(stack []uint64, i int) uint32 {
	return uint32(stack[i])
}

// Register adds the threading and clock functions to b.
func (s *Shim) Register(b *symtab.Builder) {
	b.Func("pthread_mutex_init", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.MutexInit(mem, arg(st, 0), arg(st, 1)))
	})
	b.Func("pthread_mutex_lock", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.MutexLock(ctx, mem, arg(st, 0)))
	})
	b.Func("pthread_mutex_trylock", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.MutexTryLock(ctx, mem, arg(st, 0)))
	})
	b.Func("pthread_mutex_unlock", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.MutexUnlock(ctx, mem, arg(st, 0)))
	})
	b.Func("pthread_mutex_destroy", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.MutexDestroy(mem, arg(st, 0)))
	})

	b.Func("pthread_mutexattr_init", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, writeOrFault(mem.WriteU32(arg(st, 0), 0)))
	})
	b.Func("pthread_mutexattr_settype", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		if arg(st, 1) > 2 {
			ret(st, soruntime.EINVAL)
			return
		}
		ret(st, writeOrFault(mem.WriteU32(arg(st, 0), arg(st, 1))))
	})
	b.Func("pthread_mutexattr_gettype", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		v, err := mem.ReadU32(arg(st, 0))
		if err != nil {
			ret(st, soruntime.EFAULT)
			return
		}
		ret(st, writeOrFault(mem.WriteU32(arg(st, 1), v)))
	})
	b.Func("pthread_mutexattr_destroy", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, 0)
	})

	b.Func("pthread_cond_init", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.CondInit(mem, arg(st, 0)))
	})
	b.Func("pthread_cond_signal", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.CondSignal(mem, arg(st, 0)))
	})
	b.Func("pthread_cond_broadcast", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.CondBroadcast(mem, arg(st, 0)))
	})
	b.Func("pthread_cond_wait", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.CondWait(ctx, mem, arg(st, 0), arg(st, 1), 0, false))
	})
	b.Func("pthread_cond_timedwait", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.CondWait(ctx, mem, arg(st, 0), arg(st, 1), arg(st, 2), false))
	})
	b.Func("pthread_cond_timedwait_relative_np", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.CondWait(ctx, mem, arg(st, 0), arg(st, 1), arg(st, 2), true))
	})
	b.Func("pthread_cond_destroy", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.CondDestroy(mem, arg(st, 0)))
	})
	for _, name := range []string{"pthread_condattr_init", "pthread_condattr_destroy"} {
		b.Func(name, "ii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })
	}
	b.Func("pthread_condattr_setclock", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })

	b.Func("pthread_once", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		rc, err := s.Once(ctx, mem, arg(st, 0), arg(st, 1))
		if err != nil {
			hostcall.Raise(err)
		}
		ret(st, rc)
	})

	b.Func("pthread_create", "iiiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		out, attr, start, param := arg(st, 0), arg(st, 1), arg(st, 2), arg(st, 3)
		rc := s.Create(ctx, mem, out, start, param)
		if rc == 0 && attr != 0 {
			if flags, err := mem.ReadU32(attr); err == nil && flags&attrFlagDetached != 0 {
				tid, _ := mem.ReadU32(out)
				s.Detach(tid)
			}
		}
		ret(st, rc)
	})
	b.Func("pthread_join", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.Join(ctx, mem, arg(st, 0), arg(st, 1)))
	})
	b.Func("pthread_detach", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, s.Detach(arg(st, 0)))
	})
	b.Func("pthread_exit", "vi", func(_ context.Context, _ soruntime.Space, st []uint64) {
		hostcall.Raise(&ThreadExit{Value: arg(st, 0)})
	})
	b.Func("pthread_self", "i", func(ctx context.Context, _ soruntime.Space, st []uint64) {
		st[0] = uint64(hostcall.ThreadID(ctx))
	})
	b.Alias("GetCurrentThreadId", "pthread_self")
	b.Alias("gettid", "pthread_self")
	b.Func("pthread_equal", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		if arg(st, 0) == arg(st, 1) {
			ret(st, 1)
		} else {
			ret(st, 0)
		}
	})
	b.Func("pthread_key_create", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.KeyCreate(mem, arg(st, 0), arg(st, 1)))
	})
	b.Func("pthread_key_delete", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, s.KeyDelete(arg(st, 0)))
	})
	b.Func("pthread_getspecific", "ii", func(ctx context.Context, _ soruntime.Space, st []uint64) {
		st[0] = uint64(s.GetSpecific(hostcall.ThreadID(ctx), arg(st, 0)))
	})
	b.Func("pthread_setspecific", "iii", func(ctx context.Context, _ soruntime.Space, st []uint64) {
		ret(st, s.SetSpecific(hostcall.ThreadID(ctx), arg(st, 0), arg(st, 1)))
	})

	b.Func("pthread_attr_init", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, writeOrFault(memory.Fill(mem, arg(st, 0), 0, attrSize)))
	})
	b.Func("pthread_attr_destroy", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })
	b.Func("pthread_attr_setdetachstate", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		flags, err := mem.ReadU32(arg(st, 0))
		if err != nil {
			ret(st, soruntime.EFAULT)
			return
		}
		if arg(st, 1) != 0 {
			flags |= attrFlagDetached
		} else {
			flags &^= attrFlagDetached
		}
		ret(st, writeOrFault(mem.WriteU32(arg(st, 0), flags)))
	})
	b.Func("pthread_attr_setstacksize", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, writeOrFault(mem.WriteU32(arg(st, 0)+8, arg(st, 1))))
	})
	b.Func("pthread_attr_getstacksize", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		v, err := mem.ReadU32(arg(st, 0) + 8)
		if err != nil {
			ret(st, soruntime.EFAULT)
			return
		}
		ret(st, writeOrFault(mem.WriteU32(arg(st, 1), v)))
	})
	b.Func("pthread_attr_setschedparam", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })
	b.Func("pthread_setname_np", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })
	b.Func("pthread_setschedparam", "iiii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })
	b.Func("pthread_getschedparam", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		if p := arg(st, 1); p != 0 {
			_ = mem.WriteU32(p, 0)
		}
		if p := arg(st, 2); p != 0 {
			_ = mem.WriteU32(p, 0)
		}
		ret(st, 0)
	})
	b.Func("sched_get_priority_min", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })
	b.Func("sched_get_priority_max", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) { ret(st, 0) })
	b.Func("sched_yield", "i", func(_ context.Context, _ soruntime.Space, st []uint64) {
		runtime.Gosched()
		ret(st, 0)
	})

	b.Func("clock_gettime", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.ClockGettime(mem, arg(st, 0), arg(st, 1)))
	})
	b.Func("gettimeofday", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, s.Gettimeofday(mem, arg(st, 0)))
	})
	b.Func("time", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		st[0] = uint64(s.Time(mem, arg(st, 0)))
	})
	b.Func("usleep", "ii", func(ctx context.Context, _ soruntime.Space, st []uint64) {
		ret(st, negOnErr(Sleep(ctx, time.Duration(arg(st, 0))*time.Microsecond)))
	})
	b.Func("sleep", "ii", func(ctx context.Context, _ soruntime.Space, st []uint64) {
		Sleep(ctx, time.Duration(arg(st, 0))*time.Second)
		ret(st, 0)
	})
	b.Func("nanosleep", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, Nanosleep(ctx, mem, arg(st, 0), arg(st, 1)))
	})
}

func writeOrFault(err error) int32 {
	if err != nil {
		return soruntime.EFAULT
	}
	return 0
}

func negOnErr(rc int32) int32 {
	if rc != 0 {
		return -1
	}
	return 0
}
