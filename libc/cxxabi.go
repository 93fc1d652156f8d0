package libc

import (
	"context"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/symtab"
)

type exitHandler struct {
	fn     uint32
	arg    uint32
	dso    uint32
	hasArg bool
}

func (l *Libc) addExitHandler(h exitHandler) int32 {
	if h.fn == 0 {
		return -1
	}
	l.mu.Lock()
	l.atexit = append(l.atexit, h)
	l.mu.Unlock()
	return 0
}

// takeExitHandlers removes the handlers registered for dso, or all of them
// when dso is 0, and returns them in reverse registration order.
func (l *Libc) takeExitHandlers(dso uint32) []exitHandler {
	l.mu.Lock()
	defer l.mu.Unlock()
	var run, keep []exitHandler
	for _, h := range l.atexit {
		if dso == 0 || h.dso == dso {
			run = append(run, h)
		} else {
			keep = append(keep, h)
		}
	}
	l.atexit = keep
	for i, j := 0, len(run)-1; i < j; i, j = i+1, j-1 {
		run[i], run[j] = run[j], run[i]
	}
	return run
}

// ExitHandlers reports the number of pending atexit handlers.
func (l *Libc) ExitHandlers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.atexit)
}

// RunExitHandlers runs the handlers registered for dso (all when dso is 0)
// newest first. Every handler runs; the first error is returned.
func (l *Libc) RunExitHandlers(ctx context.Context, mem soruntime.Space, dso uint32) error {
	var first error
	for _, h := range l.takeExitHandlers(dso) {
		sig, stack := "v", []uint64{0}
		if h.hasArg {
			sig, stack = "vi", []uint64{uint64(h.arg)}
		}
		if err := l.reg.Call(ctx, mem, h.fn, sig, stack); err != nil {
			Logger().Warn("exit handler failed", zap.Uint32("fn", h.fn), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// GuardAcquire implements __cxa_guard_acquire: it returns 1 when the caller
// must run the initializer and 0 when the object is already initialized.
// Concurrent callers block until the initializing thread releases or aborts.
func (l *Libc) GuardAcquire(ctx context.Context, mem soruntime.Space, guard uint32) (int32, error) {
	for {
		done, err := mem.ReadU8(guard)
		if err != nil {
			return 0, err
		}
		if done&1 != 0 {
			return 0, nil
		}
		ch := make(chan struct{})
		actual, loaded := l.guards.LoadOrStore(guard, ch)
		if !loaded {
			// Initialization may have completed between the check and the claim.
			if done, err := mem.ReadU8(guard); err != nil || done&1 != 0 {
				l.guards.Delete(guard)
				close(ch)
				return 0, err
			}
			return 1, nil
		}
		select {
		case <-actual.(chan struct{}):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// GuardRelease marks the guarded object initialized and wakes waiters.
func (l *Libc) GuardRelease(mem soruntime.Space, guard uint32) error {
	err := mem.WriteU8(guard, 1)
	l.wakeGuard(guard)
	return err
}

// GuardAbort wakes waiters without marking the object initialized; one of
// them retries the initializer.
func (l *Libc) GuardAbort(guard uint32) {
	l.wakeGuard(guard)
}

func (l *Libc) wakeGuard(guard uint32) {
	if ch, ok := l.guards.LoadAndDelete(guard); ok {
		close(ch.(chan struct{}))
	}
}

func (l *Libc) registerCXXABI(b *symtab.Builder) {
	b.Func("__cxa_atexit", "iiii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, l.addExitHandler(exitHandler{fn: arg(st, 0), arg: arg(st, 1), dso: arg(st, 2), hasArg: true}))
	})
	// The EABI variant swaps the object and function arguments.
	b.Func("__aeabi_atexit", "iiii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, l.addExitHandler(exitHandler{fn: arg(st, 1), arg: arg(st, 0), dso: arg(st, 2), hasArg: true}))
	})
	b.Func("atexit", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, l.addExitHandler(exitHandler{fn: arg(st, 0)}))
	})
	b.Func("__cxa_finalize", "vi", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		must("__cxa_finalize", l.RunExitHandlers(ctx, mem, arg(st, 0)))
	})

	b.Func("__cxa_guard_acquire", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		v, err := l.GuardAcquire(ctx, mem, arg(st, 0))
		must("__cxa_guard_acquire", err)
		ret(st, v)
	})
	b.Func("__cxa_guard_release", "vi", func(_ context.Context, mem soruntime.Space, st []uint64) {
		must("__cxa_guard_release", l.GuardRelease(mem, arg(st, 0)))
	})
	b.Func("__cxa_guard_abort", "vi", func(_ context.Context, _ soruntime.Space, st []uint64) {
		l.GuardAbort(arg(st, 0))
	})

	b.Func("__cxa_pure_virtual", "v", func(_ context.Context, _ soruntime.Space, _ []uint64) {
		abort("__cxa_pure_virtual", "pure virtual function called")
	})
	b.Func("__cxa_call_unexpected", "vi", func(_ context.Context, _ soruntime.Space, _ []uint64) {
		abort("__cxa_call_unexpected", "unexpected exception")
	})
	b.Func("__stack_chk_fail", "v", func(_ context.Context, _ soruntime.Space, _ []uint64) {
		abort("__stack_chk_fail", "stack smashing detected")
	})

	// No unwind tables are exposed; the unwinder sees every frame as the last.
	b.Func("__gnu_Unwind_Find_exidx", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		retU(st, 0)
	})
	b.Alias("dl_unwind_find_exidx", "__gnu_Unwind_Find_exidx")
	b.Func("__gnu_unwind_frame", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, 9) // _URC_FAILURE
	})

	b.Func("setjmp", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, 0)
	})
	b.Alias("_setjmp", "setjmp")
	b.Func("longjmp", "vii", func(_ context.Context, _ soruntime.Space, _ []uint64) {
		abort("longjmp", "non-local jumps are not supported")
	})
	b.Alias("_longjmp", "longjmp")
}
