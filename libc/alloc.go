package libc

import (
	"context"
	"math/bits"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/symtab"
)

func (l *Libc) allocated(ctx context.Context, mem soruntime.Space, st []uint64, p uint32, err error) {
	if err != nil {
		l.setErrno(ctx, mem, soruntime.ENOMEM)
		retU(st, 0)
		return
	}
	retU(st, p)
}

// operator new has no nothrow path; exhaustion faults the thread.
func (l *Libc) newOperator(name string) func(context.Context, soruntime.Space, []uint64) {
	return func(_ context.Context, mem soruntime.Space, st []uint64) {
		p, err := l.heap.Malloc(mem, arg(st, 0))
		if err != nil {
			fault(name, errors.AllocationFailed(errors.PhaseShim, arg(st, 0), minAlign))
		}
		retU(st, p)
	}
}

func (l *Libc) registerAlloc(b *symtab.Builder) {
	b.Func("malloc", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		p, err := l.heap.Malloc(mem, arg(st, 0))
		l.allocated(ctx, mem, st, p, err)
	})
	b.Func("calloc", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		p, err := l.heap.Calloc(mem, arg(st, 0), arg(st, 1))
		l.allocated(ctx, mem, st, p, err)
	})
	b.Func("realloc", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		p, err := l.heap.Realloc(mem, arg(st, 0), arg(st, 1))
		if err == errUnknownBlock {
			fault("realloc", err)
		}
		l.allocated(ctx, mem, st, p, err)
	})
	b.Func("free", "vi", func(_ context.Context, mem soruntime.Space, st []uint64) {
		l.heap.Free(mem, arg(st, 0))
	})
	b.Func("memalign", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		p, err := l.heap.Memalign(mem, arg(st, 0), arg(st, 1))
		l.allocated(ctx, mem, st, p, err)
	})
	b.Func("posix_memalign", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		align := arg(st, 1)
		if align < 4 || bits.OnesCount32(align) != 1 {
			ret(st, soruntime.EINVAL)
			return
		}
		p, err := l.heap.Memalign(mem, align, arg(st, 2))
		if err != nil {
			ret(st, soruntime.ENOMEM)
			return
		}
		must("posix_memalign", mem.WriteU32(arg(st, 0), p))
		ret(st, 0)
	})
	b.Func("malloc_usable_size", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		retU(st, l.heap.UsableSize(arg(st, 0)))
	})

	b.Func("_Znwj", "ii", l.newOperator("_Znwj"))
	b.Func("_Znaj", "ii", l.newOperator("_Znaj"))
	nothrow := func(_ context.Context, mem soruntime.Space, st []uint64) {
		p, err := l.heap.Malloc(mem, arg(st, 0))
		if err != nil {
			p = 0
		}
		retU(st, p)
	}
	b.Func("_ZnwjRKSt9nothrow_t", "iii", nothrow)
	b.Func("_ZnajRKSt9nothrow_t", "iii", nothrow)
	del := func(_ context.Context, mem soruntime.Space, st []uint64) {
		l.heap.Free(mem, arg(st, 0))
	}
	b.Func("_ZdlPv", "vi", del)
	b.Func("_ZdaPv", "vi", del)
}
