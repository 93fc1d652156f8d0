package libc

import (
	"context"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/cfmt"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

// format renders the format string at fmtPtr with the packed arguments at ap.
func format(name string, mem soruntime.Space, fmtPtr, ap uint32) string {
	s, err := cfmt.Format(mem, cstr(name, mem, fmtPtr), cfmt.NewVaList(mem, ap))
	if err != nil {
		Logger().Warn("format failed", zap.String("symbol", name), zap.Error(err))
	}
	return s
}

// bounded writes s into buf truncated to n-1 bytes plus NUL and returns the
// untruncated length, as snprintf does.
func bounded(name string, mem soruntime.Space, buf, n uint32, s string) int32 {
	if n > 0 {
		out := s
		if uint32(len(out)) > n-1 {
			out = out[:n-1]
		}
		must(name, memory.WriteCString(mem, buf, out))
	}
	return int32(len(s))
}

func (l *Libc) fputs(ctx context.Context, mem soruntime.Space, s string, file uint32) int32 {
	if l.opts.Files == nil {
		return l.stdout(s)
	}
	if l.opts.Files.Fputs(ctx, mem, s, file) < 0 {
		return -1
	}
	return int32(len(s))
}

func (l *Libc) registerStdio(b *symtab.Builder) {
	printf := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			ret(st, l.stdout(format(name, mem, arg(st, 0), arg(st, 1))))
		}
	}
	b.Variadic("printf", "iii", printf("printf"))
	b.Func("vprintf", "iii", printf("vprintf"))

	sprintf := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			s := format(name, mem, arg(st, 1), arg(st, 2))
			must(name, memory.WriteCString(mem, arg(st, 0), s))
			ret(st, int32(len(s)))
		}
	}
	b.Variadic("sprintf", "iiii", sprintf("sprintf"))
	b.Func("vsprintf", "iiii", sprintf("vsprintf"))

	snprintf := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			s := format(name, mem, arg(st, 2), arg(st, 3))
			ret(st, bounded(name, mem, arg(st, 0), arg(st, 1), s))
		}
	}
	b.Variadic("snprintf", "iiiii", snprintf("snprintf"))
	b.Func("vsnprintf", "iiiii", snprintf("vsnprintf"))

	fprintf := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(ctx context.Context, mem soruntime.Space, st []uint64) {
			s := format(name, mem, arg(st, 1), arg(st, 2))
			ret(st, l.fputs(ctx, mem, s, arg(st, 0)))
		}
	}
	b.Variadic("fprintf", "iiii", fprintf("fprintf"))
	b.Func("vfprintf", "iiii", fprintf("vfprintf"))

	b.Func("puts", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		if l.stdout(cstr("puts", mem, arg(st, 0))+"\n") < 0 {
			ret(st, -1)
			return
		}
		ret(st, 1)
	})
	b.Func("putchar", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		c := byte(arg(st, 0))
		if l.stdout(string([]byte{c})) < 0 {
			ret(st, -1)
			return
		}
		ret(st, int32(c))
	})

	sscanf := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			input := cstr(name, mem, arg(st, 0))
			n, err := cfmt.Scan(mem, input, cstr(name, mem, arg(st, 1)), cfmt.NewVaList(mem, arg(st, 2)))
			if err != nil {
				Logger().Debug("scan stopped", zap.String("symbol", name), zap.Error(err))
			}
			ret(st, int32(n))
		}
	}
	b.Variadic("sscanf", "iiii", sscanf("sscanf"))
	b.Func("vsscanf", "iiii", sscanf("vsscanf"))
}
