package libc

import (
	"context"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/symtab"
)

// Calls the module makes that have no host counterpart. Networking fails
// with ENOSYS; descriptor control and signal setup succeed without effect.
var (
	unsupportedCalls = []struct{ name, sig string }{
		{"socket", "iiii"},
		{"connect", "iiii"},
		{"bind", "iiii"},
		{"listen", "iii"},
		{"accept", "iiii"},
		{"send", "iiiii"},
		{"recv", "iiiii"},
		{"sendto", "iiiiiii"},
		{"setsockopt", "iiiiii"},
		{"getaddrinfo", "iiiii"},
		{"writev", "iiii"},
	}
	acceptedCalls = []struct{ name, sig string }{
		{"ioctl", "iiii"},
		{"poll", "iiii"},
		{"sigaction", "iiii"},
		{"signal", "iii"},
		{"sigemptyset", "ii"},
		{"sigaddset", "iii"},
		{"pthread_sigmask", "iiii"},
		{"prctl", "iiiiii"},
	}
)

func (l *Libc) registerMisc(b *symtab.Builder) {
	for _, c := range unsupportedCalls {
		b.Func(c.name, c.sig, func(ctx context.Context, mem soruntime.Space, st []uint64) {
			l.setErrno(ctx, mem, soruntime.ENOSYS)
			ret(st, -1)
		})
	}
	for _, c := range acceptedCalls {
		b.Func(c.name, c.sig, func(_ context.Context, _ soruntime.Space, st []uint64) {
			ret(st, 0)
		})
	}
	b.Variadic("fcntl", "iiii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, 0)
	})
	nop := func(context.Context, soruntime.Space, []uint64) {}
	b.Func("__google_potentially_blocking_region_begin", "v", nop)
	b.Func("__google_potentially_blocking_region_end", "v", nop)
}
