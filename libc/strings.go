package libc

import (
	"bytes"
	"context"
	"strings"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

func compare(a, b string) int32 {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int32(a[i]) - int32(b[i])
		}
	}
	return int32(len(a)) - int32(len(b))
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func prefix(s string, n uint32) string {
	if uint32(len(s)) > n {
		return s[:n]
	}
	return s
}

// registerMemory adds the mem* and __aeabi_mem* routines.
func (l *Libc) registerMemory(b *symtab.Builder) {
	memcpy := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			write(name, mem, arg(st, 0), read(name, mem, arg(st, 1), arg(st, 2)))
			retU(st, arg(st, 0))
		}
	}
	b.Func("memcpy", "iiii", memcpy("memcpy"))
	b.Func("memmove", "iiii", memcpy("memmove"))
	b.Func("memset", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		must("memset", memory.Fill(mem, arg(st, 0), byte(arg(st, 1)), arg(st, 2)))
		retU(st, arg(st, 0))
	})
	b.Func("memcmp", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		a := read("memcmp", mem, arg(st, 0), arg(st, 2))
		c := read("memcmp", mem, arg(st, 1), arg(st, 2))
		ret(st, compare(string(a), string(c)))
	})
	b.Func("memchr", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		data := read("memchr", mem, arg(st, 0), arg(st, 2))
		if i := bytes.IndexByte(data, byte(arg(st, 1))); i >= 0 {
			retU(st, arg(st, 0)+uint32(i))
			return
		}
		retU(st, 0)
	})
	b.Func("bzero", "vii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		must("bzero", memory.Fill(mem, arg(st, 0), 0, arg(st, 1)))
	})

	// The ARM EABI helpers take (dest, n, c) for memset and return nothing.
	for _, suffix := range []string{"", "4", "8"} {
		name := "__aeabi_memcpy" + suffix
		b.Func(name, "viii", func(_ context.Context, mem soruntime.Space, st []uint64) {
			write(name, mem, arg(st, 0), read(name, mem, arg(st, 1), arg(st, 2)))
		})
		move := "__aeabi_memmove" + suffix
		b.Func(move, "viii", func(_ context.Context, mem soruntime.Space, st []uint64) {
			write(move, mem, arg(st, 0), read(move, mem, arg(st, 1), arg(st, 2)))
		})
		set := "__aeabi_memset" + suffix
		b.Func(set, "viii", func(_ context.Context, mem soruntime.Space, st []uint64) {
			must(set, memory.Fill(mem, arg(st, 0), byte(arg(st, 2)), arg(st, 1)))
		})
		clr := "__aeabi_memclr" + suffix
		b.Func(clr, "vii", func(_ context.Context, mem soruntime.Space, st []uint64) {
			must(clr, memory.Fill(mem, arg(st, 0), 0, arg(st, 1)))
		})
	}
}

// registerStrings adds the str* routines.
func (l *Libc) registerStrings(b *symtab.Builder) {
	b.Func("strlen", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		retU(st, uint32(len(cstr("strlen", mem, arg(st, 0)))))
	})
	b.Func("strnlen", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		retU(st, uint32(len(prefix(cstr("strnlen", mem, arg(st, 0)), arg(st, 1)))))
	})
	cmp := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			ret(st, compare(cstr(name, mem, arg(st, 0)), cstr(name, mem, arg(st, 1))))
		}
	}
	b.Func("strcmp", "iii", cmp("strcmp"))
	b.Func("strcoll", "iii", cmp("strcoll"))
	b.Func("strncmp", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		n := arg(st, 2)
		ret(st, compare(prefix(cstr("strncmp", mem, arg(st, 0)), n), prefix(cstr("strncmp", mem, arg(st, 1)), n)))
	})
	b.Func("strcasecmp", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, compare(lowerASCII(cstr("strcasecmp", mem, arg(st, 0))), lowerASCII(cstr("strcasecmp", mem, arg(st, 1)))))
	})
	b.Func("strncasecmp", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		n := arg(st, 2)
		a := lowerASCII(prefix(cstr("strncasecmp", mem, arg(st, 0)), n))
		c := lowerASCII(prefix(cstr("strncasecmp", mem, arg(st, 1)), n))
		ret(st, compare(a, c))
	})

	b.Func("strcpy", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		must("strcpy", memory.WriteCString(mem, arg(st, 0), cstr("strcpy", mem, arg(st, 1))))
		retU(st, arg(st, 0))
	})
	b.Func("strncpy", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		n := arg(st, 2)
		out := make([]byte, n)
		copy(out, prefix(cstr("strncpy", mem, arg(st, 1)), n))
		write("strncpy", mem, arg(st, 0), out)
		retU(st, arg(st, 0))
	})
	b.Func("strcat", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		dst := arg(st, 0)
		end := dst + uint32(len(cstr("strcat", mem, dst)))
		must("strcat", memory.WriteCString(mem, end, cstr("strcat", mem, arg(st, 1))))
		retU(st, dst)
	})
	b.Func("strncat", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		dst := arg(st, 0)
		end := dst + uint32(len(cstr("strncat", mem, dst)))
		must("strncat", memory.WriteCString(mem, end, prefix(cstr("strncat", mem, arg(st, 1)), arg(st, 2))))
		retU(st, dst)
	})
	b.Func("strdup", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		s := cstr("strdup", mem, arg(st, 0))
		p, err := l.heap.Malloc(mem, uint32(len(s))+1)
		if err != nil {
			retU(st, 0)
			return
		}
		must("strdup", memory.WriteCString(mem, p, s))
		retU(st, p)
	})

	index := func(name string, find func(s string, c byte) int) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			s := cstr(name, mem, arg(st, 0))
			c := byte(arg(st, 1))
			if c == 0 {
				retU(st, arg(st, 0)+uint32(len(s)))
				return
			}
			if i := find(s, c); i >= 0 {
				retU(st, arg(st, 0)+uint32(i))
				return
			}
			retU(st, 0)
		}
	}
	b.Func("strchr", "iii", index("strchr", strings.IndexByte))
	b.Func("strrchr", "iii", index("strrchr", strings.LastIndexByte))

	search := func(name string, fold bool) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			h, n := cstr(name, mem, arg(st, 0)), cstr(name, mem, arg(st, 1))
			if fold {
				h, n = lowerASCII(h), lowerASCII(n)
			}
			if i := strings.Index(h, n); i >= 0 {
				retU(st, arg(st, 0)+uint32(i))
				return
			}
			retU(st, 0)
		}
	}
	b.Func("strstr", "iii", search("strstr", false))
	b.Func("strcasestr", "iii", search("strcasestr", true))

	b.Func("strpbrk", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		s, accept := cstr("strpbrk", mem, arg(st, 0)), cstr("strpbrk", mem, arg(st, 1))
		if i := strings.IndexAny(s, accept); i >= 0 {
			retU(st, arg(st, 0)+uint32(i))
			return
		}
		retU(st, 0)
	})
	b.Func("strspn", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		s, accept := cstr("strspn", mem, arg(st, 0)), cstr("strspn", mem, arg(st, 1))
		n := 0
		for n < len(s) && strings.IndexByte(accept, s[n]) >= 0 {
			n++
		}
		retU(st, uint32(n))
	})
	b.Func("strcspn", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		s, reject := cstr("strcspn", mem, arg(st, 0)), cstr("strcspn", mem, arg(st, 1))
		if i := strings.IndexAny(s, reject); i >= 0 {
			retU(st, uint32(i))
			return
		}
		retU(st, uint32(len(s)))
	})
	b.Func("strxfrm", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		s := cstr("strxfrm", mem, arg(st, 1))
		if uint32(len(s)) < arg(st, 2) {
			must("strxfrm", memory.WriteCString(mem, arg(st, 0), s))
		}
		retU(st, uint32(len(s)))
	})
	b.Func("strerror", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		retU(st, l.strerror(mem, argI(st, 0)))
	})
	b.Func("basename", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		p := arg(st, 0)
		s := cstr("basename", mem, p)
		trimmed := strings.TrimRight(s, "/")
		if trimmed == "" {
			retU(st, l.static(mem, "basename:/", "/"))
			return
		}
		i := strings.LastIndexByte(trimmed, '/')
		retU(st, l.static(mem, "basename:"+trimmed[i+1:], trimmed[i+1:]))
	})
}
