package libc

import (
	"context"
	"encoding/binary"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/cfmt"
	"github.com/wippyai/so-runtime/symtab"
)

// wchar_t and wint_t are 32 bits wide. Multibyte text is UTF-8.

// WEOF is the wide end-of-file value.
const WEOF uint32 = 0xFFFFFFFF

// maxWide bounds wide lengths so their byte size fits in 32 bits.
const maxWide = 1<<30 - 1

// size_t results of mbrtowc for an invalid and an incomplete sequence.
const (
	mbInvalid    uint32 = 0xFFFFFFFF
	mbIncomplete uint32 = 0xFFFFFFFE
)

func wideBytes(symbol string, n uint32) uint32 {
	if n > maxWide {
		abort(symbol, "wide length overflows the address space")
	}
	return 4 * n
}

// wideN reads n wide characters at ptr.
func wideN(symbol string, mem soruntime.Memory, ptr, n uint32) []uint32 {
	b := read(symbol, mem, ptr, wideBytes(symbol, n))
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}

// wideString reads a NUL-terminated wide string at ptr, without the NUL.
func wideString(symbol string, mem soruntime.Memory, ptr uint32) []uint32 {
	var out []uint32
	for p := ptr; ; p += 4 {
		c, err := mem.ReadU32(p)
		must(symbol, err)
		if c == 0 {
			return out
		}
		if len(out) == maxWide {
			abort(symbol, "unterminated wide string")
		}
		out = append(out, c)
	}
}

func writeWide(symbol string, mem soruntime.Memory, ptr uint32, ws []uint32) {
	b := make([]byte, wideBytes(symbol, uint32(len(ws))))
	for i, c := range ws {
		binary.LittleEndian.PutUint32(b[4*i:], c)
	}
	write(symbol, mem, ptr, b)
}

// writeWideString writes ws and a terminating NUL.
func writeWideString(symbol string, mem soruntime.Memory, ptr uint32, ws []uint32) {
	writeWide(symbol, mem, ptr, append(ws[:len(ws):len(ws)], 0))
}

func narrow(ws []uint32) string {
	b := make([]byte, 0, len(ws))
	for _, c := range ws {
		b = utf8.AppendRune(b, rune(c))
	}
	return string(b)
}

func widen(s string) []uint32 {
	out := make([]uint32, 0, len(s))
	for _, r := range s {
		out = append(out, uint32(r))
	}
	return out
}

func compareWide(a, b []uint32) int32 {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Wide character classes in wctype order. Descriptor 0 is invalid.
var wideClasses = []struct {
	name string
	is   func(rune) bool
}{
	{"alnum", func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }},
	{"alpha", unicode.IsLetter},
	{"blank", func(r rune) bool { return r == ' ' || r == '\t' }},
	{"cntrl", unicode.IsControl},
	{"digit", func(r rune) bool { return r >= '0' && r <= '9' }},
	{"graph", func(r rune) bool { return unicode.IsGraphic(r) && !unicode.IsSpace(r) }},
	{"lower", unicode.IsLower},
	{"print", unicode.IsPrint},
	{"punct", func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }},
	{"space", unicode.IsSpace},
	{"upper", unicode.IsUpper},
	{"xdigit", func(r rune) bool {
		return r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F'
	}},
}

// WideClass returns the wctype descriptor for name, or 0.
func WideClass(name string) uint32 {
	for i, c := range wideClasses {
		if c.name == name {
			return uint32(i + 1)
		}
	}
	return 0
}

// IsWideClass reports whether wc belongs to the class behind desc.
func IsWideClass(wc, desc uint32) bool {
	if desc == 0 || desc > uint32(len(wideClasses)) || wc > unicode.MaxRune {
		return false
	}
	return wideClasses[desc-1].is(rune(wc))
}

func (l *Libc) registerWide(b *symtab.Builder) {
	b.Func("wcslen", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		retU(st, uint32(len(wideString("wcslen", mem, arg(st, 0)))))
	})
	wcmp := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			ret(st, compareWide(wideString(name, mem, arg(st, 0)), wideString(name, mem, arg(st, 1))))
		}
	}
	b.Func("wcscmp", "iii", wcmp("wcscmp"))
	b.Func("wcscoll", "iii", wcmp("wcscoll"))
	b.Func("wcsncpy", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		n := arg(st, 2)
		src := wideString("wcsncpy", mem, arg(st, 1))
		out := make([]uint32, n)
		copy(out, src)
		writeWide("wcsncpy", mem, arg(st, 0), out)
		retU(st, arg(st, 0))
	})
	b.Func("wcsxfrm", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		src := wideString("wcsxfrm", mem, arg(st, 1))
		if uint32(len(src)) < arg(st, 2) {
			writeWideString("wcsxfrm", mem, arg(st, 0), src)
		}
		retU(st, uint32(len(src)))
	})
	b.Func("wcsftime", "iiiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		t, err := readTm(mem, arg(st, 3))
		must("wcsftime", err)
		out := widen(Strftime(narrow(wideString("wcsftime", mem, arg(st, 2))), t))
		if uint32(len(out)) >= arg(st, 1) {
			retU(st, 0)
			return
		}
		writeWideString("wcsftime", mem, arg(st, 0), out)
		retU(st, uint32(len(out)))
	})

	wcopy := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			n := wideBytes(name, arg(st, 2))
			write(name, mem, arg(st, 0), read(name, mem, arg(st, 1), n))
			retU(st, arg(st, 0))
		}
	}
	b.Func("wmemcpy", "iiii", wcopy("wmemcpy"))
	b.Func("wmemmove", "iiii", wcopy("wmemmove"))
	b.Func("wmemset", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		out := make([]uint32, arg(st, 2))
		for i := range out {
			out[i] = arg(st, 1)
		}
		writeWide("wmemset", mem, arg(st, 0), out)
		retU(st, arg(st, 0))
	})
	b.Func("wmemchr", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		for i, c := range wideN("wmemchr", mem, arg(st, 0), arg(st, 2)) {
			if c == arg(st, 1) {
				retU(st, arg(st, 0)+uint32(4*i))
				return
			}
		}
		retU(st, 0)
	})
	b.Func("wmemcmp", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		n := arg(st, 2)
		ret(st, compareWide(wideN("wmemcmp", mem, arg(st, 0), n), wideN("wmemcmp", mem, arg(st, 1), n)))
	})

	b.Func("btowc", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		c := argI(st, 0)
		if c < 0 || c >= utf8.RuneSelf {
			retU(st, WEOF)
			return
		}
		retU(st, uint32(c))
	})
	b.Func("wctob", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		if wc := arg(st, 0); wc < utf8.RuneSelf {
			retU(st, wc)
			return
		}
		ret(st, -1)
	})
	// The conversion state argument is unused: sequences split across calls
	// report incomplete without being stored.
	b.Func("mbrtowc", "iiiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		pwc, s, n := arg(st, 0), arg(st, 1), arg(st, 2)
		if s == 0 {
			retU(st, 0)
			return
		}
		if n == 0 {
			retU(st, mbIncomplete)
			return
		}
		seq := read("mbrtowc", mem, s, min(n, utf8.UTFMax))
		if !utf8.FullRune(seq) {
			retU(st, mbIncomplete)
			return
		}
		r, size := utf8.DecodeRune(seq)
		if r == utf8.RuneError && size <= 1 {
			l.setErrno(ctx, mem, soruntime.EILSEQ)
			retU(st, mbInvalid)
			return
		}
		if pwc != 0 {
			must("mbrtowc", mem.WriteU32(pwc, uint32(r)))
		}
		if r == 0 {
			retU(st, 0)
			return
		}
		retU(st, uint32(size))
	})
	b.Func("wcrtomb", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		s, wc := arg(st, 0), arg(st, 1)
		if s == 0 {
			retU(st, 1)
			return
		}
		if wc > unicode.MaxRune || !utf8.ValidRune(rune(wc)) {
			l.setErrno(ctx, mem, soruntime.EILSEQ)
			retU(st, mbInvalid)
			return
		}
		out := utf8.AppendRune(nil, rune(wc))
		write("wcrtomb", mem, s, out)
		retU(st, uint32(len(out)))
	})

	classify := func(st []uint64, desc uint32) {
		if IsWideClass(arg(st, 0), desc) {
			ret(st, 1)
			return
		}
		ret(st, 0)
	}
	for _, c := range wideClasses {
		desc := WideClass(c.name)
		b.Func("isw"+c.name, "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
			classify(st, desc)
		})
	}
	b.Func("wctype", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		retU(st, WideClass(cstr("wctype", mem, arg(st, 0))))
	})
	b.Func("iswctype", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		classify(st, arg(st, 1))
	})
	wcase := func(to func(rune) rune) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, _ soruntime.Space, st []uint64) {
			wc := arg(st, 0)
			if wc > unicode.MaxRune {
				retU(st, wc)
				return
			}
			retU(st, uint32(to(rune(wc))))
		}
	}
	b.Func("towlower", "ii", wcase(unicode.ToLower))
	b.Func("towupper", "ii", wcase(unicode.ToUpper))

	// %s and %c arguments stay narrow; the result is widened afterwards.
	b.Func("vswprintf", "iiiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		buf, n := arg(st, 0), arg(st, 1)
		layout := narrow(wideString("vswprintf", mem, arg(st, 2)))
		s, err := cfmt.Format(mem, layout, cfmt.NewVaList(mem, arg(st, 3)))
		if err != nil {
			Logger().Warn("format failed", zap.String("symbol", "vswprintf"), zap.Error(err))
		}
		out := widen(s)
		if n == 0 {
			ret(st, -1)
			return
		}
		if uint32(len(out)) >= n {
			writeWideString("vswprintf", mem, buf, out[:n-1])
			ret(st, -1)
			return
		}
		writeWideString("vswprintf", mem, buf, out)
		ret(st, int32(len(out)))
	})
}
