package libc

import (
	"context"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/symtab"
)

// Bionic ctype classification bits.
const (
	ctypeUpper  = 0x01
	ctypeLower  = 0x02
	ctypeDigit  = 0x04
	ctypeSpace  = 0x08
	ctypePunct  = 0x10
	ctypeCntrl  = 0x20
	ctypeHex    = 0x40
	ctypeBlank  = 0x80
	ctypeAlpha  = ctypeUpper | ctypeLower
	ctypeAlnum  = ctypeAlpha | ctypeDigit
	ctypeGraph  = ctypePunct | ctypeAlnum
	ctypeLength = 257
)

// ctypeClass returns the classification bits of c; only ASCII is classified.
func ctypeClass(c int32) byte {
	switch {
	case c < 0 || c > 0x7F:
		return 0
	case c == ' ':
		return ctypeSpace | ctypeBlank
	case c == '\t':
		return ctypeCntrl | ctypeSpace | ctypeBlank
	case c >= '\n' && c <= '\r':
		return ctypeCntrl | ctypeSpace
	case c < ' ' || c == 0x7F:
		return ctypeCntrl
	case c >= '0' && c <= '9':
		return ctypeDigit
	case c >= 'A' && c <= 'Z':
		if c <= 'F' {
			return ctypeUpper | ctypeHex
		}
		return ctypeUpper
	case c >= 'a' && c <= 'z':
		if c <= 'f' {
			return ctypeLower | ctypeHex
		}
		return ctypeLower
	}
	return ctypePunct
}

func toLower(c int32) int32 {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func toUpper(c int32) int32 {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// ctypeTables returns the Bionic _ctype_ byte table and the case-mapping
// short tables. Each has a leading entry for EOF.
func ctypeTables() (class []byte, lower, upper []byte) {
	class = make([]byte, ctypeLength)
	lower = make([]byte, 2*ctypeLength)
	upper = make([]byte, 2*ctypeLength)
	put := func(tab []byte, i int, v int32) {
		tab[2*i] = byte(v)
		tab[2*i+1] = byte(v >> 8)
	}
	put(lower, 0, -1)
	put(upper, 0, -1)
	for c := int32(0); c < 256; c++ {
		class[c+1] = ctypeClass(c)
		put(lower, int(c)+1, toLower(c))
		put(upper, int(c)+1, toUpper(c))
	}
	return class, lower, upper
}

// exportTable places tab in space and exports name as a pointer variable
// holding the table's address.
func exportTable(b *symtab.Builder, space soruntime.Space, name string, tab []byte) error {
	p, err := space.Alloc(uint32(len(tab)), 4)
	if err != nil {
		return err
	}
	if err := space.Write(p, tab); err != nil {
		return err
	}
	v, err := space.Alloc(4, 4)
	if err != nil {
		return err
	}
	if err := space.WriteU32(v, p); err != nil {
		return err
	}
	b.Data(name, v)
	return nil
}

func (l *Libc) registerCtype(b *symtab.Builder, space soruntime.Space) error {
	class, lower, upper := ctypeTables()
	for _, t := range []struct {
		name string
		tab  []byte
	}{
		{"_ctype_", class},
		{"_tolower_tab_", lower},
		{"_toupper_tab_", upper},
	} {
		if err := exportTable(b, space, t.name, t.tab); err != nil {
			return err
		}
	}

	predicate := func(name string, test func(c int32) bool) {
		b.Func(name, "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
			if test(argI(st, 0)) {
				ret(st, 1)
				return
			}
			ret(st, 0)
		})
	}
	mask := func(m byte) func(int32) bool {
		return func(c int32) bool { return ctypeClass(c)&m != 0 }
	}
	predicate("isalpha", mask(ctypeAlpha))
	predicate("isdigit", mask(ctypeDigit))
	predicate("isalnum", mask(ctypeAlnum))
	predicate("isspace", mask(ctypeSpace))
	predicate("isupper", mask(ctypeUpper))
	predicate("islower", mask(ctypeLower))
	predicate("isxdigit", mask(ctypeDigit|ctypeHex))
	predicate("ispunct", mask(ctypePunct))
	predicate("iscntrl", mask(ctypeCntrl))
	predicate("isgraph", mask(ctypeGraph))
	predicate("isprint", func(c int32) bool { return c == ' ' || ctypeClass(c)&ctypeGraph != 0 })
	predicate("isblank", mask(ctypeBlank))
	predicate("isascii", func(c int32) bool { return c >= 0 && c <= 0x7F })

	b.Func("tolower", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, toLower(argI(st, 0)))
	})
	b.Func("toupper", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, toUpper(argI(st, 0)))
	})
	return nil
}
