package libc

import (
	"context"
	"math"
	"strconv"
	"strings"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/symtab"
)

// cInteger is the result of scanning an integer the way strtol does.
type cInteger struct {
	mag      uint64
	n        int // bytes consumed; 0 if no digits
	neg      bool
	overflow bool
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 36
}

func scanCInteger(s string, base int) cInteger {
	var r cInteger
	i := 0
	for i < len(s) && isSpaceByte(s[i]) {
		i++
	}
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		r.neg = s[i] == '-'
		i++
	}
	if (base == 0 || base == 16) && i+1 < len(s) && s[i] == '0' && (s[i+1] == 'x' || s[i+1] == 'X') &&
		i+2 < len(s) && digitValue(s[i+2]) < 16 {
		i += 2
		base = 16
	} else if base == 0 {
		base = 10
		if i < len(s) && s[i] == '0' {
			base = 8
		}
	}
	if base < 2 || base > 36 {
		return cInteger{}
	}
	start := i
	for i < len(s) {
		d := digitValue(s[i])
		if d >= base {
			break
		}
		hi, lo := mulAdd(r.mag, uint64(base), uint64(d))
		if hi {
			r.overflow = true
		}
		r.mag = lo
		i++
	}
	if i == start {
		return cInteger{}
	}
	r.n = i
	return r
}

func mulAdd(v, base, d uint64) (bool, uint64) {
	if v > (math.MaxUint64-d)/base {
		return true, math.MaxUint64
	}
	return false, v*base + d
}

// signed clamps the scanned value to [min, max] the way strtol/strtoll do.
func (r cInteger) signed(bitSize uint) (int64, bool) {
	limit := uint64(1) << (bitSize - 1)
	if r.neg {
		if r.overflow || r.mag > limit {
			return -int64(limit-1) - 1, true
		}
		return -int64(r.mag), false
	}
	if r.overflow || r.mag > limit-1 {
		return int64(limit - 1), true
	}
	return int64(r.mag), false
}

// unsigned clamps to the type's maximum; a leading minus negates modulo 2^n.
func (r cInteger) unsigned(bitSize uint) (uint64, bool) {
	max := uint64(math.MaxUint64) >> (64 - bitSize)
	if r.overflow || r.mag > max {
		return max, true
	}
	if r.neg {
		return -r.mag & max, false
	}
	return r.mag, false
}

func isSpaceByte(c byte) bool {
	return c == ' ' || (c >= '\t' && c <= '\r')
}

// scanCFloat returns the longest prefix of s that strtod accepts and its value.
func scanCFloat(s string) (float64, int, bool) {
	i := 0
	for i < len(s) && isSpaceByte(s[i]) {
		i++
	}
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	rest := strings.ToLower(s[i:])
	for _, word := range []string{"infinity", "inf", "nan"} {
		if strings.HasPrefix(rest, word) {
			i += len(word)
			v, _ := strconv.ParseFloat(s[start:i], 64)
			return v, i, false
		}
	}
	hex := strings.HasPrefix(rest, "0x")
	if hex {
		i += 2
	}
	isDigit := func(c byte) bool {
		if hex {
			return digitValue(c) < 16
		}
		return c >= '0' && c <= '9'
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, 0, false
	}
	exp := byte('e')
	if hex {
		exp = 'p'
	}
	if i < len(s) && (s[i]|0x20) == exp {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			i = j
		}
	} else if hex {
		// strconv requires a binary exponent on hex floats.
		v, err := strconv.ParseFloat(s[start:i]+"p0", 64)
		return v, i, err != nil
	}
	v, err := strconv.ParseFloat(s[start:i], 64)
	return v, i, err != nil
}

func (l *Libc) setEnd(mem soruntime.Space, endp, s uint32, n int) {
	if endp != 0 {
		must("strto", mem.WriteU32(endp, s+uint32(n)))
	}
}

func (l *Libc) registerNumbers(b *symtab.Builder) {
	integer := func(name string, sig string, conv func(cInteger) (uint64, bool)) {
		b.Func(name, sig, func(ctx context.Context, mem soruntime.Space, st []uint64) {
			s := arg(st, 0)
			r := scanCInteger(cstr(name, mem, s), int(argI(st, 2)))
			v, rangeErr := conv(r)
			if rangeErr {
				l.setErrno(ctx, mem, soruntime.ERANGE)
			}
			l.setEnd(mem, arg(st, 1), s, r.n)
			st[0] = v
		})
	}
	integer("strtol", "iiii", func(r cInteger) (uint64, bool) {
		v, e := r.signed(32)
		return uint64(uint32(int32(v))), e
	})
	integer("strtoul", "iiii", func(r cInteger) (uint64, bool) {
		return r.unsigned(32)
	})
	integer("strtoll", "jiii", func(r cInteger) (uint64, bool) {
		v, e := r.signed(64)
		return uint64(v), e
	})
	integer("strtoull", "jiii", func(r cInteger) (uint64, bool) {
		return r.unsigned(64)
	})
	b.Alias("strtoimax", "strtoll")
	b.Alias("strtoumax", "strtoull")

	b.Func("strtod", "dii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		s := arg(st, 0)
		v, n, rangeErr := scanCFloat(cstr("strtod", mem, s))
		if rangeErr {
			l.setErrno(ctx, mem, soruntime.ERANGE)
		}
		l.setEnd(mem, arg(st, 1), s, n)
		retF64(st, v)
	})
	b.Func("strtof", "fii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		s := arg(st, 0)
		v, n, rangeErr := scanCFloat(cstr("strtof", mem, s))
		if rangeErr || (v != 0 && !math.IsInf(v, 0) && math.IsInf(float64(float32(v)), 0)) {
			l.setErrno(ctx, mem, soruntime.ERANGE)
		}
		l.setEnd(mem, arg(st, 1), s, n)
		retF32(st, float32(v))
	})

	atoi := func(_ context.Context, mem soruntime.Space, st []uint64) {
		v, _ := scanCInteger(cstr("atoi", mem, arg(st, 0)), 10).signed(32)
		ret(st, int32(v))
	}
	b.Func("atoi", "ii", atoi)
	b.Func("atol", "ii", atoi)
	b.Func("atoll", "ji", func(_ context.Context, mem soruntime.Space, st []uint64) {
		v, _ := scanCInteger(cstr("atoll", mem, arg(st, 0)), 10).signed(64)
		st[0] = uint64(v)
	})
	b.Func("atof", "di", func(_ context.Context, mem soruntime.Space, st []uint64) {
		v, _, _ := scanCFloat(cstr("atof", mem, arg(st, 0)))
		retF64(st, v)
	})
}
