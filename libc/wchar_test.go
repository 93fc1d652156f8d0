package libc

import (
	"context"
	"testing"

	soruntime "github.com/wippyai/so-runtime"
)

// wide allocates s as a NUL-terminated wchar_t string.
func (f *fixture) wide(t *testing.T, s string) uint64 {
	t.Helper()
	ws := widen(s)
	p := f.buf(t, uint32(4*len(ws)+4))
	writeWideString("test", f.space, uint32(p), ws)
	return p
}

func (f *fixture) readWide(t *testing.T, p uint64) string {
	t.Helper()
	return narrow(wideString("test", f.space, uint32(p)))
}

func TestWideStrings(t *testing.T) {
	f := newFixture(t)
	abc, abd := f.wide(t, "abc"), f.wide(t, "abd")

	if n := f.call(t, "wcslen", "ii", f.wide(t, "größe")); n != 5 {
		t.Fatalf("wcslen = %d", n)
	}
	tests := []struct {
		name string
		a, b uint64
		want int32
	}{
		{"wcscmp", abc, abc, 0},
		{"wcscmp", abc, abd, -1},
		{"wcscoll", abd, abc, 1},
		{"wcscmp", abc, f.wide(t, "ab"), 1},
	}
	for _, tt := range tests {
		if got := int32(uint32(f.call(t, tt.name, "iii", tt.a, tt.b))); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}

	dst := f.buf(t, 32)
	f.call(t, "wcsncpy", "iiii", dst, abc, 6)
	if got := f.readWide(t, dst); got != "abc" {
		t.Fatalf("wcsncpy = %q", got)
	}
	if w, _ := f.space.ReadU32(uint32(dst) + 20); w != 0 {
		t.Fatal("wcsncpy did not pad")
	}
	if n := f.call(t, "wcsxfrm", "iiii", dst, abd, 2); n != 3 || f.readWide(t, dst) != "abc" {
		t.Fatalf("short wcsxfrm = %d wrote %q", n, f.readWide(t, dst))
	}
	if n := f.call(t, "wcsxfrm", "iiii", dst, abd, 8); n != 3 || f.readWide(t, dst) != "abd" {
		t.Fatalf("wcsxfrm = %d %q", n, f.readWide(t, dst))
	}
}

func TestWideMemory(t *testing.T) {
	f := newFixture(t)
	buf := f.buf(t, 64)

	f.call(t, "wmemset", "iiii", buf, 'x', 4)
	if p := f.call(t, "wmemchr", "iiii", buf, 'x', 4); p != buf {
		t.Fatalf("wmemchr = %#x, want %#x", p, buf)
	}
	if p := f.call(t, "wmemchr", "iiii", buf, 'y', 4); p != 0 {
		t.Fatalf("wmemchr miss = %#x", p)
	}
	src := f.wide(t, "héllo")
	f.call(t, "wmemcpy", "iiii", buf, src, 6)
	if got := f.readWide(t, buf); got != "héllo" {
		t.Fatalf("wmemcpy = %q", got)
	}
	// overlapping move shifts the string right by one
	f.call(t, "wmemmove", "iiii", buf+4, buf, 6)
	if got := f.readWide(t, buf); got != "hhéllo" {
		t.Fatalf("wmemmove = %q", got)
	}
	if rc := int32(uint32(f.call(t, "wmemcmp", "iiii", buf+4, src, 5))); rc != 0 {
		t.Fatalf("wmemcmp = %d", rc)
	}
	if rc := int32(uint32(f.call(t, "wmemcmp", "iiii", buf, src, 2))); rc != -1 {
		t.Fatalf("wmemcmp differing = %d", rc)
	}
}

func TestMultibyte(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wc := f.buf(t, 4)

	eacute := f.str(t, "é!")
	if n := f.call(t, "mbrtowc", "iiiii", wc, eacute, 8, 0); n != 2 {
		t.Fatalf("mbrtowc = %d", n)
	}
	if v, _ := f.space.ReadU32(uint32(wc)); v != 0xE9 {
		t.Fatalf("mbrtowc decoded %#x", v)
	}
	if n := f.call(t, "mbrtowc", "iiiii", wc, eacute, 1, 0); uint32(n) != mbIncomplete {
		t.Fatalf("split sequence = %#x", n)
	}
	if n := f.call(t, "mbrtowc", "iiiii", wc, f.str(t, "\xff"), 1, 0); uint32(n) != mbInvalid {
		t.Fatalf("invalid byte = %#x", n)
	}
	if e := f.libc.Errno().Get(ctx, f.space); e != soruntime.EILSEQ {
		t.Fatalf("errno = %d, want EILSEQ", e)
	}
	if n := f.call(t, "mbrtowc", "iiiii", wc, f.str(t, ""), 1, 0); n != 0 {
		t.Fatalf("mbrtowc of NUL = %d", n)
	}

	out := f.buf(t, 8)
	if n := f.call(t, "wcrtomb", "iiii", out, 0x20AC, 0); n != 3 {
		t.Fatalf("wcrtomb = %d", n)
	}
	if b, _ := f.space.Read(uint32(out), 3); string(b) != "€" {
		t.Fatalf("wcrtomb wrote %q", b)
	}
	if n := f.call(t, "wcrtomb", "iiii", out, 0xD800, 0); uint32(n) != mbInvalid {
		t.Fatalf("surrogate = %#x", n)
	}

	if c := f.call(t, "btowc", "ii", 'A'); c != 'A' {
		t.Fatalf("btowc = %d", c)
	}
	if c := f.call(t, "btowc", "ii", 0xE9); uint32(c) != WEOF {
		t.Fatalf("btowc high byte = %#x", c)
	}
	if c := int32(uint32(f.call(t, "wctob", "ii", 0xE9))); c != -1 {
		t.Fatalf("wctob = %d", c)
	}
}

func TestWideClasses(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		wc   uint64
		want uint64
	}{
		{"iswalpha", 'é', 1},
		{"iswalpha", '1', 0},
		{"iswdigit", '7', 1},
		{"iswdigit", 0x0663, 0},
		{"iswspace", '\t', 1},
		{"iswupper", 'É', 1},
		{"iswlower", 'É', 0},
		{"iswpunct", '!', 1},
		{"iswprint", 0x07, 0},
		{"iswcntrl", 0x07, 1},
		{"iswxdigit", 'F', 1},
		{"iswxdigit", 'g', 0},
	}
	for _, tt := range tests {
		if got := f.call(t, tt.name, "ii", tt.wc); got != tt.want {
			t.Errorf("%s(%#x) = %d, want %d", tt.name, tt.wc, got, tt.want)
		}
	}

	upper := f.call(t, "wctype", "ii", f.str(t, "upper"))
	if upper == 0 {
		t.Fatal("wctype(upper) = 0")
	}
	if f.call(t, "iswctype", "iii", 'Q', upper) != 1 || f.call(t, "iswctype", "iii", 'q', upper) != 0 {
		t.Fatal("iswctype(upper) wrong")
	}
	if f.call(t, "wctype", "ii", f.str(t, "nope")) != 0 || f.call(t, "iswctype", "iii", 'q', 0) != 0 {
		t.Fatal("unknown class accepted")
	}
	if c := f.call(t, "towupper", "ii", 'é'); c != 'É' {
		t.Fatalf("towupper = %#x", c)
	}
	if c := f.call(t, "towlower", "ii", 'Z'); c != 'z' {
		t.Fatalf("towlower = %#x", c)
	}
	if c := f.call(t, "towlower", "ii", uint64(WEOF)); uint32(c) != WEOF {
		t.Fatalf("towlower(WEOF) = %#x", c)
	}
}

func TestWideFormat(t *testing.T) {
	f := newFixture(t)
	buf := f.buf(t, 64)

	n := f.call(t, "vswprintf", "iiiii", buf, 16, f.wide(t, "%d-%s é"), f.vaList(t, 42, uint32(f.str(t, "ab"))))
	if got := f.readWide(t, buf); n != 7 || got != "42-ab é" {
		t.Fatalf("vswprintf = %d %q", n, got)
	}
	n = f.call(t, "vswprintf", "iiiii", buf, 3, f.wide(t, "%d"), f.vaList(t, 12345))
	if got := f.readWide(t, buf); int32(uint32(n)) != -1 || got != "12" {
		t.Fatalf("truncated vswprintf = %d %q", int32(uint32(n)), got)
	}

	ts := f.buf(t, 4)
	_ = f.space.WriteU32(uint32(ts), 86400)
	tm := f.buf(t, 44)
	f.call(t, "gmtime_r", "iii", ts, tm)
	if n := f.call(t, "wcsftime", "iiiii", buf, 16, f.wide(t, "%F"), tm); n != 10 || f.readWide(t, buf) != "1970-01-02" {
		t.Fatalf("wcsftime = %d %q", n, f.readWide(t, buf))
	}
	if n := f.call(t, "wcsftime", "iiiii", buf, 4, f.wide(t, "%F"), tm); n != 0 {
		t.Fatalf("wcsftime overflow = %d", n)
	}
}
