package cfmt

import (
	"math"
	"testing"

	"github.com/wippyai/so-runtime/memory"
)

// packer lays out a va_list the way VaList reads it.
type packer struct {
	space *memory.Paged
	base  uint32
	pos   uint32
}

func newPacker(t *testing.T) *packer {
	t.Helper()
	space := memory.NewPaged(memory.DefaultConfig())
	base, err := space.Alloc(512, 8)
	if err != nil {
		t.Fatal(err)
	}
	return &packer{space: space, base: base, pos: base}
}

func (p *packer) i32(v int32) *packer {
	p.pos = (p.pos + 3) &^ 3
	_ = p.space.WriteU32(p.pos, uint32(v))
	p.pos += 4
	return p
}

func (p *packer) u32(v uint32) *packer {
	return p.i32(int32(v))
}

func (p *packer) i64(v int64) *packer {
	p.pos = (p.pos + 7) &^ 7
	_ = p.space.WriteU64(p.pos, uint64(v))
	p.pos += 8
	return p
}

func (p *packer) f64(v float64) *packer {
	return p.i64(int64(math.Float64bits(v)))
}

func (p *packer) str(s string) *packer {
	ptr, _ := memory.AllocCString(p.space, s)
	return p.i32(int32(ptr))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		args   func(*packer)
		want   string
	}{
		{"plain", "hello", func(*packer) {}, "hello"},
		{"percent", "100%%", func(*packer) {}, "100%"},
		{"int", "%d|%i", func(p *packer) { p.i32(-42).i32(7) }, "-42|7"},
		{"width", "[%5d][%-5d][%05d]", func(p *packer) { p.i32(42).i32(42).i32(-42) }, "[   42][42   ][-0042]"},
		{"sign", "%+d % d", func(p *packer) { p.i32(5).i32(5) }, "+5  5"},
		{"precision int", "%.3d|%.0d", func(p *packer) { p.i32(7).i32(0) }, "007|"},
		{"unsigned", "%u", func(p *packer) { p.i32(-1) }, "4294967295"},
		{"hex", "%x %X %#x %#x", func(p *packer) { p.i32(255).i32(255).i32(255).i32(0) }, "ff FF 0xff 0"},
		{"octal", "%o", func(p *packer) { p.i32(8) }, "10"},
		{"short", "%hd %hhu", func(p *packer) { p.i32(70000).i32(257) }, "4464 1"},
		{"long long", "%lld %llx", func(p *packer) { p.i64(-1 << 40).i64(1 << 40) }, "-1099511627776 10000000000"},
		{"long is 32-bit", "%ld", func(p *packer) { p.i32(-3) }, "-3"},
		{"string", "%s=%.2s|%6s", func(p *packer) { p.str("key").str("value").str("ab") }, "key=va|    ab"},
		{"null string", "%s", func(p *packer) { p.i32(0) }, "(null)"},
		{"char", "%c%c", func(p *packer) { p.i32('o').i32('k') }, "ok"},
		{"pointer", "%p", func(p *packer) { p.u32(0x98000000) }, "0x98000000"},
		{"float", "%f %.2f %e", func(p *packer) { p.f64(1.5).f64(2.345).f64(1234.5) }, "1.500000 2.35 1.234500e+03"},
		{"general", "%g %g", func(p *packer) { p.f64(0.0001).f64(100000) }, "0.0001 100000"},
		{"mixed alignment", "%d %f %d", func(p *packer) { p.i32(1).f64(2).i32(3) }, "1 2.000000 3"},
		{"star", "[%*d][%.*f]", func(p *packer) { p.i32(4).i32(9).i32(1).f64(2.26) }, "[   9][2.3]"},
		{"trailing percent", "50%", func(*packer) {}, "50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPacker(t)
			tt.args(p)
			got, err := Format(p.space, tt.format, NewVaList(p.space, p.base))
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			if got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestFormat_N(t *testing.T) {
	p := newPacker(t)
	cell, _ := p.space.Alloc(4, 4)
	p.i32(12).i32(int32(cell))
	got, err := Format(p.space, "ab%dcd%n", NewVaList(p.space, p.base))
	if err != nil || got != "ab12cd" {
		t.Fatalf("Format = %q, %v", got, err)
	}
	n, _ := p.space.ReadU32(cell)
	if n != 6 {
		t.Fatalf("%%n stored %d", n)
	}
}

func TestFormat_Errors(t *testing.T) {
	p := newPacker(t)
	if _, err := Format(p.space, "%w", NewVaList(p.space, p.base)); err == nil {
		t.Error("unknown conversion should fail")
	}
	if _, err := Format(p.space, "%l", NewVaList(p.space, p.base)); err == nil {
		t.Error("truncated conversion should fail")
	}
	if _, err := Format(p.space, "%d", NewVaList(p.space, 0)); err == nil {
		t.Error("unreadable va_list should fail")
	}
}

func TestVaList_Pos(t *testing.T) {
	p := newPacker(t)
	p.i32(1).i64(2)
	va := NewVaList(p.space, p.base)
	_, _ = va.Int32()
	_, _ = va.Int64()
	if va.Pos() != p.pos {
		t.Fatalf("Pos = %x, want %x", va.Pos(), p.pos)
	}
}
