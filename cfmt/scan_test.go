package cfmt

import (
	"math"
	"testing"

	"github.com/wippyai/so-runtime/memory"
)

func TestScan(t *testing.T) {
	p := newPacker(t)
	cells, err := p.space.Alloc(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	ptr := func(i uint32) int32 { return int32(cells + 8*i) }
	p.i32(ptr(0)).i32(ptr(1)).i32(ptr(2)).i32(ptr(3)).i32(ptr(4)).i32(ptr(5))

	n, err := Scan(p.space, "  -42 0x1f 3.5 name 2.25 tail", "%d %i %f %s %lf%n", NewVaList(p.space, p.base))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("assigned = %d, want 5", n)
	}
	v0, _ := p.space.ReadU32(cells)
	v1, _ := p.space.ReadU32(cells + 8)
	v2, _ := p.space.ReadU32(cells + 16)
	s, _ := memory.ReadCString(p.space, cells+24)
	v4, _ := p.space.ReadU64(cells + 32)
	consumed, _ := p.space.ReadU32(cells + 40)

	if int32(v0) != -42 || v1 != 31 || math.Float32frombits(v2) != 3.5 || s != "name" ||
		math.Float64frombits(v4) != 2.25 || consumed != 24 {
		t.Fatalf("got %d %d %v %q %v %d", int32(v0), v1, math.Float32frombits(v2), s,
			math.Float64frombits(v4), consumed)
	}
}

func TestScan_Partial(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format string
		want   int
	}{
		{"empty input", "", "%d", -1},
		{"only spaces", "   ", "%d", -1},
		{"mismatch", "abc", "%d", 0},
		{"literal", "w=3,h=4", "w=%d,h=%d", 2},
		{"literal mismatch", "w=3;h=4", "w=%d,h=%d", 1},
		{"suppressed", "1 2", "%*d %d", 1},
		{"width", "12345", "%2d%d", 2},
		{"percent", "50%", "%d%%", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPacker(t)
			cells, _ := p.space.Alloc(16, 8)
			p.i32(int32(cells)).i32(int32(cells + 4))
			n, err := Scan(p.space, tt.input, tt.format, NewVaList(p.space, p.base))
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Fatalf("Scan = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestScan_Width(t *testing.T) {
	p := newPacker(t)
	cells, _ := p.space.Alloc(16, 8)
	p.i32(int32(cells)).i32(int32(cells + 4))
	if _, err := Scan(p.space, "12345", "%2d%d", NewVaList(p.space, p.base)); err != nil {
		t.Fatal(err)
	}
	a, _ := p.space.ReadU32(cells)
	b, _ := p.space.ReadU32(cells + 4)
	if a != 12 || b != 345 {
		t.Fatalf("got %d %d", a, b)
	}
}
