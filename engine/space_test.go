package engine

import (
	"testing"
)

func TestGuestSpace_AllocGrows(t *testing.T) {
	e := newEngine(t)
	s := e.space

	before := s.Size()
	if before >= e.cfg.HeapBase {
		t.Fatalf("memory already covers the heap: %d", before)
	}
	ptr, err := s.Alloc(1<<20, 16)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ptr < e.cfg.HeapBase || ptr%16 != 0 {
		t.Fatalf("ptr = 0x%x", ptr)
	}
	if s.Size() < ptr+1<<20 {
		t.Fatalf("memory not grown: size 0x%x", s.Size())
	}
	if err := s.WriteU64(ptr+1<<20-8, 0x1122334455667788); err != nil {
		t.Fatalf("write at end of block: %v", err)
	}
	if v, _ := s.ReadU64(ptr + 1<<20 - 8); v != 0x1122334455667788 {
		t.Fatalf("ReadU64 = %x", v)
	}
	s.Free(ptr, 0, 0)
	if s.Live() != 0 {
		t.Fatalf("Live = %d", s.Live())
	}

	if _, err := s.Alloc(uint32(e.cfg.memoryLimit()), 8); err == nil {
		t.Fatal("allocation beyond the memory cap should fail")
	}
	if s.Live() != 0 {
		t.Fatal("failed allocation left a block behind")
	}
}

func TestGuestSpace_Access(t *testing.T) {
	e := newEngine(t)
	s := e.space

	if err := s.Write(0x100, []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read(0x100, 3)
	if err != nil || string(got) != "abc" {
		t.Fatalf("Read = %q %v", got, err)
	}
	got[0] = 'x'
	if b, _ := s.ReadU8(0x100); b != 'a' {
		t.Fatal("Read must return a copy")
	}
	_ = s.WriteU16(0x200, 0xBEEF)
	if v, _ := s.ReadU16(0x200); v != 0xBEEF {
		t.Fatalf("ReadU16 = %x", v)
	}

	_ = s.WriteU32(0x300, 1)
	if ok, err := s.CompareAndSwapU32(0x300, 0, 2); ok || err != nil {
		t.Fatalf("CAS with stale value = %v %v", ok, err)
	}
	if ok, _ := s.CompareAndSwapU32(0x300, 1, 2); !ok {
		t.Fatal("CAS failed")
	}
	if v, _ := s.ReadU32(0x300); v != 2 {
		t.Fatalf("after CAS = %d", v)
	}

	end := s.Size()
	if _, err := s.ReadU32(end - 2); err == nil {
		t.Fatal("read past end should fail")
	}
	if err := s.WriteU8(end, 1); err == nil {
		t.Fatal("write past end should fail")
	}
	if _, err := s.CompareAndSwapU32(end, 0, 1); err == nil {
		t.Fatal("CAS past end should fail")
	}
}

func TestSigType(t *testing.T) {
	tests := []struct {
		sig     string
		params  int
		results int
		ok      bool
	}{
		{"v", 0, 0, true},
		{"iii", 2, 1, true},
		{"vdii", 3, 0, true},
		{"jiiii", 4, 1, true},
		{"", 0, 0, false},
		{"ivi", 0, 0, false},
		{"ix", 0, 0, false},
	}
	for _, tt := range tests {
		ft, err := sigType(tt.sig)
		if (err == nil) != tt.ok {
			t.Errorf("sigType(%q) err = %v", tt.sig, err)
			continue
		}
		if !tt.ok {
			continue
		}
		if len(ft.Params) != tt.params || len(ft.Results) != tt.results {
			t.Errorf("sigType(%q) = %+v", tt.sig, ft)
		}
		if back := sigOf(ft.Params, ft.Results); back != tt.sig {
			t.Errorf("sigOf(sigType(%q)) = %q", tt.sig, back)
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	ctx := t.Context()
	if _, err := New(ctx, DefaultConfig().WithTable(16, 32)); err == nil {
		t.Fatal("host base beyond table must fail")
	}
	if _, err := New(ctx, DefaultConfig().WithMemoryLimit(16)); err == nil {
		t.Fatal("heap beyond memory cap must fail")
	}
}
