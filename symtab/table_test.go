package symtab

import (
	"context"
	"testing"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
)

func nop(context.Context, soruntime.Space, []uint64) {}

func newTestTable(t *testing.T) (*Table, *hostcall.Registry) {
	t.Helper()
	reg := hostcall.NewRegistry()
	b := NewBuilder(reg)
	b.Func("strlen", "ii", nop)
	b.Func("memcpy", "iiii", nop)
	b.Variadic("printf", "iii", nop)
	b.Data("__stack_chk_guard", 0x10000)
	b.Func("strlen", "ii", func(_ context.Context, _ soruntime.Space, s []uint64) { s[0] = 1 })
	if !b.Alias("__aeabi_memcpy", "memcpy") {
		t.Fatal("Alias failed")
	}
	if b.Alias("bogus", "nope") {
		t.Fatal("Alias of unknown target should fail")
	}
	return b.Build(), reg
}

func TestTable_FirstRegisteredWins(t *testing.T) {
	table, _ := newTestTable(t)

	var first Entry
	for _, e := range table.Entries() {
		if e.Name == "strlen" {
			first = e
			break
		}
	}
	got, ok := table.Lookup("strlen")
	if !ok || got.Addr != first.Addr {
		t.Fatalf("Lookup = %+v, want first entry %+v", got, first)
	}
	dups := table.Duplicates()
	if len(dups) != 1 || dups[0] != "strlen" {
		t.Fatalf("Duplicates = %v", dups)
	}
}

func TestTable_Kinds(t *testing.T) {
	table, reg := newTestTable(t)

	e, ok := table.Lookup("__stack_chk_guard")
	if !ok || e.Kind != KindData || e.Addr != 0x10000 {
		t.Fatalf("data entry = %+v", e)
	}
	p, _ := table.Lookup("printf")
	if !p.Variadic || p.Kind != KindFunc || !reg.IsHost(p.Addr) {
		t.Fatalf("printf entry = %+v", p)
	}
	a, _ := table.Lookup("__aeabi_memcpy")
	m, _ := table.Lookup("memcpy")
	if a.Addr != m.Addr {
		t.Fatal("alias should share the target address")
	}
	if KindData.String() != "data" || KindFunc.String() != "func" {
		t.Fatal("kind names")
	}
}

func TestTable_StaticAndDynamicAgree(t *testing.T) {
	table, reg := newTestTable(t)
	space := memory.NewPaged(memory.DefaultConfig())
	dlsymAddr := table.Resolve("dlsym")
	if dlsymAddr == 0 {
		t.Fatal("dlsym not registered")
	}

	for _, e := range table.Entries() {
		ptr, err := memory.AllocCString(space, e.Name)
		if err != nil {
			t.Fatal(err)
		}
		stack := []uint64{uint64(PseudoHandle), uint64(ptr)}
		if err := reg.Call(context.Background(), space, dlsymAddr, "iii", stack); err != nil {
			t.Fatalf("dlsym(%s): %v", e.Name, err)
		}
		static := table.Resolve(e.Name)
		if uint32(stack[0]) != static {
			t.Errorf("%s: dynamic %x != static %x", e.Name, stack[0], static)
		}
	}
}

func TestTable_DynamicMiss(t *testing.T) {
	table, reg := newTestTable(t)
	space := memory.NewPaged(memory.DefaultConfig())
	ptr, _ := memory.AllocCString(space, "glNotAThing")

	stack := []uint64{0, uint64(ptr)}
	if err := reg.Call(context.Background(), space, table.Resolve("dlsym"), "iii", stack); err != nil {
		t.Fatalf("dlsym: %v", err)
	}
	if stack[0] != 0 {
		t.Fatalf("miss returned %x", stack[0])
	}

	// unreadable name pointer is also a miss
	stack = []uint64{0, 0}
	_ = reg.Call(context.Background(), space, table.Resolve("dlsym"), "iii", stack)
	if stack[0] != 0 {
		t.Fatalf("null name returned %x", stack[0])
	}

	r := table.Report()
	found := false
	for _, m := range r.Missed {
		if m == "glNotAThing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Missed = %v", r.Missed)
	}
}

func TestTable_DlopenFamily(t *testing.T) {
	table, reg := newTestTable(t)
	space := memory.NewPaged(memory.DefaultConfig())
	name, _ := memory.AllocCString(space, "libGLESv2.so")
	ctx := context.Background()

	stack := []uint64{uint64(name), 0}
	_ = reg.Call(ctx, space, table.Resolve("dlopen"), "iii", stack)
	if uint32(stack[0]) != PseudoHandle {
		t.Fatalf("dlopen = %x", stack[0])
	}
	stack = []uint64{uint64(PseudoHandle)}
	_ = reg.Call(ctx, space, table.Resolve("dlclose"), "ii", stack)
	if stack[0] != 0 {
		t.Fatal("dlclose should return 0")
	}
	stack = []uint64{1}
	_ = reg.Call(ctx, space, table.Resolve("dlerror"), "i", stack)
	if stack[0] != 0 {
		t.Fatal("dlerror should return null")
	}
}

func TestTable_Report(t *testing.T) {
	table, _ := newTestTable(t)
	table.Lookup("strlen")
	table.Lookup("strlen")
	table.Lookup("missing_one")

	r := table.Report()
	if r.Used != 1 {
		t.Errorf("Used = %d, want 1", r.Used)
	}
	if r.Total != table.Len()-len(table.Duplicates()) {
		t.Errorf("Total = %d", r.Total)
	}
	if len(r.Unused) != r.Total-1 {
		t.Errorf("Unused = %d entries", len(r.Unused))
	}
	if len(r.Missed) != 1 || r.Missed[0] != "missing_one" {
		t.Errorf("Missed = %v", r.Missed)
	}
}

func TestBuilder_RegisterAfterBuildPanics(t *testing.T) {
	b := NewBuilder(hostcall.NewRegistry())
	b.Build()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	b.Func("late", "v", nop)
}
