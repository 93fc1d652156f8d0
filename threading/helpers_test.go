package threading

import (
	"context"
	"fmt"
	"testing"

	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

type fixture struct {
	shim  *Shim
	reg   *hostcall.Registry
	table *symtab.Table
	space *memory.Paged
}

func newFixture(t *testing.T, opts ...Options) *fixture {
	t.Helper()
	reg := hostcall.NewRegistry()
	shim := New(reg, opts...)
	b := symtab.NewBuilder(reg)
	shim.Register(b)
	return &fixture{
		shim:  shim,
		reg:   reg,
		table: b.Build(),
		space: memory.NewPaged(memory.DefaultConfig()),
	}
}

// word allocates a zeroed 32-bit cell holding v.
func (f *fixture) word(t *testing.T, v uint32) uint32 {
	t.Helper()
	p, err := f.space.Alloc(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.space.WriteU32(p, v); err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) read(t *testing.T, p uint32) uint32 {
	t.Helper()
	v, err := f.space.ReadU32(p)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// invoke calls a registered function by name on thread tid.
func (f *fixture) invoke(tid uint32, name string, args ...uint32) (int32, error) {
	e, ok := f.table.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%s not registered", name)
	}
	stack := make([]uint64, max(len(args), 1))
	for i, a := range args {
		stack[i] = uint64(a)
	}
	ctx := hostcall.WithThread(context.Background(), tid)
	if err := f.reg.Call(ctx, f.space, e.Addr, e.Sig, stack); err != nil {
		return 0, err
	}
	return int32(uint32(stack[0])), nil
}

func (f *fixture) call(t *testing.T, tid uint32, name string, args ...uint32) int32 {
	t.Helper()
	rc, err := f.invoke(tid, name, args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return rc
}
