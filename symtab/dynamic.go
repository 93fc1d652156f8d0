package symtab

import (
	"context"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/memory"
)

// PseudoHandle is returned by dlopen for every library name.
const PseudoHandle uint32 = 0xD1000001

func registerDynamic(b *Builder, t *Table) {
	b.Func("dlopen", "iii", func(ctx context.Context, mem soruntime.Space, stack []uint64) {
		name, _ := memory.ReadOptionalCString(mem, uint32(stack[0]))
		Logger().Debug("dlopen", zap.String("library", name))
		stack[0] = uint64(PseudoHandle)
	})
	b.Func("dlclose", "ii", func(_ context.Context, _ soruntime.Space, stack []uint64) {
		stack[0] = 0
	})
	b.Func("dlerror", "i", func(_ context.Context, _ soruntime.Space, stack []uint64) {
		stack[0] = 0
	})
	b.Func("dlsym", "iii", func(ctx context.Context, mem soruntime.Space, stack []uint64) {
		stack[0] = uint64(dlsym(t, mem, uint32(stack[1])))
	})
}

// dlsym never fails the caller; an unreadable or unknown name yields 0.
func dlsym(t *Table, mem soruntime.Memory, namePtr uint32) uint32 {
	name, err := memory.ReadCString(mem, namePtr)
	if err != nil {
		Logger().Warn("dlsym: unreadable name", zap.Error(err))
		return 0
	}
	Logger().Info("dlsym: searching", zap.String("symbol", name))
	e, ok := t.Lookup(name)
	if !ok {
		Logger().Warn("dlsym: not found", zap.String("symbol", name))
		return 0
	}
	Logger().Debug("dlsym: found", zap.String("symbol", name), zap.Uint32("addr", e.Addr))
	return e.Addr
}
