package shadercache

import (
	"context"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

// readSources concatenates the count strings of a glShaderSource call.
// A null lengths array or a negative length means NUL-terminated.
func readSources(mem soruntime.Memory, count int32, strs, lengths uint32) ([]byte, error) {
	if count < 0 {
		return nil, errors.New(errors.PhaseCache, errors.KindInvalidInput).
			Detail("negative shader string count %d", count).Build()
	}
	var src []byte
	for n := uint32(0); n < uint32(count); n++ {
		p, err := mem.ReadU32(strs + 4*n)
		if err != nil {
			return nil, err
		}
		length := int32(-1)
		if lengths != 0 {
			l, err := mem.ReadU32(lengths + 4*n)
			if err != nil {
				return nil, err
			}
			length = int32(l)
		}
		var part []byte
		if length < 0 {
			s, err := memory.ReadCString(mem, p)
			if err != nil {
				return nil, err
			}
			part = []byte(s)
		} else if part, err = memory.ReadBytes(mem, p, uint32(length)); err != nil {
			return nil, err
		}
		src = append(src, part...)
	}
	return src, nil
}

// Register adds glShaderSource, glCompileShader and SDL_GL_GetProcAddress to
// b. The returned map holds the hooked GL entry points by name.
func (i *Interceptor) Register(b *symtab.Builder) map[string]uint32 {
	hooks := map[string]uint32{}
	hooks["glShaderSource"] = b.Func("glShaderSource", "viiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		shader := uint32(st[0])
		src, err := readSources(mem, int32(uint32(st[1])), uint32(st[2]), uint32(st[3]))
		if err != nil {
			hostcall.Raise(errors.New(errors.PhaseCache, errors.KindOutOfBounds).
				Symbol("glShaderSource").Cause(err).Build())
		}
		if _, _, err := i.Submit(ctx, shader, src); err != nil {
			Logger().Warn("shader submission failed", zap.Uint32("shader", shader), zap.Error(err))
		}
	})
	hooks["glCompileShader"] = b.Func("glCompileShader", "vi", func(ctx context.Context, _ soruntime.Space, st []uint64) {
		_ = i.Compile(ctx, uint32(st[0]))
	})
	b.Func("SDL_GL_GetProcAddress", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		name, err := memory.ReadCString(mem, uint32(st[0]))
		if err != nil {
			st[0] = 0
			return
		}
		if addr, ok := hooks[name]; ok {
			st[0] = uint64(addr)
			return
		}
		st[0] = uint64(i.driver.GetProcAddress(name))
	})
	return hooks
}
