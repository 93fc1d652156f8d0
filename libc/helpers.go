package libc

import (
	"github.com/tetratelabs/wazero/api"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
)

func ret(stack []uint64, v int32) {
	stack[0] = uint64(uint32(v))
}

func retU(stack []uint64, v uint32) {
	stack[0] = uint64(v)
}

func retF64(stack []uint64, v float64) {
	stack[0] = api.EncodeF64(v)
}

func retF32(stack []uint64, v float32) {
	stack[0] = api.EncodeF32(v)
}

func arg(stack []uint64, i int) uint32 {
	return uint32(stack[i])
}

func argI(stack []uint64, i int) int32 {
	return int32(uint32(stack[i]))
}

func argF64(stack []uint64, i int) float64 {
	return api.DecodeF64(stack[i])
}

func argF32(stack []uint64, i int) float32 {
	return api.DecodeF32(stack[i])
}

// fault aborts the calling foreign thread.
func fault(symbol string, err error) {
	hostcall.Raise(errors.New(errors.PhaseRuntime, errors.KindFault).
		Symbol(symbol).Cause(err).Build())
}

func must(symbol string, err error) {
	if err != nil {
		fault(symbol, err)
	}
}

func cstr(symbol string, mem soruntime.Memory, ptr uint32) string {
	s, err := memory.ReadCString(mem, ptr)
	must(symbol, err)
	return s
}

func read(symbol string, mem soruntime.Memory, ptr, n uint32) []byte {
	if n == 0 {
		return nil
	}
	b, err := mem.Read(ptr, n)
	must(symbol, err)
	return b
}

func write(symbol string, mem soruntime.Memory, ptr uint32, b []byte) {
	if len(b) == 0 {
		return
	}
	must(symbol, mem.Write(ptr, b))
}

// abort raises a fatal fault with a message and no underlying cause.
func abort(symbol, detail string) {
	hostcall.Raise(errors.Fault(symbol, detail))
}
