package libc

import (
	"context"
	"maps"
	"math"
	"slices"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/symtab"
)

var unaryMath = map[string]func(float64) float64{
	"sin":       math.Sin,
	"cos":       math.Cos,
	"tan":       math.Tan,
	"asin":      math.Asin,
	"acos":      math.Acos,
	"atan":      math.Atan,
	"sinh":      math.Sinh,
	"cosh":      math.Cosh,
	"tanh":      math.Tanh,
	"asinh":     math.Asinh,
	"acosh":     math.Acosh,
	"atanh":     math.Atanh,
	"exp":       math.Exp,
	"exp2":      math.Exp2,
	"expm1":     math.Expm1,
	"log":       math.Log,
	"log10":     math.Log10,
	"log2":      math.Log2,
	"log1p":     math.Log1p,
	"sqrt":      math.Sqrt,
	"cbrt":      math.Cbrt,
	"ceil":      math.Ceil,
	"floor":     math.Floor,
	"fabs":      math.Abs,
	"round":     math.Round,
	"trunc":     math.Trunc,
	"rint":      math.RoundToEven,
	"nearbyint": math.RoundToEven,
}

var binaryMath = map[string]func(float64, float64) float64{
	"pow":       math.Pow,
	"atan2":     math.Atan2,
	"fmod":      math.Mod,
	"hypot":     math.Hypot,
	"fmin":      math.Min,
	"fmax":      math.Max,
	"copysign":  math.Copysign,
	"remainder": math.Remainder,
	"fdim":      math.Dim,
}

// registerMath adds the double routines and their float variants. Results
// are computed in double precision and rounded once for the float forms.
func (l *Libc) registerMath(b *symtab.Builder) {
	for _, name := range slices.Sorted(maps.Keys(unaryMath)) {
		fn := unaryMath[name]
		b.Func(name, "dd", func(_ context.Context, _ soruntime.Space, st []uint64) {
			retF64(st, fn(argF64(st, 0)))
		})
		b.Func(name+"f", "ff", func(_ context.Context, _ soruntime.Space, st []uint64) {
			retF32(st, float32(fn(float64(argF32(st, 0)))))
		})
	}
	for _, name := range slices.Sorted(maps.Keys(binaryMath)) {
		fn := binaryMath[name]
		b.Func(name, "ddd", func(_ context.Context, _ soruntime.Space, st []uint64) {
			retF64(st, fn(argF64(st, 0), argF64(st, 1)))
		})
		b.Func(name+"f", "fff", func(_ context.Context, _ soruntime.Space, st []uint64) {
			retF32(st, float32(fn(float64(argF32(st, 0)), float64(argF32(st, 1)))))
		})
	}

	b.Func("modf", "ddi", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ip, frac := math.Modf(argF64(st, 0))
		must("modf", mem.WriteU64(arg(st, 1), math.Float64bits(ip)))
		retF64(st, frac)
	})
	b.Func("modff", "ffi", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ip, frac := math.Modf(float64(argF32(st, 0)))
		must("modff", mem.WriteU32(arg(st, 1), math.Float32bits(float32(ip))))
		retF32(st, float32(frac))
	})
	b.Func("frexp", "ddi", func(_ context.Context, mem soruntime.Space, st []uint64) {
		frac, exp := math.Frexp(argF64(st, 0))
		must("frexp", mem.WriteU32(arg(st, 1), uint32(int32(exp))))
		retF64(st, frac)
	})
	b.Func("frexpf", "ffi", func(_ context.Context, mem soruntime.Space, st []uint64) {
		frac, exp := math.Frexp(float64(argF32(st, 0)))
		must("frexpf", mem.WriteU32(arg(st, 1), uint32(int32(exp))))
		retF32(st, float32(frac))
	})
	b.Func("ldexp", "ddi", func(_ context.Context, _ soruntime.Space, st []uint64) {
		retF64(st, math.Ldexp(argF64(st, 0), int(argI(st, 1))))
	})
	b.Func("ldexpf", "ffi", func(_ context.Context, _ soruntime.Space, st []uint64) {
		retF32(st, float32(math.Ldexp(float64(argF32(st, 0)), int(argI(st, 1)))))
	})
	b.Alias("scalbn", "ldexp")
	b.Alias("scalbnf", "ldexpf")

	b.Func("lrint", "id", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, int32(math.RoundToEven(argF64(st, 0))))
	})
	b.Func("lrintf", "if", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, int32(math.RoundToEven(float64(argF32(st, 0)))))
	})
	b.Func("lround", "id", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, int32(math.Round(argF64(st, 0))))
	})
	b.Func("lroundf", "if", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, int32(math.Round(float64(argF32(st, 0)))))
	})
	b.Func("llrint", "jd", func(_ context.Context, _ soruntime.Space, st []uint64) {
		st[0] = uint64(int64(math.RoundToEven(argF64(st, 0))))
	})
	b.Func("llround", "jd", func(_ context.Context, _ soruntime.Space, st []uint64) {
		st[0] = uint64(int64(math.Round(argF64(st, 0))))
	})
	b.Func("sincos", "vdii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		s, c := math.Sincos(argF64(st, 0))
		must("sincos", mem.WriteU64(arg(st, 1), math.Float64bits(s)))
		must("sincos", mem.WriteU64(arg(st, 2), math.Float64bits(c)))
	})
	b.Func("sincosf", "vfii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		s, c := math.Sincos(float64(argF32(st, 0)))
		must("sincosf", mem.WriteU32(arg(st, 1), math.Float32bits(float32(s))))
		must("sincosf", mem.WriteU32(arg(st, 2), math.Float32bits(float32(c))))
	})
}
