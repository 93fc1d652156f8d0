package libc

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

// Android log priorities.
const (
	LogVerbose = 2
	LogDebug   = 3
	LogInfo    = 4
	LogWarn    = 5
	LogError   = 6
	LogFatal   = 7
)

// LogLevel maps an Android log priority to a zap level. Fatal messages are
// logged at error level; they do not stop the process.
func LogLevel(prio int32) zapcore.Level {
	switch {
	case prio <= LogDebug:
		return zapcore.DebugLevel
	case prio == LogInfo:
		return zapcore.InfoLevel
	case prio == LogWarn:
		return zapcore.WarnLevel
	}
	return zapcore.ErrorLevel
}

func androidLog(mem soruntime.Space, prio int32, tagPtr uint32, msg string) {
	tag, _ := memory.ReadOptionalCString(mem, tagPtr)
	if ce := Logger().Check(LogLevel(prio), strings.TrimRight(msg, "\n")); ce != nil {
		ce.Write(zap.String("tag", tag), zap.Int32("priority", prio))
	}
}

func (l *Libc) registerAndroid(b *symtab.Builder) {
	logf := func(name string) func(context.Context, soruntime.Space, []uint64) {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			androidLog(mem, argI(st, 0), arg(st, 1), format(name, mem, arg(st, 2), arg(st, 3)))
			ret(st, 1)
		}
	}
	b.Variadic("__android_log_print", "iiiii", logf("__android_log_print"))
	b.Func("__android_log_vprint", "iiiii", logf("__android_log_vprint"))
	b.Func("__android_log_write", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		androidLog(mem, argI(st, 0), arg(st, 1), cstr("__android_log_write", mem, arg(st, 2)))
		ret(st, 1)
	})
	b.Variadic("__android_log_assert", "viiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		msg := format("__android_log_assert", mem, arg(st, 2), arg(st, 3))
		androidLog(mem, LogFatal, arg(st, 1), msg)
		abort("__android_log_assert", msg)
	})
}
