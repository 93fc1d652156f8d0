package jni

import (
	"context"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
)

type slotFunc struct {
	fn  hostcall.Func
	sig string
}

func arg(st []uint64, i int) uint32 {
	return uint32(st[i])
}

func fault(name string, err error) {
	hostcall.Raise(errors.New(errors.PhaseEmulator, errors.KindFault).Symbol(name).Cause(err).Build())
}

func cstr(name string, mem soruntime.Memory, ptr uint32) string {
	s, err := memory.ReadCString(mem, ptr)
	if err != nil {
		fault(name, err)
	}
	return s
}

func retZero(_ context.Context, _ soruntime.Space, st []uint64) {
	st[0] = 0
}

func constant(v uint32) hostcall.Func {
	return func(_ context.Context, _ soruntime.Space, st []uint64) {
		st[0] = uint64(v)
	}
}

func (e *Emulator) vmFuncs() map[string]slotFunc {
	writeEnv := func(name string) hostcall.Func {
		return func(_ context.Context, mem soruntime.Space, st []uint64) {
			if out := arg(st, 1); out != 0 {
				if err := mem.WriteU32(out, e.Objects().Env); err != nil {
					fault(name, err)
				}
			}
			st[0] = 0
		}
	}
	return map[string]slotFunc{
		"AttachCurrentThread": {writeEnv("AttachCurrentThread"), "iiii"},
		"DetachCurrentThread": {retZero, "ii"},
		"GetEnv":              {writeEnv("GetEnv"), "iiii"},
	}
}

func (e *Emulator) typedCall(static bool, ret ReturnKind) hostcall.Func {
	return func(_ context.Context, _ soruntime.Space, st []uint64) {
		v := e.call(MethodID(arg(st, 2)), static, ret)
		if ret != ReturnVoid {
			st[0] = v
		}
	}
}

func (e *Emulator) typedField(static bool, ret ReturnKind) hostcall.Func {
	return func(_ context.Context, _ soruntime.Space, st []uint64) {
		st[0] = e.field(FieldID(arg(st, 2)), static, ret)
	}
}

func methodLookup(name string) hostcall.Func {
	return func(_ context.Context, mem soruntime.Space, st []uint64) {
		n := cstr(name, mem, arg(st, 2))
		id := LookupMethod(n)
		Logger().Debug(name, zap.String("name", n), zap.Uint32("id", uint32(id)))
		st[0] = uint64(id)
	}
}

func fieldLookup(name string, lookup func(string) FieldID) hostcall.Func {
	return func(_ context.Context, mem soruntime.Space, st []uint64) {
		n := cstr(name, mem, arg(st, 2))
		id := lookup(n)
		Logger().Debug(name, zap.String("name", n), zap.Uint32("id", uint32(id)))
		st[0] = uint64(id)
	}
}

func (e *Emulator) envFuncs() map[string]slotFunc {
	return map[string]slotFunc{
		"FindClass": {func(_ context.Context, mem soruntime.Space, st []uint64) {
			Logger().Debug("FindClass", zap.String("name", cstr("FindClass", mem, arg(st, 1))))
			st[0] = uint64(ClassHandle)
		}, "iii"},
		"NewGlobalRef":    {constant(GlobalRefHandle), "iii"},
		"DeleteGlobalRef": {retZero, "vii"},
		"DeleteLocalRef":  {retZero, "vii"},
		"NewObjectV":      {constant(ObjectHandle), "iiiii"},
		"GetObjectClass":  {constant(ObjectClass), "iii"},

		"GetMethodID":       {methodLookup("GetMethodID"), "iiiii"},
		"GetStaticMethodID": {methodLookup("GetStaticMethodID"), "iiiii"},
		"GetFieldID":        {fieldLookup("GetFieldID", LookupField), "iiiii"},
		"GetStaticFieldID":  {fieldLookup("GetStaticFieldID", LookupStaticField), "iiiii"},

		"CallObjectMethodV":  {e.typedCall(false, ReturnObject), "iiiii"},
		"CallBooleanMethodV": {e.typedCall(false, ReturnBoolean), "iiiii"},
		// Unknown ids answer 0 like every other typed call, not the -1 the
		// game build returned for all long calls.
		"CallLongMethodV":          {e.typedCall(false, ReturnLong), "jiiii"},
		"CallVoidMethodV":          {e.typedCall(false, ReturnVoid), "viiii"},
		"CallStaticObjectMethodV":  {e.typedCall(true, ReturnObject), "iiiii"},
		"CallStaticBooleanMethodV": {e.typedCall(true, ReturnBoolean), "iiiii"},
		"CallStaticIntMethodV":     {e.typedCall(true, ReturnInt), "iiiii"},
		"CallStaticFloatMethodV":   {e.typedCall(true, ReturnFloat), "fiiii"},
		"CallStaticVoidMethodV":    {e.typedCall(true, ReturnVoid), "viiii"},

		"GetBooleanField":      {e.typedField(false, ReturnBoolean), "iiii"},
		"GetIntField":          {e.typedField(false, ReturnInt), "iiii"},
		"GetFloatField":        {e.typedField(false, ReturnFloat), "fiii"},
		"GetStaticObjectField": {e.typedField(true, ReturnObject), "iiii"},

		"NewStringUTF": {func(_ context.Context, _ soruntime.Space, st []uint64) {
			st[0] = uint64(arg(st, 1))
		}, "iii"},
		"GetStringUTFLength": {func(_ context.Context, mem soruntime.Space, st []uint64) {
			st[0] = uint64(uint32(len(cstr("GetStringUTFLength", mem, arg(st, 1)))))
		}, "iii"},
		"GetStringUTFChars": {func(_ context.Context, mem soruntime.Space, st []uint64) {
			if isCopy := arg(st, 2); isCopy != 0 {
				if err := mem.WriteU8(isCopy, 0); err != nil {
					fault("GetStringUTFChars", err)
				}
			}
			st[0] = uint64(arg(st, 1))
		}, "iiii"},
		"ReleaseStringUTFChars": {retZero, "viii"},
		"GetStringUTFRegion": {func(_ context.Context, mem soruntime.Space, st []uint64) {
			str, start, n, buf := arg(st, 1), arg(st, 2), arg(st, 3), arg(st, 4)
			data, err := mem.Read(str+start, n)
			if err == nil {
				err = mem.Write(buf, data)
			}
			if err == nil {
				err = mem.WriteU8(buf+n, 0)
			}
			if err != nil {
				fault("GetStringUTFRegion", err)
			}
		}, "viiiii"},
		"GetJavaVM": {func(_ context.Context, mem soruntime.Space, st []uint64) {
			if err := mem.WriteU32(arg(st, 1), e.Objects().VM); err != nil {
				fault("GetJavaVM", err)
			}
			st[0] = 0
		}, "iii"},
	}
}
