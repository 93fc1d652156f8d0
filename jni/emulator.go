package jni

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

// Sentinel handles returned for object-producing operations.
const (
	ClassHandle     uint32 = 0x41414141
	GlobalRefHandle uint32 = 0x42424242
	ObjectHandle    uint32 = 0x43434343
	ObjectClass     uint32 = 0x44444444
)

// Objects are the built pseudo-objects.
type Objects struct {
	VM  uint32
	Env uint32
}

// Emulator owns the VM and environment pseudo-objects.
type Emulator struct {
	device  DeviceInfo
	storage string

	disp       *dispatchTable
	objs       Objects
	storagePtr uint32
	mu         sync.RWMutex
}

// New creates an emulator reporting device and using storage as both the
// internal and external storage path.
func New(device DeviceInfo, storage string) *Emulator {
	return &Emulator{device: device, storage: storage}
}

// Device returns the reported device metadata.
func (e *Emulator) Device() DeviceInfo {
	return e.device
}

// Objects returns the built pseudo-objects, zero before Build.
func (e *Emulator) Objects() Objects {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.objs
}

// Build allocates and populates both pseudo-objects in space. Slot
// functions are registered in reg. Build may run once.
func (e *Emulator) Build(space soruntime.Space, reg *hostcall.Registry) (Objects, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.objs.VM != 0 {
		return Objects{}, errors.New(errors.PhaseEmulator, errors.KindDuplicate).
			Detail("pseudo-objects already built").Build()
	}

	strs := make(map[FieldID]uint32)
	for id, s := range e.device.strings() {
		p, err := memory.AllocCString(space, s)
		if err != nil {
			return Objects{}, err
		}
		strs[id] = p
	}
	storage, err := memory.AllocCString(space, e.storage)
	if err != nil {
		return Objects{}, err
	}

	vmAddrs := registerSlots(reg, "JavaVM::", VMSlots, e.vmFuncs())
	envAddrs := registerSlots(reg, "JNIEnv::", EnvSlots, e.envFuncs())

	vm, err := writeObject(space, VMSlots, vmAddrs)
	if err != nil {
		return Objects{}, err
	}
	env, err := writeObject(space, EnvSlots, envAddrs)
	if err != nil {
		return Objects{}, err
	}

	e.disp = newDispatchTable(e.device, strs)
	e.storagePtr = storage
	e.objs = Objects{VM: vm, Env: env}
	Logger().Debug("pseudo-objects built",
		zap.String("vm", hex(vm)),
		zap.String("env", hex(env)))
	return e.objs, nil
}

// Register adds the runtime glue exports that hand out the environment and
// storage paths.
func (e *Emulator) Register(b *symtab.Builder) {
	b.Func("Android_JNI_GetEnv", "i", func(_ context.Context, _ soruntime.Space, st []uint64) {
		st[0] = uint64(e.Objects().Env)
	})
	storage := func(_ context.Context, _ soruntime.Space, st []uint64) {
		e.mu.RLock()
		st[0] = uint64(e.storagePtr)
		e.mu.RUnlock()
	}
	b.Func("SDL_AndroidGetExternalStoragePath", "i", storage)
	b.Func("SDL_AndroidGetInternalStoragePath", "i", storage)
	b.Func("SDL_AndroidGetExternalStorageState", "i", func(_ context.Context, _ soruntime.Space, st []uint64) {
		// SDL_ANDROID_EXTERNAL_STORAGE_READ | SDL_ANDROID_EXTERNAL_STORAGE_WRITE
		st[0] = 3
	})
}

// registerSlots registers funcs in slot order so addresses are stable.
func registerSlots(reg *hostcall.Registry, prefix string, slots []Slot, funcs map[string]slotFunc) map[string]uint32 {
	addrs := make(map[string]uint32, len(slots))
	for _, s := range slots {
		if fn, ok := funcs[s.Name]; ok {
			addrs[s.Name] = reg.Register(prefix+s.Name, fn.sig, fn.fn)
		}
	}
	return addrs
}

func (e *Emulator) call(method MethodID, static bool, ret ReturnKind) uint64 {
	e.mu.RLock()
	d := e.disp
	e.mu.RUnlock()
	if d == nil {
		return 0
	}
	v := d.call(method, static, ret)
	if method != MethodUnknown {
		Logger().Debug("call", zap.Uint32("method", uint32(method)), zap.Bool("static", static),
			zap.Uint8("ret", uint8(ret)), zap.Uint64("bits", v))
	}
	return v
}

func (e *Emulator) field(field FieldID, static bool, ret ReturnKind) uint64 {
	e.mu.RLock()
	d := e.disp
	e.mu.RUnlock()
	if d == nil {
		return 0
	}
	return d.field(field, static, ret)
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}
