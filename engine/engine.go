package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/engine/internal/wasmbin"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/loader"
)

// Names exported by the core module.
const (
	CoreModule    = "so:core"
	MemoryName    = "memory"
	TableName     = "__indirect_function_table"
	StackPointer  = "__stack_pointer"
	invokeExport  = "invoke"
	hostSuffix    = "$host"
	envModule     = "env"
	gotMemModule  = "GOT.mem"
	gotFuncModule = "GOT.func"
)

// Engine is a loader.Loader backed by wazero.
type Engine struct {
	rt    wazero.Runtime
	reg   *hostcall.Registry
	space *guestSpace
	sched *scheduler
	cfg   Config

	invokers  map[string]api.Module
	slotTypes map[uint32]wasmbin.FuncType
	modules   []*loader.Module
	installed int    // registry functions placed in the table
	tableNext uint32 // next free guest slot
	seq       int    // synthetic module counter
	mu        sync.Mutex
	closed    bool
}

var (
	_ loader.Loader           = (*Engine)(nil)
	_ loader.SpaceProvider    = (*Engine)(nil)
	_ loader.RegistryProvider = (*Engine)(nil)
	_ hostcall.GuestCaller    = (*Engine)(nil)
)

// New creates an engine and instantiates its core module.
func New(ctx context.Context, cfgs ...Config) (*Engine, error) {
	cfg := DefaultConfig()
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	if cfg.HostTableBase == 0 || cfg.HostTableBase >= cfg.TableSize {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("host table base %d outside table of %d", cfg.HostTableBase, cfg.TableSize).Build()
	}
	if uint64(cfg.HeapBase) >= cfg.memoryLimit() || cfg.stackTop() > cfg.ModuleFloor {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("layout does not fit %d pages", cfg.MemoryLimitPages).Build()
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithMemoryCapacityFromMax(true).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	initial := max(cfg.InitialPages, (cfg.stackTop()+pageSize-1)/pageSize)
	b := wasmbin.NewBuilder()
	b.Export(MemoryName, wasmbin.KindMemory, b.Memory(initial, cfg.MemoryLimitPages))
	b.Export(TableName, wasmbin.KindTable, b.Table(cfg.TableSize))
	b.Export(StackPointer, wasmbin.KindGlobal, b.Global(api.ValueTypeI32, true, int64(cfg.stackTop())))
	core, err := rt.InstantiateWithConfig(ctx, b.Bytes(), wazero.NewModuleConfig().WithName(CoreModule))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseStartup, errors.KindInvalidData, err, "instantiate core module")
	}
	sp, ok := core.ExportedGlobal(StackPointer).(api.MutableGlobal)
	if !ok {
		_ = rt.Close(ctx)
		return nil, errors.New(errors.PhaseStartup, errors.KindInvalidData).Detail("stack pointer is not mutable").Build()
	}

	e := &Engine{
		rt:        rt,
		cfg:       cfg,
		reg:       hostcall.NewRegistryWindow(cfg.HostTableBase, 1),
		space:     newGuestSpace(core.ExportedMemory(MemoryName), cfg),
		invokers:  make(map[string]api.Module),
		slotTypes: make(map[uint32]wasmbin.FuncType),
		tableNext: 1,
	}
	e.sched = newScheduler(sp, cfg.stackTop(), cfg.ThreadStackSize, e.space.Alloc)
	e.reg.SetGuestCaller(e)

	Logger().Debug("engine ready",
		zap.Uint32("pages", initial),
		zap.Uint32("table", cfg.TableSize),
		zap.Uint32("host_base", cfg.HostTableBase))
	return e, nil
}

// Space returns the core module's linear memory.
func (e *Engine) Space() soruntime.Space {
	return e.space
}

// Registry returns the registry whose addresses are host table slots.
func (e *Engine) Registry() *hostcall.Registry {
	return e.reg
}

// Close tears down every module.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.rt.Close(ctx)
}

// nextName returns a fresh synthetic module name. Caller holds e.mu.
func (e *Engine) nextName(kind string) string {
	e.seq++
	return fmt.Sprintf("so:%s:%d", kind, e.seq)
}

// allocSlot reserves n consecutive guest table slots aligned to align.
// Caller holds e.mu.
func (e *Engine) allocSlot(n, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	base := (e.tableNext + align - 1) &^ (align - 1)
	if uint64(base)+uint64(n) > uint64(e.cfg.HostTableBase) {
		return 0, errors.New(errors.PhaseRelocate, errors.KindAllocation).
			Detail("function table exhausted: need %d slots at %d", n, base).Build()
	}
	e.tableNext = base + n
	return base, nil
}

// SyncHosts places every registry function added since the last call into
// the host part of the table.
func (e *Engine) SyncHosts(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncHosts(ctx)
}

// syncHosts is SyncHosts with e.mu held.
func (e *Engine) syncHosts(ctx context.Context) error {
	hosts := e.reg.Hosts(e.installed)
	if len(hosts) == 0 {
		return nil
	}
	last := hosts[len(hosts)-1].Addr
	if last >= e.cfg.TableSize {
		return errors.New(errors.PhaseResolve, errors.KindAllocation).
			Detail("host window full: %d functions", last-e.cfg.HostTableBase+1).Build()
	}

	name := e.nextName("hosts")
	hb := e.rt.NewHostModuleBuilder(name + hostSuffix)
	b := wasmbin.NewBuilder()
	b.ImportTable(CoreModule, TableName, e.cfg.TableSize)
	funcs := make([]uint32, 0, len(hosts))
	for i, h := range hosts {
		t, err := sigType(h.Sig)
		if err != nil {
			return errors.New(errors.PhaseResolve, errors.KindInvalidInput).
				Symbol(h.Name).Cause(err).Build()
		}
		export := fmt.Sprintf("h%d", i)
		hb.NewFunctionBuilder().
			WithGoModuleFunction(e.bridge(h.Addr, h.Sig), t.Params, t.Results).
			WithName(h.Name).
			Export(export)
		funcs = append(funcs, b.ImportFunc(name+hostSuffix, export, t))
	}
	if _, err := hb.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseResolve, errors.KindInvalidData, err, "instantiate host functions")
	}
	b.Elem(hosts[0].Addr, funcs...)
	if _, err := e.rt.InstantiateWithConfig(ctx, b.Bytes(), wazero.NewModuleConfig().WithName(name)); err != nil {
		return errors.Wrap(errors.PhaseResolve, errors.KindInvalidData, err, "install host functions")
	}
	e.installed += len(hosts)
	Logger().Debug("host functions installed", zap.Int("count", len(hosts)), zap.Int("total", e.installed))
	return nil
}

// invoker returns a module whose "invoke" export calls a table slot with
// the given signature. Caller holds e.mu.
func (e *Engine) invoker(ctx context.Context, sig string) (api.Module, error) {
	if m, ok := e.invokers[sig]; ok {
		return m, nil
	}
	t, err := sigType(sig)
	if err != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).Cause(err).Build()
	}
	b := wasmbin.NewBuilder()
	target := b.Type(t)
	b.ImportTable(CoreModule, TableName, e.cfg.TableSize)
	params := append([]api.ValueType{api.ValueTypeI32}, t.Params...)
	var body []byte
	for i := range t.Params {
		body = append(body, wasmbin.LocalGet(uint32(i+1))...)
	}
	body = wasmbin.Concat(body, wasmbin.LocalGet(0), wasmbin.CallIndirect(target))
	fn := b.Func(wasmbin.FuncType{Params: params, Results: t.Results}, nil, body)
	b.Export(invokeExport, wasmbin.KindFunc, fn)

	m, err := e.rt.InstantiateWithConfig(ctx, b.Bytes(), wazero.NewModuleConfig().WithName("so:invoke:"+sig))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, err, "build invoker for "+sig)
	}
	e.invokers[sig] = m
	return m, nil
}

// CallGuest calls the guest function in table slot addr.
func (e *Engine) CallGuest(ctx context.Context, _ soruntime.Space, addr uint32, sig string, stack []uint64) error {
	e.mu.Lock()
	err := e.syncHosts(ctx)
	var inv api.Module
	if err == nil {
		inv, err = e.invoker(ctx, sig)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}

	t, _ := sigType(sig)
	params := make([]uint64, 0, len(t.Params)+1)
	params = append(params, uint64(addr))
	params = append(params, stack[:len(t.Params)]...)

	res, err := e.run(ctx, func(ctx context.Context) ([]uint64, error) {
		return inv.ExportedFunction(invokeExport).Call(ctx, params...)
	})
	if err != nil {
		return err
	}
	copy(stack, res)
	return nil
}

// run executes guest code under the guest lock. A fault raised by a host
// function is returned in preference to the trap it caused.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context) ([]uint64, error)) ([]uint64, error) {
	ctx, box := withFault(ctx)
	if err := e.sched.enter(ctx); err != nil {
		return nil, err
	}
	defer e.sched.leave(ctx)
	res, err := fn(ctx)
	if fault := box.get(); fault != nil {
		return nil, fault
	}
	if err != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindFault).
			Detail("guest trap").Cause(err).Build()
	}
	return res, nil
}

// bridge adapts the registry function at addr to a wazero host function.
// Guest execution is released for the duration of the host call.
func (e *Engine) bridge(addr uint32, sig string) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		e.sched.leave(ctx)
		err := e.reg.Call(ctx, e.space, addr, sig, stack)
		if enterErr := e.sched.enter(ctx); enterErr != nil && err == nil {
			err = enterErr
		}
		if err != nil {
			recordFault(ctx, err)
			panic(err)
		}
	}
}

type faultKey struct{}

type faultBox struct {
	err error
	mu  sync.Mutex
}

func withFault(ctx context.Context) (context.Context, *faultBox) {
	box := &faultBox{}
	return context.WithValue(ctx, faultKey{}, box), box
}

func (b *faultBox) get() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// recordFault keeps the first host error seen during a guest call.
func recordFault(ctx context.Context, err error) {
	box, ok := ctx.Value(faultKey{}).(*faultBox)
	if !ok {
		return
	}
	box.mu.Lock()
	if box.err == nil {
		box.err = err
	}
	box.mu.Unlock()
}
