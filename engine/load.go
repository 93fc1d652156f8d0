package engine

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/so-runtime/engine/internal/wasmbin"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/loader"
	"github.com/wippyai/so-runtime/symtab"
)

// Initializer exports, in the order they are tried. Data relocations always
// run first; only the first constructor entry found runs.
const applyDataRelocs = "__wasm_apply_data_relocs"

var constructors = []string{"_initialize", "__wasm_call_ctors", "__post_instantiate"}

// image is the engine's per-module state, kept in loader.Module.Image.
type image struct {
	raw      []byte
	dylink   *wasmbin.Dylink
	exports  map[string]byte // name -> external kind
	imports  []wasmbin.Import
	compiled wazero.CompiledModule
	instance api.Module
	gotMem   api.Module
	gotFunc  api.Module
	pending  []pendingGOT

	tableBase   uint32
	relocatable bool
	resolved    bool
}

// pendingGOT is a GOT entry the module satisfies itself, filled once the
// module is instantiated.
type pendingGOT struct {
	name string
	kind byte
}

func imageOf(m *loader.Module, phase errors.Phase) (*image, error) {
	img, ok := m.Image.(*image)
	if !ok {
		return nil, errors.New(phase, errors.KindInvalidInput).
			Module(m.Name).Detail("module was not loaded by this engine").Build()
	}
	return img, nil
}

// Load reads the image at m.Path and checks its structure.
func (e *Engine) Load(ctx context.Context, m *loader.Module) error {
	raw, err := os.ReadFile(m.Path)
	if err != nil {
		return errors.New(errors.PhaseLoad, errors.KindIO).Module(m.Name).Path(m.Path).Cause(err).Build()
	}
	return e.LoadBytes(ctx, m, raw)
}

// LoadBytes is Load for an image already in memory.
func (e *Engine) LoadBytes(_ context.Context, m *loader.Module, raw []byte) error {
	invalid := func(err error, detail string) error {
		return errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Module(m.Name).Path(m.Path).Detail("%s", detail).Cause(err).Build()
	}
	dl, err := wasmbin.ParseDylink(raw)
	if err != nil {
		return invalid(err, "dynamic linking metadata")
	}
	exports, err := wasmbin.ParseExports(raw)
	if err != nil {
		return invalid(err, "export section")
	}
	img := &image{
		raw:         raw,
		dylink:      dl,
		relocatable: dl != nil,
		exports:     make(map[string]byte, len(exports)),
	}
	if dl == nil {
		img.dylink = &wasmbin.Dylink{}
		Logger().Warn("module has no dylink section; data is placed by the module itself",
			zap.String("module", m.Name))
	}
	for _, x := range exports {
		img.exports[x.Name] = x.Kind
	}
	m.Image = img
	m.Size = img.dylink.MemorySize
	Logger().Info("module loaded",
		zap.String("module", m.Name),
		zap.Int("bytes", len(raw)),
		zap.Uint32("memory", img.dylink.MemorySize),
		zap.Uint32("table", img.dylink.TableSize),
		zap.Strings("needed", img.dylink.Needed))
	return nil
}

// Relocate places the module's data at m.Base and its functions in a fresh
// table range, then compiles the image with its imports renamed into the
// module's own namespaces.
func (e *Engine) Relocate(ctx context.Context, m *loader.Module) error {
	img, err := imageOf(m, errors.PhaseRelocate)
	if err != nil {
		return err
	}
	dl := img.dylink
	if align := uint32(1) << min(dl.MemoryAlign, 31); m.Base%align != 0 {
		return errors.New(errors.PhaseRelocate, errors.KindInvalidInput).Module(m.Name).
			Address(m.Base).Detail("base not aligned to %d", align).Build()
	}
	end := uint64(m.Base) + uint64(dl.MemorySize)
	if m.Base < e.cfg.ModuleFloor || end > uint64(e.cfg.HeapBase) {
		return errors.New(errors.PhaseRelocate, errors.KindOutOfBounds).Module(m.Name).
			Address(m.Base).Detail("image of %d bytes outside module region [0x%x, 0x%x)",
			dl.MemorySize, e.cfg.ModuleFloor, e.cfg.HeapBase).Build()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, other := range e.modules {
		if other == m || other.Size == 0 || dl.MemorySize == 0 {
			continue
		}
		if m.Base < other.Base+other.Size && other.Base < uint32(end) {
			return errors.New(errors.PhaseRelocate, errors.KindInvalidInput).Module(m.Name).
				Address(m.Base).Detail("overlaps %s", other).Build()
		}
	}

	linked, err := wasmbin.RenameImportModules(img.raw, func(mod string) string {
		switch mod {
		case gotMemModule, gotFuncModule:
			return mod + ":" + m.Name
		default:
			return envModule + ":" + m.Name
		}
	})
	if err != nil {
		return errors.New(errors.PhaseRelocate, errors.KindInvalidData).Module(m.Name).Cause(err).Build()
	}
	imports, err := wasmbin.ParseImports(linked)
	if err != nil {
		return errors.New(errors.PhaseRelocate, errors.KindInvalidData).Module(m.Name).Cause(err).Build()
	}
	for _, imp := range imports {
		if imp.Kind == wasmbin.KindMemory {
			end = max(end, uint64(imp.Min)*pageSize)
		}
	}
	if err := e.space.Reserve(0, uint32(min(end, 1<<32-1))); err != nil {
		return errors.New(errors.PhaseRelocate, errors.KindAllocation).Module(m.Name).Cause(err).Build()
	}

	tableBase, err := e.allocSlot(dl.TableSize, uint32(1)<<min(dl.TableAlign, 16))
	if err != nil {
		return errors.New(errors.PhaseRelocate, errors.KindAllocation).Module(m.Name).Cause(err).Build()
	}

	compiled, err := e.rt.CompileModule(ctx, linked)
	if err != nil {
		return errors.New(errors.PhaseRelocate, errors.KindInvalidData).Module(m.Name).
			Detail("compile").Cause(err).Build()
	}
	img.compiled = compiled
	img.imports = imports
	img.tableBase = tableBase
	e.modules = append(e.modules, m)

	Logger().Debug("module relocated",
		zap.String("module", m.Name),
		zap.String("base", fmt.Sprintf("0x%08x", m.Base)),
		zap.Uint32("table_base", tableBase),
		zap.Int("imports", len(imports)))
	return nil
}

// ResolveImports binds every import of m. Names are looked up in the symbol
// table first and then in the exports of modules relocated before m. Any
// import left unbound makes the whole step fail.
func (e *Engine) ResolveImports(ctx context.Context, m *loader.Module, table *symtab.Table) error {
	img, err := imageOf(m, errors.PhaseResolve)
	if err != nil {
		return err
	}
	if img.compiled == nil {
		return errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			Module(m.Name).Detail("module not relocated").Build()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.syncHosts(ctx); err != nil {
		return err
	}

	env := envModule + ":" + m.Name
	hostName := env + hostSuffix
	hb := e.rt.NewHostModuleBuilder(hostName)
	sb := wasmbin.NewBuilder()
	var missing []string
	seen := make(map[string]bool)
	hostFuncs := 0

	for _, def := range img.compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		if mod != env || seen[name] {
			continue
		}
		seen[name] = true
		addr, ok := e.resolveFunc(ctx, m, table, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		params, results := def.ParamTypes(), def.ResultTypes()
		sig := sigOf(params, results)
		if sig == "" {
			return errors.New(errors.PhaseResolve, errors.KindUnsupported).Module(m.Name).
				Symbol(name).Detail("multi-value results").Build()
		}
		if entry, ok := table.Lookup(name); ok && entry.Sig != "" && !entry.Variadic && entry.Sig != sig {
			Logger().Warn("signature mismatch",
				zap.String("module", m.Name), zap.String("symbol", name),
				zap.String("host", entry.Sig), zap.String("import", sig))
		}
		hb.NewFunctionBuilder().
			WithGoModuleFunction(e.bridge(addr, sig), params, results).
			WithName(name).
			Export(name)
		idx := sb.ImportFunc(hostName, name, wasmbin.FuncType{Params: params, Results: results})
		sb.Export(name, wasmbin.KindFunc, idx)
		hostFuncs++
	}

	var locals []wasmbin.Import
	for _, imp := range img.imports {
		if imp.Module != env || seen[imp.Name] {
			continue
		}
		switch imp.Kind {
		case wasmbin.KindMemory:
			seen[imp.Name] = true
			sb.ImportMemory(CoreModule, MemoryName, imp.Min)
			sb.Export(imp.Name, wasmbin.KindMemory, 0)
		case wasmbin.KindTable:
			seen[imp.Name] = true
			if imp.Min > e.cfg.TableSize {
				return errors.New(errors.PhaseResolve, errors.KindOutOfBounds).Module(m.Name).
					Detail("table of %d entries requested, %d available", imp.Min, e.cfg.TableSize).Build()
			}
			sb.ImportTable(CoreModule, TableName, imp.Min)
			sb.Export(imp.Name, wasmbin.KindTable, 0)
		case wasmbin.KindGlobal:
			seen[imp.Name] = true
			if imp.Name == StackPointer {
				sb.Export(imp.Name, wasmbin.KindGlobal, sb.ImportGlobal(CoreModule, StackPointer, api.ValueTypeI32, true))
				continue
			}
			locals = append(locals, imp)
		}
	}
	for _, imp := range locals {
		var value uint32
		switch imp.Name {
		case "__memory_base":
			value = m.Base
		case "__table_base":
			value = img.tableBase
		default:
			addr, ok := e.resolveData(ctx, m, table, imp.Name)
			if !ok {
				missing = append(missing, imp.Name)
				continue
			}
			value = addr
		}
		sb.Export(imp.Name, wasmbin.KindGlobal, sb.Global(imp.Global, imp.Mutable, int64(value)))
	}

	gotMem, gotFunc := wasmbin.NewBuilder(), wasmbin.NewBuilder()
	var gotMemN, gotFuncN int
	for _, imp := range img.imports {
		var addr uint32
		var ok bool
		switch imp.Module {
		case gotMemModule + ":" + m.Name:
			if addr, ok = e.resolveData(ctx, m, table, imp.Name); !ok && img.exports[imp.Name] == wasmbin.KindGlobal {
				img.pending = append(img.pending, pendingGOT{name: imp.Name, kind: wasmbin.KindGlobal})
				ok = true
			}
			if ok {
				gotMem.Export(imp.Name, wasmbin.KindGlobal, gotMem.Global(api.ValueTypeI32, true, int64(addr)))
				gotMemN++
			}
		case gotFuncModule + ":" + m.Name:
			if addr, ok = e.resolveFunc(ctx, m, table, imp.Name); !ok {
				if kind, self := img.exports[imp.Name]; self && kind == wasmbin.KindFunc {
					img.pending = append(img.pending, pendingGOT{name: imp.Name, kind: wasmbin.KindFunc})
					ok = true
				}
			}
			if ok {
				gotFunc.Export(imp.Name, wasmbin.KindGlobal, gotFunc.Global(api.ValueTypeI32, true, int64(addr)))
				gotFuncN++
			}
		default:
			continue
		}
		if !ok {
			missing = append(missing, imp.Name)
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		missing = slices.Compact(missing)
		for _, name := range missing {
			Logger().Warn("unresolved import", zap.String("module", m.Name), zap.String("symbol", name))
		}
		return errors.NewUnresolvedImportsError(m.Name, missing)
	}

	resolveErr := func(err error, what string) error {
		return errors.New(errors.PhaseResolve, errors.KindInvalidData).Module(m.Name).
			Detail("instantiate %s", what).Cause(err).Build()
	}
	if hostFuncs > 0 {
		if _, err := hb.Instantiate(ctx); err != nil {
			return resolveErr(err, hostName)
		}
	}
	if _, err := e.rt.InstantiateWithConfig(ctx, sb.Bytes(), wazero.NewModuleConfig().WithName(env)); err != nil {
		return resolveErr(err, env)
	}
	if gotMemN > 0 {
		if img.gotMem, err = e.rt.InstantiateWithConfig(ctx, gotMem.Bytes(),
			wazero.NewModuleConfig().WithName(gotMemModule+":"+m.Name)); err != nil {
			return resolveErr(err, gotMemModule)
		}
	}
	if gotFuncN > 0 {
		if img.gotFunc, err = e.rt.InstantiateWithConfig(ctx, gotFunc.Bytes(),
			wazero.NewModuleConfig().WithName(gotFuncModule+":"+m.Name)); err != nil {
			return resolveErr(err, gotFuncModule)
		}
	}
	img.resolved = true
	Logger().Debug("imports resolved",
		zap.String("module", m.Name),
		zap.Int("functions", hostFuncs),
		zap.Int("got_mem", gotMemN),
		zap.Int("got_func", gotFuncN))
	return nil
}

// resolveFunc returns the function pointer bound to name. Caller holds e.mu.
func (e *Engine) resolveFunc(ctx context.Context, m *loader.Module, table *symtab.Table, name string) (uint32, bool) {
	if entry, ok := table.Lookup(name); ok {
		return entry.Addr, true
	}
	for _, other := range e.modules {
		if other == m {
			break
		}
		addr, err := e.exportFunc(ctx, other, name)
		if err != nil {
			Logger().Warn("export pin failed", zap.String("module", other.Name), zap.String("symbol", name), zap.Error(err))
			continue
		}
		if addr != 0 {
			return addr, true
		}
	}
	return 0, false
}

// resolveData returns the address bound to a data symbol. Caller holds e.mu.
func (e *Engine) resolveData(_ context.Context, m *loader.Module, table *symtab.Table, name string) (uint32, bool) {
	if entry, ok := table.Lookup(name); ok {
		return entry.Addr, true
	}
	for _, other := range e.modules {
		if other == m {
			break
		}
		if addr, ok := exportData(other, name); ok {
			return addr, true
		}
	}
	return 0, false
}

// exportFunc returns a table slot holding the exported function name of m,
// pinning it on first use. It returns 0 when m has no such export.
// Caller holds e.mu.
func (e *Engine) exportFunc(ctx context.Context, m *loader.Module, name string) (uint32, error) {
	if addr, ok := m.Export(name); ok {
		return addr, nil
	}
	img, ok := m.Image.(*image)
	if !ok || img.instance == nil {
		return 0, nil
	}
	def, ok := img.instance.ExportedFunctionDefinitions()[name]
	if !ok {
		return 0, nil
	}
	slot, err := e.allocSlot(1, 1)
	if err != nil {
		return 0, err
	}
	t := wasmbin.FuncType{Params: def.ParamTypes(), Results: def.ResultTypes()}
	b := wasmbin.NewBuilder()
	fn := b.ImportFunc(m.Name, name, t)
	b.ImportTable(CoreModule, TableName, e.cfg.TableSize)
	b.Elem(slot, fn)
	if _, err := e.rt.InstantiateWithConfig(ctx, b.Bytes(), wazero.NewModuleConfig().WithName(e.nextName("pin"))); err != nil {
		return 0, err
	}
	e.slotTypes[slot] = t
	m.SetExport(name, slot)
	debugf("pinned %s:%s at slot %d", m.Name, name, slot)
	return slot, nil
}

// exportData returns the address of an exported data symbol of m.
func exportData(m *loader.Module, name string) (uint32, bool) {
	img, ok := m.Image.(*image)
	if !ok || img.instance == nil {
		return 0, false
	}
	g := img.instance.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	addr := uint32(g.Get())
	if img.relocatable {
		addr += m.Base
	}
	return addr, true
}

// FlushInstructionCache is a no-op: wazero compiles ahead of time and guest
// code is never written through memory.
func (e *Engine) FlushInstructionCache(context.Context, *loader.Module) error {
	return nil
}

// RunInitializers instantiates m, fills the GOT entries it satisfies itself,
// applies data relocations and runs its constructors.
func (e *Engine) RunInitializers(ctx context.Context, m *loader.Module) error {
	img, err := imageOf(m, errors.PhaseInit)
	if err != nil {
		return err
	}
	if !img.resolved {
		return errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Module(m.Name).Detail("imports not resolved").Build()
	}
	if err := e.SyncHosts(ctx); err != nil {
		return err
	}

	_, err = e.run(ctx, func(ctx context.Context) ([]uint64, error) {
		inst, err := e.rt.InstantiateModule(ctx, img.compiled,
			wazero.NewModuleConfig().WithName(m.Name).WithStartFunctions())
		if err != nil {
			return nil, err
		}
		img.instance = inst
		if err := e.fillGOT(ctx, m, img); err != nil {
			return nil, err
		}
		if fn := inst.ExportedFunction(applyDataRelocs); fn != nil {
			if _, err := fn.Call(ctx); err != nil {
				return nil, err
			}
		}
		for _, name := range constructors {
			if fn := inst.ExportedFunction(name); fn != nil {
				Logger().Debug("running constructors", zap.String("module", m.Name), zap.String("entry", name))
				_, err := fn.Call(ctx)
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errors.New(errors.PhaseInit, errors.KindFault).Module(m.Name).Cause(err).Build()
	}
	return nil
}

// fillGOT writes the addresses of m's own exports into its GOT entries.
func (e *Engine) fillGOT(ctx context.Context, m *loader.Module, img *image) error {
	if len(img.pending) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range img.pending {
		got := img.gotMem
		var addr uint32
		if p.kind == wasmbin.KindFunc {
			got = img.gotFunc
			slot, err := e.exportFunc(ctx, m, p.name)
			if err != nil {
				return err
			}
			addr = slot
		} else {
			addr, _ = exportData(m, p.name)
		}
		g, ok := got.ExportedGlobal(p.name).(api.MutableGlobal)
		if !ok {
			return fmt.Errorf("GOT entry %s is not mutable", p.name)
		}
		g.Set(uint64(addr))
	}
	img.pending = nil
	return nil
}

// LookupExportedSymbol returns a function pointer or data address for an
// export of m, or 0.
func (e *Engine) LookupExportedSymbol(ctx context.Context, m *loader.Module, name string) uint32 {
	if addr, ok := m.Export(name); ok {
		return addr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, err := e.exportFunc(ctx, m, name)
	if err != nil {
		Logger().Warn("export lookup failed", zap.String("module", m.Name), zap.String("symbol", name), zap.Error(err))
		return 0
	}
	if addr != 0 {
		return addr
	}
	if addr, ok := exportData(m, name); ok {
		m.SetExport(name, addr)
		return addr
	}
	return 0
}

// ExportSignature reports the host call signature of an exported function.
func (e *Engine) ExportSignature(m *loader.Module, name string) (string, bool) {
	img, ok := m.Image.(*image)
	if !ok || img.instance == nil {
		return "", false
	}
	def, ok := img.instance.ExportedFunctionDefinitions()[name]
	if !ok {
		return "", false
	}
	sig := sigOf(def.ParamTypes(), def.ResultTypes())
	return sig, sig != ""
}

// PatchAddress redirects addr to the host function at replacement. When addr
// is a guest table slot the slot itself is overwritten, so indirect calls
// made by guest code land on the replacement too.
func (e *Engine) PatchAddress(ctx context.Context, addr, replacement uint32) error {
	h, ok := e.reg.Lookup(replacement)
	if !ok {
		return errors.New(errors.PhasePatch, errors.KindUnsupported).Address(replacement).
			Detail("replacement is not a host function").Build()
	}
	if addr == 0 {
		return errors.New(errors.PhasePatch, errors.KindInvalidInput).Detail("patch of null address").Build()
	}
	e.reg.Redirect(addr, replacement)
	if addr >= e.cfg.HostTableBase {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.slotTypes[addr]
	if !ok {
		var err error
		if t, err = sigType(h.Sig); err != nil {
			return errors.New(errors.PhasePatch, errors.KindInvalidInput).Symbol(h.Name).Cause(err).Build()
		}
	}
	name := e.nextName("patch")
	hb := e.rt.NewHostModuleBuilder(name + hostSuffix)
	hb.NewFunctionBuilder().
		WithGoModuleFunction(e.bridge(replacement, sigOf(t.Params, t.Results)), t.Params, t.Results).
		WithName(h.Name).
		Export("f")
	if _, err := hb.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhasePatch, errors.KindInvalidData, err, "patch host module")
	}
	b := wasmbin.NewBuilder()
	fn := b.ImportFunc(name+hostSuffix, "f", t)
	b.ImportTable(CoreModule, TableName, e.cfg.TableSize)
	b.Elem(addr, fn)
	if _, err := e.rt.InstantiateWithConfig(ctx, b.Bytes(), wazero.NewModuleConfig().WithName(name)); err != nil {
		return errors.Wrap(errors.PhasePatch, errors.KindInvalidData, err, "patch table slot")
	}
	Logger().Info("table slot patched", zap.Uint32("slot", addr), zap.String("replacement", h.Name))
	return nil
}
