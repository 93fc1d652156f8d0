package runtime

import (
	"context"
	stderrors "errors"
	"path"
	"sync"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/jni"
	"github.com/wippyai/so-runtime/libc"
	"github.com/wippyai/so-runtime/loader"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/shadercache"
	"github.com/wippyai/so-runtime/symtab"
	"github.com/wippyai/so-runtime/threading"
	"github.com/wippyai/so-runtime/vfs"
)

// Runtime stands up the host environment and drives a loader through the
// module sequence.
type Runtime struct {
	cfg       Config
	ld        loader.Loader
	space     soruntime.Space
	reg       *hostcall.Registry
	table     *symtab.Table
	libc      *libc.Libc
	fs        *vfs.FS
	threads   *threading.Shim
	emu       *jni.Emulator
	shaders   *shadercache.Interceptor
	presenter Presenter
	trigger   Trigger

	modules []*loader.Module
	objs    jni.Objects
	cancel  context.CancelCauseFunc
	failed  bool
	closed  bool
	mu      sync.Mutex
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithPresenter sets where fatal errors are shown.
func WithPresenter(p Presenter) Option {
	return func(r *Runtime) { r.presenter = p }
}

// WithTrigger arms the watchdog with t.
func WithTrigger(t Trigger) Option {
	return func(r *Runtime) { r.trigger = t }
}

// New builds every shim and the symbol table for cfg. The address space and
// the registry come from ld when it provides them.
func New(cfg Config, ld loader.Loader, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ld == nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).Detail("nil loader").Build()
	}

	r := &Runtime{cfg: cfg, ld: ld}
	for _, opt := range opts {
		opt(r)
	}
	if r.presenter == nil {
		r.presenter = NewWriterPresenter(cfg.Stderr)
	}

	if sp, ok := ld.(loader.SpaceProvider); ok {
		r.space = sp.Space()
	} else {
		r.space = memory.NewPaged(memory.DefaultConfig())
	}
	if rp, ok := ld.(loader.RegistryProvider); ok {
		r.reg = rp.Registry()
	} else {
		r.reg = hostcall.NewRegistry()
		if gc, ok := ld.(hostcall.GuestCaller); ok {
			r.reg.SetGuestCaller(gc)
		}
	}

	if err := r.build(); err != nil {
		return nil, err
	}
	return r, nil
}

// build registers every shim into a fresh symbol table.
func (r *Runtime) build() error {
	cfg := r.cfg
	errno := libc.NewErrno()
	r.fs = vfs.New(vfs.Config{
		Stdin:    cfg.Stdin,
		Stdout:   cfg.Stdout,
		Stderr:   cfg.Stderr,
		Volumes:  cfg.Volumes,
		Root:     cfg.DataRoot,
		Marker:   volumeOf(cfg.DataRoot),
		Archives: cfg.Archives,
	}, vfs.DefaultOptions().WithErrno(errno))
	r.libc = libc.New(r.reg, libc.DefaultOptions().
		WithStdout(cfg.Stdout).
		WithFiles(r.fs).
		WithEnv(cfg.Env).
		WithErrno(errno))
	r.threads = threading.New(r.reg, threading.DefaultOptions().WithFaultHandler(func(err error) {
		Logger().Error("foreign thread fault", zap.Error(err))
		r.fail(err)
	}))
	r.emu = jni.New(cfg.Device, cfg.DataRoot)

	storeRoot, err := cfg.Volumes.HostPath(cfg.DataRoot)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "map data root")
	}
	store, err := shadercache.NewStore(storeRoot, cfg.ShaderCacheEntries)
	if err != nil {
		return err
	}
	r.shaders = shadercache.NewInterceptor(store, cfg.ShaderDriver, cfg.ShaderCompiler)

	b := symtab.NewBuilder(r.reg)
	if err := r.libc.Register(b, r.space); err != nil {
		return errors.Wrap(errors.PhaseStartup, errors.KindAllocation, err, "register libc")
	}
	if err := r.fs.Register(b, r.space); err != nil {
		return errors.Wrap(errors.PhaseStartup, errors.KindAllocation, err, "register file shims")
	}
	r.threads.Register(b)
	r.emu.Register(b)
	r.shaders.Register(b)
	r.table = b.Build()

	if dups := r.table.Duplicates(); len(dups) > 0 {
		Logger().Debug("shadowed symbols", zap.Strings("names", dups))
	}
	Logger().Info("symbol table built", zap.Int("symbols", r.table.Len()))
	return nil
}

// volumeOf returns the "xxx:" prefix of a virtual path.
func volumeOf(p string) string {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case ':':
			return p[:i+1]
		case '/':
			return ""
		}
	}
	return ""
}

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() Config {
	return r.cfg
}

// Space returns the foreign address space.
func (r *Runtime) Space() soruntime.Space {
	return r.space
}

// Registry returns the host function registry.
func (r *Runtime) Registry() *hostcall.Registry {
	return r.reg
}

// Table returns the symbol resolution table.
func (r *Runtime) Table() *symtab.Table {
	return r.table
}

// Libc returns the C library state.
func (r *Runtime) Libc() *libc.Libc {
	return r.libc
}

// Files returns the file shim.
func (r *Runtime) Files() *vfs.FS {
	return r.fs
}

// Threads returns the threading shim.
func (r *Runtime) Threads() *threading.Shim {
	return r.threads
}

// Shaders returns the shader interceptor.
func (r *Runtime) Shaders() *shadercache.Interceptor {
	return r.shaders
}

// Objects returns the pseudo-objects, zero before Run builds them.
func (r *Runtime) Objects() jni.Objects {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objs
}

// Modules returns the modules loaded so far, in load order.
func (r *Runtime) Modules() []*loader.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*loader.Module(nil), r.modules...)
}

// Module returns the loaded module called name.
func (r *Runtime) Module(name string) (*loader.Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.modules {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// fail aborts the current run with err.
func (r *Runtime) fail(err error) {
	r.mu.Lock()
	cancel := r.cancel
	r.failed = true
	r.mu.Unlock()
	if cancel != nil {
		cancel(err)
	}
}

// Run checks the prerequisites, loads every module, builds the pseudo-objects
// and calls the entry point. Fatal errors are shown through the presenter
// before they are returned. A clean exit of the foreign module returns nil;
// a non-zero exit returns the *libc.ExitError.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(hostcall.WithThread(ctx, hostcall.MainThread))
	defer cancel(nil)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New(errors.PhaseRuntime, errors.KindClosed).Detail("runtime closed").Build()
	}
	r.cancel = cancel
	r.mu.Unlock()

	go NewWatchdog(r.trigger, r.cfg.WatchdogInterval, r.fail).Run(ctx)

	err := r.run(ctx)
	if cause := context.Cause(ctx); cause != nil && !stderrors.Is(cause, context.Canceled) {
		err = cause
	}

	var exit *libc.ExitError
	switch {
	case err == nil:
		return nil
	case stderrors.As(err, &exit):
		Logger().Info("foreign module exited", zap.Int32("code", exit.Code))
		if exit.Code == 0 {
			return nil
		}
		return err
	}
	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()
	r.presenter.Fatal(err)
	return err
}

func (r *Runtime) run(ctx context.Context) error {
	if err := CheckPrerequisites(r.cfg.Volumes, r.cfg.Markers); err != nil {
		return err
	}

	specs := r.cfg.Modules()
	for n, spec := range specs {
		primary := n == len(specs)-1
		m, err := r.newModule(spec, r.cfg.ModuleBase(n), primary)
		if err != nil {
			return err
		}
		if err := r.load(ctx, m, primary); err != nil {
			return err
		}
	}

	objs, err := r.emu.Build(r.space, r.reg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.objs = objs
	r.mu.Unlock()

	return r.callEntry(ctx, objs)
}

// newModule maps spec onto its host path.
func (r *Runtime) newModule(spec ModuleSpec, base uint32, primary bool) (*loader.Module, error) {
	host := r.cfg.PrimaryPath
	if !primary || host == "" {
		virt := path.Join(r.cfg.DataRoot, spec.File)
		var err error
		if host, err = r.cfg.Volumes.HostPath(virt); err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
				Module(spec.Name).Path(virt).Cause(err).Build()
		}
	}
	return loader.NewModule(spec.Name, host, base), nil
}

// load runs the loader steps for m. Patches are applied between resolving
// and flushing the primary module.
func (r *Runtime) load(ctx context.Context, m *loader.Module, primary bool) error {
	log := Logger().With(zap.Stringer("module", m))
	if err := context.Cause(ctx); err != nil {
		return err
	}

	if err := r.ld.Load(ctx, m); err != nil {
		return stepError(errors.PhaseLoad, m, err, "could not load")
	}
	m.Advance(loader.StateLoaded)
	r.mu.Lock()
	r.modules = append(r.modules, m)
	r.mu.Unlock()

	if err := r.ld.Relocate(ctx, m); err != nil {
		return stepError(errors.PhaseRelocate, m, err, "could not relocate")
	}
	m.Advance(loader.StateRelocated)

	if err := r.ld.ResolveImports(ctx, m, r.table); err != nil {
		return stepError(errors.PhaseResolve, m, err, "could not resolve imports")
	}
	m.Advance(loader.StateResolved)

	if primary {
		if err := r.applyPatches(ctx); err != nil {
			return err
		}
	}

	if err := r.ld.FlushInstructionCache(ctx, m); err != nil {
		return stepError(errors.PhaseLoad, m, err, "could not flush instruction cache")
	}
	if err := r.ld.RunInitializers(ctx, m); err != nil {
		return stepError(errors.PhaseInit, m, err, "initializers failed")
	}
	m.Advance(loader.StateInitialized)
	log.Info("module ready")
	return nil
}

// stepError wraps a loader failure for m, keeping errors that already carry
// a phase of their own.
func stepError(phase errors.Phase, m *loader.Module, err error, detail string) error {
	var u *errors.UnresolvedImportsError
	if stderrors.As(err, &u) {
		return err
	}
	var e *errors.Error
	if stderrors.As(err, &e) && (e.Kind == errors.KindFault || e.Phase == phase) {
		return err
	}
	return errors.New(phase, errors.KindInvalidData).
		Module(m.Name).Path(m.Path).Cause(err).Detail("%s", detail).Build()
}

// applyPatches redirects every configured export to a host function that
// raises a fatal fault.
func (r *Runtime) applyPatches(ctx context.Context) error {
	for _, p := range r.cfg.Patches {
		m, ok := r.Module(p.Module)
		if !ok {
			return errors.New(errors.PhasePatch, errors.KindNotFound).
				Module(p.Module).Symbol(p.Symbol).Detail("module not loaded").Build()
		}
		addr := r.ld.LookupExportedSymbol(ctx, m, p.Symbol)
		if addr == 0 {
			return errors.New(errors.PhasePatch, errors.KindNotFound).
				Module(p.Module).Symbol(p.Symbol).Detail("symbol not exported").Build()
		}
		symbol := p.Symbol
		repl := r.reg.Register(symbol+"$fatal", p.Sig, func(context.Context, soruntime.Space, []uint64) {
			hostcall.Raise(errors.Fault(symbol, "exception thrown; unwinding is not supported"))
		})
		if err := r.ld.PatchAddress(ctx, addr, repl); err != nil {
			return errors.New(errors.PhasePatch, errors.KindUnsupported).
				Module(p.Module).Symbol(p.Symbol).Address(addr).Cause(err).Build()
		}
		Logger().Info("patched",
			zap.String("module", p.Module),
			zap.String("symbol", p.Symbol),
			zap.Uint32("addr", addr),
			zap.Uint32("replacement", repl))
	}
	return nil
}

// callEntry calls the primary module's entry point with the VM object as
// its first argument.
func (r *Runtime) callEntry(ctx context.Context, objs jni.Objects) error {
	r.mu.Lock()
	primary := r.modules[len(r.modules)-1]
	r.mu.Unlock()

	name := r.cfg.Entry
	addr := r.ld.LookupExportedSymbol(ctx, primary, name)
	if addr == 0 {
		return errors.New(errors.PhaseInit, errors.KindNotFound).
			Module(primary.Name).Symbol(name).Detail("entry point not exported").Build()
	}
	sig := r.cfg.EntrySig
	if sp, ok := r.ld.(loader.SignatureProvider); ok {
		if s, ok := sp.ExportSignature(primary, name); ok {
			sig = s
		}
	}
	if sig == "" {
		sig = "v"
	}

	stack := make([]uint64, max(len(sig)-1, 1))
	if len(sig) > 1 {
		stack[0] = uint64(objs.VM)
	}
	Logger().Info("calling entry point",
		zap.String("symbol", name),
		zap.String("sig", sig),
		zap.Uint32("addr", addr))
	return r.reg.Call(ctx, r.space, addr, sig, stack)
}

// Close runs the exit handlers after a clean run and releases the loader.
// Closing twice is a no-op.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	failed := r.failed
	ran := r.objs.VM != 0
	r.mu.Unlock()

	var errs []error
	if ran && !failed {
		if err := r.libc.RunExitHandlers(hostcall.WithThread(ctx, hostcall.MainThread), r.space, 0); err != nil {
			errs = append(errs, err)
		}
	}
	st := r.shaders.Stats()
	Logger().Debug("shader cache",
		zap.Uint64("hits", st.Hits),
		zap.Uint64("misses", st.Misses),
		zap.Uint64("captured", st.Captured))
	if rep := r.table.Report(); len(rep.Missed) > 0 {
		Logger().Debug("unresolved lookups", zap.Strings("names", rep.Missed))
	}
	errs = append(errs, r.threads.Close(), r.fs.Close(), r.ld.Close(ctx))
	return stderrors.Join(errs...)
}
