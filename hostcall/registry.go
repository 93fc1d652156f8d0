package hostcall

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
)

const (
	// Base is the first host function address.
	Base uint32 = 0xF0000000
	// Stride separates consecutive host function addresses.
	Stride uint32 = 16

	maxRedirects = 8
)

// Func is a host function callable by foreign code.
type Func func(ctx context.Context, mem soruntime.Space, stack []uint64)

// GuestCaller invokes foreign code at a non-host address.
type GuestCaller interface {
	CallGuest(ctx context.Context, mem soruntime.Space, addr uint32, sig string, stack []uint64) error
}

// GuestCallerFunc adapts a function to GuestCaller.
type GuestCallerFunc func(ctx context.Context, mem soruntime.Space, addr uint32, sig string, stack []uint64) error

func (f GuestCallerFunc) CallGuest(ctx context.Context, mem soruntime.Space, addr uint32, sig string, stack []uint64) error {
	return f(ctx, mem, addr, sig, stack)
}

// Host describes a registered host function.
type Host struct {
	Fn   Func
	Name string
	Sig  string
	Addr uint32
}

// Registry maps host function addresses to implementations.
// It is safe for concurrent use.
type Registry struct {
	base      uint32
	stride    uint32
	guest     GuestCaller
	redirects map[uint32]uint32
	funcs     []*Host
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry handing out addresses from Base.
func NewRegistry() *Registry {
	return NewRegistryWindow(Base, Stride)
}

// NewRegistryWindow creates a registry whose n-th function lives at
// base+n*stride. Engines that dispatch function pointers through a table
// use a stride of 1 so addresses double as table indices.
func NewRegistryWindow(base, stride uint32) *Registry {
	if stride == 0 {
		stride = 1
	}
	return &Registry{
		base:      base,
		stride:    stride,
		redirects: make(map[uint32]uint32),
	}
}

// Register adds fn and returns its address.
func (r *Registry) Register(name, sig string, fn Func) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := r.base + uint32(len(r.funcs))*r.stride
	r.funcs = append(r.funcs, &Host{Fn: fn, Name: name, Sig: sig, Addr: addr})
	return addr
}

func (r *Registry) host(addr uint32) *Host {
	if addr < r.base || (addr-r.base)%r.stride != 0 {
		return nil
	}
	idx := int((addr - r.base) / r.stride)
	if idx >= len(r.funcs) {
		return nil
	}
	return r.funcs[idx]
}

// IsHost reports whether addr is a registered host function.
func (r *Registry) IsHost(addr uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.host(addr) != nil
}

// Lookup returns the host function at addr, following redirects.
func (r *Registry) Lookup(addr uint32) (*Host, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := r.host(r.resolve(addr))
	return h, h != nil
}

// Name returns the registered name at addr or "" for non-host addresses.
func (r *Registry) Name(addr uint32) string {
	if h, ok := r.Lookup(addr); ok {
		return h.Name
	}
	return ""
}

// Redirect makes calls to from land on to instead.
func (r *Registry) Redirect(from, to uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects[from] = to
	Logger().Debug("redirect installed",
		zap.String("from", fmt.Sprintf("0x%08x", from)),
		zap.String("to", fmt.Sprintf("0x%08x", to)))
}

// Target returns the final address reached from addr through redirects.
func (r *Registry) Target(addr uint32) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(addr)
}

// resolve follows redirects. Caller holds r.mu.
func (r *Registry) resolve(addr uint32) uint32 {
	for i := 0; i < maxRedirects; i++ {
		to, ok := r.redirects[addr]
		if !ok {
			break
		}
		addr = to
	}
	return addr
}

// SetGuestCaller installs the caller used for non-host addresses.
func (r *Registry) SetGuestCaller(g GuestCaller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guest = g
}

// Len returns the number of registered host functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Hosts returns the functions registered from index from onwards, in
// registration order.
func (r *Registry) Hosts(from int) []*Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if from >= len(r.funcs) {
		return nil
	}
	return append([]*Host(nil), r.funcs[from:]...)
}

// Window returns the first address and the stride between addresses.
func (r *Registry) Window() (base, stride uint32) {
	return r.base, r.stride
}

// Call invokes the function at addr. A fault raised by a host function is
// returned as an error.
func (r *Registry) Call(ctx context.Context, mem soruntime.Space, addr uint32, sig string, stack []uint64) (err error) {
	r.mu.RLock()
	target := r.resolve(addr)
	h := r.host(target)
	guest := r.guest
	r.mu.RUnlock()

	if target == 0 {
		return errors.New(errors.PhaseRuntime, errors.KindFault).
			Detail("call through null function pointer").Build()
	}

	if h == nil {
		if guest == nil {
			return errors.New(errors.PhaseRuntime, errors.KindUnsupported).
				Address(target).Detail("no guest caller for foreign function pointer").Build()
		}
		return guest.CallGuest(ctx, mem, target, sig, stack)
	}

	defer func() {
		if rec := recover(); rec != nil {
			e, ok := rec.(error)
			if !ok {
				panic(rec)
			}
			err = e
		}
	}()
	h.Fn(ctx, mem, stack)
	return nil
}

// Raise aborts the running host function with err. Registry.Call and the
// engine's host module bridge turn it back into an error.
func Raise(err error) {
	panic(err)
}
