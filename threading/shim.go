package threading

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/resource"
)

// FaultHandler receives fatal errors raised on threads the module created.
type FaultHandler func(err error)

// Options configures a Shim.
type Options struct {
	// Now supplies wall-clock time.
	Now func() time.Time
	// OnFault is called when a created thread dies with a fault.
	OnFault FaultHandler
}

// DefaultOptions returns the options used by New when none are given.
func DefaultOptions() Options {
	return Options{
		Now: time.Now,
		OnFault: func(err error) {
			Logger().Error("thread fault", zap.Error(err))
		},
	}
}

// WithClock sets the wall-clock source.
func (o Options) WithClock(now func() time.Time) Options {
	o.Now = now
	return o
}

// WithFaultHandler sets the handler for faults on created threads.
func (o Options) WithFaultHandler(h FaultHandler) Options {
	o.OnFault = h
	return o
}

// Shim owns the host objects backing the module's threading primitives.
type Shim struct {
	start   time.Time
	reg     *hostcall.Registry
	objects *resource.Table
	mutexes *resource.Typed[*Mutex]
	conds   *resource.Typed[*Cond]
	threads *threadTable
	keys    *keyTable
	onces   sync.Map // control word address -> chan struct{}
	opts    Options
	nextTID atomic.Uint32
}

// New creates a shim whose created threads call into foreign code through reg.
func New(reg *hostcall.Registry, opts ...Options) *Shim {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
		if o.Now == nil {
			o.Now = time.Now
		}
		if o.OnFault == nil {
			o.OnFault = DefaultOptions().OnFault
		}
	}
	objects := resource.NewTable(HandleBase)
	objects.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		Logger().Debug("threading object",
			zap.Stringer("kind", e.Kind),
			zap.Stringer("event", e.Type),
			zap.Uint32("handle", uint32(e.Handle)))
	}))
	s := &Shim{
		start:   time.Now(),
		reg:     reg,
		objects: objects,
		mutexes: resource.NewTyped[*Mutex](objects, resource.KindMutex),
		conds:   resource.NewTyped[*Cond](objects, resource.KindCond),
		threads: newThreadTable(),
		keys:    newKeyTable(),
		opts:    o,
	}
	s.nextTID.Store(hostcall.MainThread)
	return s
}

// Objects returns the table of live host objects.
func (s *Shim) Objects() *resource.Table {
	return s.objects
}

// Close releases every host object.
func (s *Shim) Close() error {
	return s.objects.Close()
}
