package threading

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
)

// ThreadExit unwinds a created thread on pthread_exit.
type ThreadExit struct {
	Value uint32
}

func (e *ThreadExit) Error() string { return "thread exit" }

type thread struct {
	done     chan struct{}
	id       uint32
	result   uint32
	detached bool
}

type threadTable struct {
	threads map[uint32]*thread
	mu      sync.Mutex
}

func newThreadTable() *threadTable {
	return &threadTable{threads: make(map[uint32]*thread)}
}

func (t *threadTable) add(th *thread) {
	t.mu.Lock()
	t.threads[th.id] = th
	t.mu.Unlock()
}

func (t *threadTable) get(id uint32) (*thread, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.threads[id]
	return th, ok
}

func (t *threadTable) remove(id uint32) {
	t.mu.Lock()
	delete(t.threads, id)
	t.mu.Unlock()
}

// Live returns the number of created threads not yet joined or finished
// detached.
func (s *Shim) Live() int {
	s.threads.mu.Lock()
	defer s.threads.mu.Unlock()
	return len(s.threads.threads)
}

// Create starts the foreign routine at start with arg on a new goroutine and
// stores the thread id at out.
func (s *Shim) Create(ctx context.Context, mem soruntime.Space, out, start, arg uint32) int32 {
	tid := s.nextTID.Add(1)
	th := &thread{id: tid, done: make(chan struct{})}
	s.threads.add(th)

	if out != 0 {
		if err := mem.WriteU32(out, tid); err != nil {
			s.threads.remove(tid)
			return soruntime.EFAULT
		}
	}

	// threads outlive the call that created them
	tctx := hostcall.WithThread(context.WithoutCancel(ctx), tid)
	Logger().Debug("thread created", zap.Uint32("tid", tid), zap.Uint32("start", start))

	go func() {
		stack := []uint64{uint64(arg)}
		err := s.reg.Call(tctx, mem, start, "ii", stack)
		var exit *ThreadExit
		switch {
		case err == nil:
			th.result = uint32(stack[0])
		case stderrors.As(err, &exit):
			th.result = exit.Value
		default:
			s.opts.OnFault(err)
		}
		s.keys.runDestructors(tctx, s.reg, mem, tid)

		s.threads.mu.Lock()
		close(th.done)
		if th.detached {
			delete(s.threads.threads, tid)
		}
		s.threads.mu.Unlock()
		Logger().Debug("thread finished", zap.Uint32("tid", tid))
	}()
	return 0
}

// Join waits for thread tid and stores its result at retval when non-null.
func (s *Shim) Join(ctx context.Context, mem soruntime.Memory, tid, retval uint32) int32 {
	if tid == hostcall.ThreadID(ctx) {
		return soruntime.EDEADLK
	}
	th, ok := s.threads.get(tid)
	if !ok {
		return soruntime.ESRCH
	}
	select {
	case <-th.done:
	case <-ctx.Done():
		return soruntime.EINTR
	}
	s.threads.remove(tid)
	if retval != 0 {
		if err := mem.WriteU32(retval, th.result); err != nil {
			return soruntime.EFAULT
		}
	}
	return 0
}

// Detach marks tid to be reclaimed when it finishes.
func (s *Shim) Detach(tid uint32) int32 {
	s.threads.mu.Lock()
	defer s.threads.mu.Unlock()
	th, ok := s.threads.threads[tid]
	if !ok {
		return soruntime.ESRCH
	}
	select {
	case <-th.done:
		delete(s.threads.threads, tid)
	default:
		th.detached = true
	}
	return 0
}

type keyTable struct {
	destructors map[uint32]uint32
	values      map[uint32]map[uint32]uint32 // tid -> key -> value
	next        uint32
	mu          sync.Mutex
}

func newKeyTable() *keyTable {
	return &keyTable{
		destructors: make(map[uint32]uint32),
		values:      make(map[uint32]map[uint32]uint32),
	}
}

// KeyCreate allocates a key and stores it at out.
func (s *Shim) KeyCreate(mem soruntime.Memory, out, destructor uint32) int32 {
	k := s.keys
	k.mu.Lock()
	k.next++
	key := k.next
	k.destructors[key] = destructor
	k.mu.Unlock()
	if err := mem.WriteU32(out, key); err != nil {
		return soruntime.EFAULT
	}
	return 0
}

func (s *Shim) KeyDelete(key uint32) int32 {
	k := s.keys
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.destructors[key]; !ok {
		return soruntime.EINVAL
	}
	delete(k.destructors, key)
	for _, vals := range k.values {
		delete(vals, key)
	}
	return 0
}

func (s *Shim) GetSpecific(tid, key uint32) uint32 {
	k := s.keys
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.values[tid][key]
}

func (s *Shim) SetSpecific(tid, key, value uint32) int32 {
	k := s.keys
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.destructors[key]; !ok {
		return soruntime.EINVAL
	}
	vals := k.values[tid]
	if vals == nil {
		vals = make(map[uint32]uint32)
		k.values[tid] = vals
	}
	vals[key] = value
	return 0
}

// runDestructors calls each key destructor with the thread's non-null value.
func (k *keyTable) runDestructors(ctx context.Context, reg *hostcall.Registry, mem soruntime.Space, tid uint32) {
	k.mu.Lock()
	vals := k.values[tid]
	delete(k.values, tid)
	type call struct{ fn, value uint32 }
	var calls []call
	for key, v := range vals {
		if fn := k.destructors[key]; fn != 0 && v != 0 {
			calls = append(calls, call{fn, v})
		}
	}
	k.mu.Unlock()

	for _, c := range calls {
		if err := reg.Call(ctx, mem, c.fn, "vi", []uint64{uint64(c.value)}); err != nil {
			Logger().Warn("key destructor failed", zap.Uint32("tid", tid), zap.Error(err))
		}
	}
}
