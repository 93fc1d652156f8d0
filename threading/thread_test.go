package threading

import (
	"context"
	"testing"
	"time"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
)

func TestThread_CreateJoin(t *testing.T) {
	f := newFixture(t)
	seen := make(chan uint32, 1)
	entry := f.reg.Register("entry", "ii", func(ctx context.Context, _ soruntime.Space, st []uint64) {
		seen <- hostcall.ThreadID(ctx)
		st[0] = st[0] * 2
	})
	out := f.word(t, 0)
	if rc := f.call(t, 1, "pthread_create", out, 0, entry, 21); rc != 0 {
		t.Fatalf("create rc=%d", rc)
	}
	tid := f.read(t, out)
	if tid == 0 || tid == hostcall.MainThread {
		t.Fatalf("tid = %d", tid)
	}

	retval := f.word(t, 0)
	if rc := f.call(t, 1, "pthread_join", tid, retval); rc != 0 {
		t.Fatalf("join rc=%d", rc)
	}
	if f.read(t, retval) != 42 {
		t.Fatalf("retval = %d", f.read(t, retval))
	}
	if got := <-seen; got != tid {
		t.Fatalf("thread ran as %d, want %d", got, tid)
	}
	if rc := f.call(t, 1, "pthread_join", tid, 0); rc != soruntime.ESRCH {
		t.Fatalf("second join rc=%d, want ESRCH", rc)
	}
	if f.shim.Live() != 0 {
		t.Fatal("joined thread should be reclaimed")
	}
}

func TestThread_SelfAndEqual(t *testing.T) {
	f := newFixture(t)
	if got := f.call(t, 5, "pthread_self"); got != 5 {
		t.Fatalf("pthread_self = %d", got)
	}
	if got := f.call(t, 5, "GetCurrentThreadId"); got != 5 {
		t.Fatalf("GetCurrentThreadId = %d", got)
	}
	if f.call(t, 1, "pthread_equal", 3, 3) != 1 || f.call(t, 1, "pthread_equal", 3, 4) != 0 {
		t.Fatal("pthread_equal mismatch")
	}
	if rc := f.call(t, 5, "pthread_join", 5, 0); rc != soruntime.EDEADLK {
		t.Fatalf("self join rc=%d", rc)
	}
}

func TestThread_Exit(t *testing.T) {
	f := newFixture(t)
	entry := f.reg.Register("entry", "ii", func(context.Context, soruntime.Space, []uint64) {
		hostcall.Raise(&ThreadExit{Value: 7})
	})
	out := f.word(t, 0)
	f.call(t, 1, "pthread_create", out, 0, entry, 0)
	retval := f.word(t, 0)
	f.call(t, 1, "pthread_join", f.read(t, out), retval)
	if f.read(t, retval) != 7 {
		t.Fatalf("retval = %d", f.read(t, retval))
	}
}

func TestThread_FaultReported(t *testing.T) {
	faults := make(chan error, 1)
	f := newFixture(t, DefaultOptions().WithFaultHandler(func(err error) { faults <- err }))
	entry := f.reg.Register("entry", "ii", func(context.Context, soruntime.Space, []uint64) {
		hostcall.Raise(errors.Fault("__cxa_throw", "exception thrown"))
	})
	out := f.word(t, 0)
	f.call(t, 1, "pthread_create", out, 0, entry, 0)
	select {
	case err := <-faults:
		if !errors.IsFatal(err) {
			t.Fatalf("unexpected fault %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("fault not reported")
	}
}

func TestThread_DetachedAttr(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entry := f.reg.Register("entry", "ii", func(context.Context, soruntime.Space, []uint64) {
		<-release
	})
	attr, _ := f.space.Alloc(attrSize, 4)
	f.call(t, 1, "pthread_attr_init", attr)
	f.call(t, 1, "pthread_attr_setdetachstate", attr, 1)
	f.call(t, 1, "pthread_attr_setstacksize", attr, 1<<20)
	size := f.word(t, 0)
	f.call(t, 1, "pthread_attr_getstacksize", attr, size)
	if f.read(t, size) != 1<<20 {
		t.Fatal("stack size not stored")
	}

	out := f.word(t, 0)
	f.call(t, 1, "pthread_create", out, attr, entry, 0)
	if f.shim.Live() != 1 {
		t.Fatalf("Live = %d", f.shim.Live())
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for f.shim.Live() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("detached thread not reclaimed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestThread_KeysAndDestructors(t *testing.T) {
	f := newFixture(t)
	destroyed := make(chan uint32, 1)
	dtor := f.reg.Register("dtor", "vi", func(_ context.Context, _ soruntime.Space, st []uint64) {
		destroyed <- uint32(st[0])
	})
	keyCell := f.word(t, 0)
	if rc := f.call(t, 1, "pthread_key_create", keyCell, dtor); rc != 0 {
		t.Fatalf("key_create rc=%d", rc)
	}
	key := f.read(t, keyCell)

	f.call(t, 1, "pthread_setspecific", key, 111)
	entry := f.reg.Register("entry", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		if f.shim.GetSpecific(hostcall.ThreadID(ctx), key) != 0 {
			st[0] = 1
			return
		}
		f.shim.SetSpecific(hostcall.ThreadID(ctx), key, 222)
		st[0] = 0
	})
	out := f.word(t, 0)
	f.call(t, 1, "pthread_create", out, 0, entry, 0)
	retval := f.word(t, 0)
	f.call(t, 1, "pthread_join", f.read(t, out), retval)
	if f.read(t, retval) != 0 {
		t.Fatal("new thread saw another thread's value")
	}
	select {
	case v := <-destroyed:
		if v != 222 {
			t.Fatalf("destructor got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("destructor not run")
	}
	if got := f.call(t, 1, "pthread_getspecific", key); got != 111 {
		t.Fatalf("main thread value = %d", got)
	}
	if rc := f.call(t, 1, "pthread_key_delete", key); rc != 0 {
		t.Fatalf("key_delete rc=%d", rc)
	}
	if rc := f.call(t, 1, "pthread_setspecific", key, 1); rc != soruntime.EINVAL {
		t.Fatalf("setspecific on deleted key rc=%d", rc)
	}
}
