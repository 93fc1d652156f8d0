package threading

import (
	"testing"
	"time"

	soruntime "github.com/wippyai/so-runtime"
)

func (f *fixture) timespec(t *testing.T, sec, nsec uint32) uint32 {
	t.Helper()
	p, err := f.space.Alloc(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	_ = f.space.WriteU32(p, sec)
	_ = f.space.WriteU32(p+4, nsec)
	return p
}

func waitForWaiters(t *testing.T, f *fixture, cond uint32, n int) {
	t.Helper()
	c, rc := f.shim.CondAt(f.space, cond)
	if rc != 0 {
		t.Fatalf("CondAt rc=%d", rc)
	}
	deadline := time.Now().Add(time.Second)
	for c.Waiters() < n {
		if time.Now().After(deadline) {
			t.Fatalf("waiters = %d, want %d", c.Waiters(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCond_SignalWakesWaiter(t *testing.T) {
	f := newFixture(t)
	mutex := f.word(t, 0)
	cond := f.word(t, 0)

	result := make(chan int32, 1)
	go func() {
		_, _ = f.invoke(3, "pthread_mutex_lock", mutex)
		rc, _ := f.invoke(3, "pthread_cond_wait", cond, mutex)
		result <- rc
	}()

	waitForWaiters(t, f, cond, 1)
	f.call(t, 2, "pthread_mutex_lock", mutex)
	f.call(t, 2, "pthread_cond_signal", cond)
	f.call(t, 2, "pthread_mutex_unlock", mutex)

	select {
	case rc := <-result:
		if rc != 0 {
			t.Fatalf("wait rc=%d", rc)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
	m, _ := f.shim.MutexAt(f.space, mutex)
	if m.Owner() != 3 {
		t.Fatalf("waiter should hold the mutex after waking, owner=%d", m.Owner())
	}
}

func TestCond_Broadcast(t *testing.T) {
	f := newFixture(t)
	mutex := f.word(t, 0)
	cond := f.word(t, 0)

	const waiters = 3
	done := make(chan int32, waiters)
	for i := 0; i < waiters; i++ {
		go func(tid uint32) {
			_, _ = f.invoke(tid, "pthread_mutex_lock", mutex)
			rc, _ := f.invoke(tid, "pthread_cond_wait", cond, mutex)
			_, _ = f.invoke(tid, "pthread_mutex_unlock", mutex)
			done <- rc
		}(uint32(10 + i))
	}

	waitForWaiters(t, f, cond, waiters)
	f.call(t, 2, "pthread_cond_broadcast", cond)

	for i := 0; i < waiters; i++ {
		select {
		case rc := <-done:
			if rc != 0 {
				t.Fatalf("wait rc=%d", rc)
			}
		case <-time.After(time.Second):
			t.Fatal("broadcast did not wake all waiters")
		}
	}
}

func TestCond_TimedWaitRelative(t *testing.T) {
	f := newFixture(t)
	mutex := f.word(t, 0)
	cond := f.word(t, 0)
	ts := f.timespec(t, 0, uint32(20*time.Millisecond))

	f.call(t, 2, "pthread_mutex_lock", mutex)
	start := time.Now()
	rc := f.call(t, 2, "pthread_cond_timedwait_relative_np", cond, mutex, ts)
	if rc != soruntime.ETIMEDOUT {
		t.Fatalf("rc=%d, want ETIMEDOUT", rc)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("returned after %v, before the timeout", time.Since(start))
	}
	m, _ := f.shim.MutexAt(f.space, mutex)
	if m.Owner() != 2 {
		t.Fatal("mutex must be held again after a timeout")
	}
}

func TestCond_TimedWaitAbsolute(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newFixture(t, DefaultOptions().WithClock(func() time.Time { return now }))
	mutex := f.word(t, 0)
	cond := f.word(t, 0)
	f.call(t, 2, "pthread_mutex_lock", mutex)

	past := f.timespec(t, 999, 0)
	if rc := f.call(t, 2, "pthread_cond_timedwait", cond, mutex, past); rc != soruntime.ETIMEDOUT {
		t.Fatalf("past deadline rc=%d", rc)
	}

	soon := f.timespec(t, 1000, uint32(20*time.Millisecond))
	start := time.Now()
	if rc := f.call(t, 2, "pthread_cond_timedwait", cond, mutex, soon); rc != soruntime.ETIMEDOUT {
		t.Fatalf("future deadline rc=%d", rc)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("absolute deadline not honoured")
	}
}

func TestCond_TimedWaitSignalled(t *testing.T) {
	f := newFixture(t)
	mutex := f.word(t, 0)
	cond := f.word(t, 0)
	ts := f.timespec(t, 5, 0)

	result := make(chan int32, 1)
	go func() {
		_, _ = f.invoke(3, "pthread_mutex_lock", mutex)
		rc, _ := f.invoke(3, "pthread_cond_timedwait_relative_np", cond, mutex, ts)
		result <- rc
	}()
	waitForWaiters(t, f, cond, 1)
	f.call(t, 2, "pthread_cond_signal", cond)

	select {
	case rc := <-result:
		if rc != 0 {
			t.Fatalf("rc=%d, want 0", rc)
		}
	case <-time.After(time.Second):
		t.Fatal("timed waiter not woken by signal")
	}
}

func TestCond_WaitWithoutMutex(t *testing.T) {
	f := newFixture(t)
	mutex := f.word(t, 0)
	cond := f.word(t, 0)
	if rc := f.call(t, 2, "pthread_cond_wait", cond, mutex); rc != soruntime.EPERM {
		t.Fatalf("rc=%d, want EPERM", rc)
	}
	c, _ := f.shim.CondAt(f.space, cond)
	if c.Waiters() != 0 {
		t.Fatal("failed wait must not stay queued")
	}
}

func TestCond_InitDestroy(t *testing.T) {
	f := newFixture(t)
	cond := f.word(t, 0)
	if rc := f.call(t, 1, "pthread_cond_init", cond, 0); rc != 0 {
		t.Fatalf("init rc=%d", rc)
	}
	if Decode(f.read(t, cond)).Kind != SlotReady {
		t.Fatal("init should materialize")
	}
	f.call(t, 1, "pthread_cond_destroy", cond)
	if f.read(t, cond) != 0 {
		t.Fatal("destroy should reset the word")
	}
}
