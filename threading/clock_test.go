package threading

import (
	"testing"
	"time"
)

func TestClock_Realtime(t *testing.T) {
	now := time.Unix(1700000000, 500_000_000)
	f := newFixture(t, DefaultOptions().WithClock(func() time.Time { return now }))

	ts, _ := f.space.Alloc(8, 4)
	if rc := f.call(t, 1, "clock_gettime", ClockRealtime, ts); rc != 0 {
		t.Fatalf("clock_gettime rc=%d", rc)
	}
	if f.read(t, ts) != 1700000000 || f.read(t, ts+4) != 500_000_000 {
		t.Fatalf("timespec = %d.%d", f.read(t, ts), f.read(t, ts+4))
	}

	tv, _ := f.space.Alloc(8, 4)
	f.call(t, 1, "gettimeofday", tv, 0)
	if f.read(t, tv) != 1700000000 || f.read(t, tv+4) != 500_000 {
		t.Fatalf("timeval = %d.%d", f.read(t, tv), f.read(t, tv+4))
	}

	out := f.word(t, 0)
	if got := uint32(f.call(t, 1, "time", out)); got != 1700000000 || f.read(t, out) != got {
		t.Fatalf("time = %d, stored %d", got, f.read(t, out))
	}
}

func TestClock_Monotonic(t *testing.T) {
	f := newFixture(t)
	ts, _ := f.space.Alloc(8, 4)
	f.call(t, 1, "clock_gettime", ClockMonotonic, ts)
	first := time.Duration(f.read(t, ts))*time.Second + time.Duration(f.read(t, ts+4))
	time.Sleep(2 * time.Millisecond)
	f.call(t, 1, "clock_gettime", ClockMonotonic, ts)
	second := time.Duration(f.read(t, ts))*time.Second + time.Duration(f.read(t, ts+4))
	if second <= first {
		t.Fatalf("monotonic clock went from %v to %v", first, second)
	}
}

func TestSleeps(t *testing.T) {
	f := newFixture(t)
	req, _ := f.space.Alloc(8, 4)
	_ = f.space.WriteU32(req, 0)
	_ = f.space.WriteU32(req+4, uint32(time.Millisecond))
	rem, _ := f.space.Alloc(8, 4)
	_ = f.space.WriteU32(rem, 9)

	start := time.Now()
	if rc := f.call(t, 1, "nanosleep", req, rem); rc != 0 {
		t.Fatalf("nanosleep rc=%d", rc)
	}
	if time.Since(start) < time.Millisecond {
		t.Fatal("nanosleep returned early")
	}
	if f.read(t, rem) != 0 {
		t.Fatal("remaining time not cleared")
	}
	if rc := f.call(t, 1, "usleep", 100); rc != 0 {
		t.Fatalf("usleep rc=%d", rc)
	}
	if rc := f.call(t, 1, "sched_yield"); rc != 0 {
		t.Fatalf("sched_yield rc=%d", rc)
	}
}
