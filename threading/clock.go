package threading

import (
	"context"
	"time"

	soruntime "github.com/wippyai/so-runtime"
)

// Clock ids of the foreign libc.
const (
	ClockRealtime  uint32 = 0
	ClockMonotonic uint32 = 1
)

// struct timespec and struct timeval are two 32-bit words on the foreign ABI.
func readTimespec(mem soruntime.Memory, ptr uint32) (time.Duration, error) {
	sec, err := mem.ReadU32(ptr)
	if err != nil {
		return 0, err
	}
	nsec, err := mem.ReadU32(ptr + 4)
	if err != nil {
		return 0, err
	}
	return time.Duration(int32(sec))*time.Second + time.Duration(int32(nsec)), nil
}

func writePair(mem soruntime.Memory, ptr uint32, a, b uint32) error {
	if err := mem.WriteU32(ptr, a); err != nil {
		return err
	}
	return mem.WriteU32(ptr+4, b)
}

// Now returns the time reported for clock id.
func (s *Shim) Now(clock uint32) time.Duration {
	if clock == ClockRealtime {
		return time.Duration(s.opts.Now().UnixNano())
	}
	return time.Since(s.start)
}

// ClockGettime writes the time of clock into the timespec at ts.
func (s *Shim) ClockGettime(mem soruntime.Memory, clock, ts uint32) int32 {
	d := s.Now(clock)
	if err := writePair(mem, ts, uint32(d/time.Second), uint32(d%time.Second)); err != nil {
		return -1
	}
	return 0
}

// Gettimeofday writes wall time into the timeval at tv. The timezone
// argument is ignored.
func (s *Shim) Gettimeofday(mem soruntime.Memory, tv uint32) int32 {
	if tv == 0 {
		return 0
	}
	d := s.Now(ClockRealtime)
	if err := writePair(mem, tv, uint32(d/time.Second), uint32(d%time.Second/time.Microsecond)); err != nil {
		return -1
	}
	return 0
}

// Time returns wall seconds, also stored at out when non-null.
func (s *Shim) Time(mem soruntime.Memory, out uint32) uint32 {
	sec := uint32(s.opts.Now().Unix())
	if out != 0 {
		_ = mem.WriteU32(out, sec)
	}
	return sec
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return 0
	case <-ctx.Done():
		return soruntime.EINTR
	}
}

// Nanosleep sleeps for the timespec at req.
func Nanosleep(ctx context.Context, mem soruntime.Memory, req, rem uint32) int32 {
	d, err := readTimespec(mem, req)
	if err != nil || d < 0 {
		return -1
	}
	if rc := Sleep(ctx, d); rc != 0 {
		return -1
	}
	if rem != 0 {
		_ = writePair(mem, rem, 0, 0)
	}
	return 0
}
