package threading

import (
	"context"
	"runtime"

	soruntime "github.com/wippyai/so-runtime"
)

const (
	onceUnset   uint32 = 0
	onceRunning uint32 = 1
	onceDone    uint32 = 2
)

// Once runs the routine at fn exactly once for the control word at ctl.
// Callers that lose the race block until the routine has returned.
func (s *Shim) Once(ctx context.Context, mem soruntime.Space, ctl, fn uint32) (int32, error) {
	word, err := mem.ReadU32(ctl)
	if err != nil {
		return soruntime.EFAULT, nil
	}
	if word == onceDone {
		return 0, nil
	}

	v, _ := s.onces.LoadOrStore(ctl, make(chan struct{}))
	done := v.(chan struct{})

	won, err := mem.CompareAndSwapU32(ctl, onceUnset, onceRunning)
	if err != nil {
		return soruntime.EFAULT, nil
	}
	if !won {
		for {
			word, err := mem.ReadU32(ctl)
			if err != nil {
				return soruntime.EFAULT, nil
			}
			switch word {
			case onceDone:
				return 0, nil
			case onceRunning:
				select {
				case <-done:
				case <-ctx.Done():
					return soruntime.EINTR, nil
				}
			default:
				// word was written by something other than this shim
				runtime.Gosched()
			}
		}
	}

	callErr := s.reg.Call(ctx, mem, fn, "v", nil)
	_ = mem.WriteU32(ctl, onceDone)
	close(done)
	if callErr != nil {
		return 0, callErr
	}
	return 0, nil
}
