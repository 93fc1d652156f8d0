package runtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/so-runtime/errors"
)

// Trigger reports whether the user asked for a forced crash.
type Trigger interface {
	Fired() bool
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func() bool

func (f TriggerFunc) Fired() bool { return f() }

type chanTrigger[T any] struct {
	ch <-chan T
}

func (t chanTrigger[T]) Fired() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// ChanTrigger fires once for every value received on ch.
func ChanTrigger[T any](ch <-chan T) Trigger {
	return chanTrigger[T]{ch: ch}
}

// ErrForcedCrash is the fault raised when the watchdog fires.
var ErrForcedCrash = errors.Fault("watchdog", "crash requested")

// Watchdog polls a trigger independently of the foreign threads.
type Watchdog struct {
	trigger  Trigger
	interval time.Duration
	fire     func(error)
}

// NewWatchdog creates a watchdog calling fire with ErrForcedCrash when
// trigger fires.
func NewWatchdog(trigger Trigger, interval time.Duration, fire func(error)) *Watchdog {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Watchdog{trigger: trigger, interval: interval, fire: fire}
}

// Run polls until ctx is done or the trigger fires once.
func (w *Watchdog) Run(ctx context.Context) {
	if w.trigger == nil {
		return
	}
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if w.trigger.Fired() {
				Logger().Warn("watchdog fired", zap.Duration("interval", w.interval))
				w.fire(ErrForcedCrash)
				return
			}
		}
	}
}
