package threading

import (
	"context"
	"sync"
	"time"

	soruntime "github.com/wippyai/so-runtime"
)

// Cond is the host object behind a foreign condition variable word.
type Cond struct {
	waiters []chan struct{}
	mu      sync.Mutex
}

func newCond() *Cond {
	return &Cond{}
}

// Wait atomically releases m and blocks until signalled, the deadline passes
// (zero deadline waits forever) or ctx is done. m is held again on return.
func (c *Cond) Wait(ctx context.Context, m *Mutex, tid uint32, deadline time.Time) int32 {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	depth, rc := m.releaseAll(tid)
	if rc != 0 {
		c.remove(ch)
		return rc
	}
	defer m.reacquire(tid, depth)

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			if !c.remove(ch) {
				return 0
			}
			return soruntime.ETIMEDOUT
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ch:
		return 0
	case <-timeout:
		if !c.remove(ch) {
			// signalled while timing out
			return 0
		}
		return soruntime.ETIMEDOUT
	case <-ctx.Done():
		if !c.remove(ch) {
			return 0
		}
		return soruntime.EINTR
	}
}

// remove drops ch from the wait queue and reports whether it was still queued.
func (c *Cond) remove(ch chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Signal wakes the longest waiting thread.
func (c *Cond) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return
	}
	ch := c.waiters[0]
	c.waiters = c.waiters[1:]
	ch <- struct{}{}
}

// Broadcast wakes every waiting thread.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.waiters {
		ch <- struct{}{}
	}
	c.waiters = nil
}

// Waiters returns the number of queued waiters.
func (c *Cond) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
