package threading

import (
	"context"
	"sync"

	soruntime "github.com/wippyai/so-runtime"
)

// Mutex is the host object behind a foreign mutex word. Ownership is by
// foreign thread id.
type Mutex struct {
	token  chan struct{} // holds one token while unlocked
	mu     sync.Mutex
	owner  uint32
	depth  int
	flavor Flavor
}

func newMutex(f Flavor) *Mutex {
	m := &Mutex{flavor: f, token: make(chan struct{}, 1)}
	m.token <- struct{}{}
	return m
}

// Flavor returns the mutex flavor.
func (m *Mutex) Flavor() Flavor {
	return m.flavor
}

// relock handles a lock attempt by the current owner. It reports whether the
// attempt was decided.
func (m *Mutex) relock(tid uint32, try bool) (int32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != tid {
		return 0, false
	}
	switch m.flavor {
	case FlavorRecursive:
		m.depth++
		return 0, true
	case FlavorErrorCheck:
		if try {
			return soruntime.EBUSY, true
		}
		return soruntime.EDEADLK, true
	}
	if try {
		return soruntime.EBUSY, true
	}
	// a normal mutex relocked by its owner deadlocks
	return 0, false
}

func (m *Mutex) acquired(tid uint32, depth int) {
	m.mu.Lock()
	m.owner = tid
	m.depth = depth
	m.mu.Unlock()
}

// Lock blocks until tid owns the mutex or ctx is done.
func (m *Mutex) Lock(ctx context.Context, tid uint32) int32 {
	if rc, done := m.relock(tid, false); done {
		return rc
	}
	select {
	case <-m.token:
	case <-ctx.Done():
		return soruntime.EINTR
	}
	m.acquired(tid, 1)
	return 0
}

// TryLock acquires the mutex if it is free.
func (m *Mutex) TryLock(tid uint32) int32 {
	if rc, done := m.relock(tid, true); done {
		return rc
	}
	select {
	case <-m.token:
		m.acquired(tid, 1)
		return 0
	default:
		return soruntime.EBUSY
	}
}

// Unlock releases one level of ownership.
func (m *Mutex) Unlock(tid uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == 0 {
		return soruntime.EPERM
	}
	if m.owner != tid && m.flavor != FlavorNormal {
		return soruntime.EPERM
	}
	m.depth--
	if m.depth > 0 {
		return 0
	}
	m.owner = 0
	m.depth = 0
	m.token <- struct{}{}
	return 0
}

// releaseAll drops every level held by tid and returns the depth, for
// condition waits.
func (m *Mutex) releaseAll(tid uint32) (int, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != tid {
		return 0, soruntime.EPERM
	}
	depth := m.depth
	m.owner = 0
	m.depth = 0
	m.token <- struct{}{}
	return depth, 0
}

// reacquire blocks until tid owns the mutex again at depth. It ignores
// cancellation so a waiter always returns holding the mutex.
func (m *Mutex) reacquire(tid uint32, depth int) {
	<-m.token
	m.acquired(tid, depth)
}

// Owner returns the owning thread id, 0 when unlocked.
func (m *Mutex) Owner() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}
