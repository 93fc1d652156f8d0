package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed    = errors.New("resource backend closed")
	ErrExhausted = errors.New("resource handle window exhausted")
)

// LocalBackend is an in-memory backend issuing handles base+1, base+2, ...
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	base     uint32
	limit    uint32
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	kind  Kind
	valid bool
}

// MaxHandle is the largest handle a LocalBackend issues. All-ones is left
// free for callers that use it as an in-progress marker.
const MaxHandle Handle = 0xFFFFFFFE

// NewLocalBackend creates a backend whose handles are greater than base.
// The window extends to MaxHandle.
func NewLocalBackend(base uint32) *LocalBackend {
	var limit uint32
	if base < uint32(MaxHandle) {
		limit = uint32(MaxHandle) - base
	}
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		base:     base,
		limit:    limit,
	}
}

func (b *LocalBackend) index(handle Handle) (int, bool) {
	h := uint32(handle)
	if h <= b.base {
		return 0, false
	}
	idx := int(h - b.base - 1)
	if idx >= len(b.entries) {
		return 0, false
	}
	return idx, true
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(kind Kind, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{
		kind:  kind,
		value: value,
		valid: true,
	}

	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[uint32(handle)-b.base-1] = e
		return handle, nil
	}

	if uint32(len(b.entries)) >= b.limit {
		return 0, ErrExhausted
	}
	b.entries = append(b.entries, e)
	return Handle(b.base + uint32(len(b.entries))), nil
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.index(handle)
	if !ok || !b.entries[idx].valid {
		return nil, false
	}
	return b.entries[idx].value, true
}

// Kind returns the kind for a handle.
func (b *LocalBackend) Kind(handle Handle) (Kind, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.index(handle)
	if !ok || !b.entries[idx].valid {
		return 0, false
	}
	return b.entries[idx].kind, true
}

// Drop removes an object and returns (value, true) if it existed.
func (b *LocalBackend) Drop(handle Handle) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.index(handle)
	if !ok {
		return nil, false
	}
	e := &b.entries[idx]
	if !e.valid {
		return nil, false
	}

	value := e.value
	e.valid = false
	e.value = nil
	b.freeList = append(b.freeList, handle)

	return value, true
}

// Close releases all objects.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for i := range b.entries {
		if b.entries[i].valid {
			if d, ok := b.entries[i].value.(Dropper); ok {
				d.Drop()
			}
			b.entries[i].valid = false
			b.entries[i].value = nil
		}
	}

	b.entries = nil
	b.freeList = nil
	return nil
}

// Len returns the number of live objects.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries) - len(b.freeList)
}

// Each iterates over all live objects.
func (b *LocalBackend) Each(fn func(Handle, Kind, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(b.base+uint32(i)+1), e.kind, e.value) {
				break
			}
		}
	}
}
