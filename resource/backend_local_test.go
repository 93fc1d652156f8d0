package resource

import (
	"errors"
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend(0)

	h, err := b.Create(KindMutex, "value")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if h != 1 {
		t.Fatalf("Expected first handle 1, got %d", h)
	}

	v, ok := b.Get(h)
	if !ok || v != "value" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	k, ok := b.Kind(h)
	if !ok || k != KindMutex {
		t.Fatalf("Kind = %v, %v", k, ok)
	}

	v, ok = b.Drop(h)
	if !ok || v != "value" {
		t.Fatalf("Drop = %v, %v", v, ok)
	}
	if _, ok := b.Get(h); ok {
		t.Fatal("Get after Drop should fail")
	}
}

func TestLocalBackend_Window(t *testing.T) {
	b := NewLocalBackend(0xE0000000)
	h1, _ := b.Create(KindMutex, 1)
	h2, _ := b.Create(KindMutex, 2)
	if h1 != 0xE0000001 || h2 != 0xE0000002 {
		t.Fatalf("handles = %x %x", h1, h2)
	}
	for _, h := range []Handle{0, 1, 0xE0000000, 0xE0000003, 0xFFFFFFFF} {
		if _, ok := b.Get(h); ok {
			t.Errorf("handle %x should be invalid", h)
		}
	}
}

func TestLocalBackend_WindowEnd(t *testing.T) {
	b := NewLocalBackend(0xFFFFFFF0)
	var last Handle
	for i := 0; i < 14; i++ {
		h, err := b.Create(KindMutex, i)
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		last = h
	}
	if last != MaxHandle {
		t.Fatalf("last handle = %x, want %x", last, MaxHandle)
	}
	if h, err := b.Create(KindMutex, 14); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Create past the window = %x, %v", h, err)
	}

	full := NewLocalBackend(uint32(MaxHandle))
	if _, err := full.Create(KindMutex, 0); !errors.Is(err, ErrExhausted) {
		t.Fatalf("empty window Create = %v", err)
	}
}

func TestLocalBackend_HandleReuse(t *testing.T) {
	b := NewLocalBackend(0)

	h1, _ := b.Create(KindFile, 1)
	h2, _ := b.Create(KindFile, 2)
	h3, _ := b.Create(KindFile, 3)

	b.Drop(h2)
	b.Drop(h1)

	h4, _ := b.Create(KindFile, 4)
	h5, _ := b.Create(KindFile, 5)

	if h4 != h1 || h5 != h2 {
		t.Fatalf("Expected freed handles reused LIFO, got %d %d", h4, h5)
	}

	for _, h := range []Handle{h3, h4, h5} {
		if _, ok := b.Get(h); !ok {
			t.Fatalf("handle %d should be valid", h)
		}
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend(0)

	b.Create(KindFile, 1)
	b.Create(KindFile, 2)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	_, err := b.Create(KindFile, "test")
	if !errors.Is(err, ErrClosed) {
		t.Fatal("Expected ErrClosed after Close")
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, _ := b.Create(KindMutex, id)
			if v, ok := b.Get(h); !ok || v != id {
				t.Errorf("Get(%d) = %v, %v", h, v, ok)
			}
			b.Drop(h)
		}(i)
	}

	wg.Wait()
	if b.Len() != 0 {
		t.Fatalf("Expected Len() == 0, got %d", b.Len())
	}
}

func TestLocalBackend_Len(t *testing.T) {
	b := NewLocalBackend(0)

	if b.Len() != 0 {
		t.Fatal("Expected Len() == 0 initially")
	}

	h1, _ := b.Create(KindMutex, "a")
	h2, _ := b.Create(KindMutex, "b")
	b.Create(KindMutex, "c")

	if b.Len() != 3 {
		t.Fatalf("Expected Len() == 3, got %d", b.Len())
	}

	b.Drop(h1)
	if b.Len() != 2 {
		t.Fatalf("Expected Len() == 2, got %d", b.Len())
	}

	b.Drop(h2)
	if b.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend(0)

	b.Create(KindMutex, "a")
	b.Create(KindCond, "b")
	b.Create(KindMutex, "c")

	count := 0
	b.Each(func(h Handle, kind Kind, value any) bool {
		count++
		return true
	})

	if count != 3 {
		t.Fatalf("Expected to iterate over 3 items, got %d", count)
	}

	// Test early termination
	count = 0
	b.Each(func(h Handle, kind Kind, value any) bool {
		count++
		return false
	})

	if count != 1 {
		t.Fatalf("Expected to iterate over 1 item (early term), got %d", count)
	}
}

func TestLocalBackend_InvalidHandle(t *testing.T) {
	b := NewLocalBackend(0)

	if _, ok := b.Get(0); ok {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, ok := b.Kind(0); ok {
		t.Fatal("Handle 0 should be invalid for Kind")
	}
	if _, ok := b.Drop(0); ok {
		t.Fatal("Handle 0 should fail Drop")
	}
	if _, ok := b.Get(999); ok {
		t.Fatal("Non-existent handle should be invalid")
	}
}
