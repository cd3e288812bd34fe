package resource

import (
	"errors"
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend()

	handle, err := b.Create(KindCapsule, "test value")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if handle == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := b.Get(handle)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	kind, ok := b.Kind(handle)
	if !ok || kind != KindCapsule {
		t.Fatalf("Kind = %v, %v", kind, ok)
	}

	val, err = b.Drop(handle)
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	if _, ok = b.Get(handle); ok {
		t.Fatal("Expected Get to fail after Drop")
	}
}

func TestLocalBackend_Pin(t *testing.T) {
	b := NewLocalBackend()
	h, _ := b.Create(KindRouter, "r")

	if !b.Pin(h) {
		t.Fatal("Pin failed")
	}
	if !b.Pin(h) {
		t.Fatal("second Pin failed")
	}

	if _, err := b.Drop(h); !errors.Is(err, ErrPinned) {
		t.Fatalf("Drop of pinned handle: err = %v, want ErrPinned", err)
	}

	b.Unpin(h)
	if _, err := b.Drop(h); !errors.Is(err, ErrPinned) {
		t.Fatal("Drop should still fail with one pin outstanding")
	}

	b.Unpin(h)
	if b.Unpin(h) {
		t.Fatal("Unpin below zero should fail")
	}
	if _, err := b.Drop(h); err != nil {
		t.Fatalf("Drop after unpin: %v", err)
	}
}

func TestLocalBackend_HandleReuse(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(KindCapsule, "first")
	if _, err := b.Drop(h1); err != nil {
		t.Fatal(err)
	}

	h2, _ := b.Create(KindCapsule, "second")
	if h2 != h1 {
		t.Fatalf("Expected freed handle %d to be reused, got %d", h1, h2)
	}
	val, _ := b.Get(h2)
	if val != "second" {
		t.Fatalf("Expected 'second', got %v", val)
	}
}

type dropCounter struct {
	n *int
}

func (d dropCounter) Drop() { *d.n++ }

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend()
	n := 0
	b.Create(KindCapsule, dropCounter{&n})
	b.Create(KindCapsule, dropCounter{&n})
	b.Create(KindCapsule, "plain")

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 drops, got %d", n)
	}

	if _, err := b.Create(KindCapsule, "x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Create after Close: err = %v, want ErrClosed", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := b.Create(KindCapsule, i)
			if err != nil {
				t.Error(err)
				return
			}
			if v, ok := b.Get(h); !ok || v != i {
				t.Errorf("Get(%d) = %v, %v", h, v, ok)
			}
		}(i)
	}
	wg.Wait()

	if b.Len() != 32 {
		t.Fatalf("Len = %d, want 32", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend()
	b.Create(KindCapsule, 1)
	h, _ := b.Create(KindRouter, 2)
	b.Create(KindFunction, 3)
	b.Drop(h)

	seen := 0
	b.Each(func(_ Handle, k Kind, _ any) bool {
		if k == KindRouter {
			t.Error("dropped entry visited")
		}
		seen++
		return true
	})
	if seen != 2 {
		t.Fatalf("visited %d, want 2", seen)
	}

	seen = 0
	b.Each(func(Handle, Kind, any) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Fatalf("early stop visited %d", seen)
	}
}

func TestLocalBackend_InvalidHandle(t *testing.T) {
	b := NewLocalBackend()

	if _, ok := b.Get(0); ok {
		t.Fatal("handle 0 must be invalid")
	}
	if _, ok := b.Get(99); ok {
		t.Fatal("out of range handle must be invalid")
	}
	if v, err := b.Drop(99); v != nil || err != nil {
		t.Fatalf("Drop(99) = %v, %v", v, err)
	}
	if b.Pin(0) {
		t.Fatal("Pin(0) should fail")
	}
}
