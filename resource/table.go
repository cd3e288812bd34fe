package resource

import (
	"reflect"
	"sync"
)

// Table maps handles to Go values with kind tagging, value interning
// and observer support. It is safe for concurrent use.
type Table struct {
	backend   *LocalBackend
	interned  map[internKey]Handle
	observers []Observer
	obsMu     sync.RWMutex
	internMu  sync.Mutex
	closed    bool
	closeMu   sync.RWMutex
}

type internKey struct {
	value any
	kind  Kind
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{
		backend:  NewLocalBackend(),
		interned: make(map[internKey]Handle),
	}
}

func (t *Table) isClosed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.closed
}

// Insert adds a value and returns its handle, or 0 once closed.
func (t *Table) Insert(kind Kind, value any) Handle {
	if t.isClosed() {
		return 0
	}

	handle, err := t.backend.Create(kind, value)
	if err != nil {
		return 0
	}

	t.notify(Event{Type: EventCreated, Handle: handle, Kind: kind, Value: value})
	return handle
}

// Intern returns the existing handle for a comparable value of the same
// kind, inserting it when absent. Non-comparable values always get a
// fresh handle.
func (t *Table) Intern(kind Kind, value any) Handle {
	if !comparable(value) {
		return t.Insert(kind, value)
	}

	key := internKey{kind: kind, value: value}
	t.internMu.Lock()
	defer t.internMu.Unlock()

	if h, ok := t.interned[key]; ok {
		if _, live := t.backend.Get(h); live {
			return h
		}
	}
	h := t.Insert(kind, value)
	if h != 0 {
		t.interned[key] = h
	}
	return h
}

func comparable(value any) bool {
	if value == nil {
		return false
	}
	return reflect.ValueOf(value).Comparable()
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetKind retrieves a value only if it was stored with the expected kind.
func (t *Table) GetKind(handle Handle, kind Kind) (any, bool) {
	actual, ok := t.backend.Kind(handle)
	if !ok || actual != kind {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Remove drops a value and returns (value, true) if found and unpinned.
func (t *Table) Remove(handle Handle) (any, bool) {
	kind, ok := t.backend.Kind(handle)
	if !ok {
		return nil, false
	}
	value, err := t.backend.Drop(handle)
	if err != nil {
		return nil, false
	}

	if comparable(value) {
		t.internMu.Lock()
		key := internKey{kind: kind, value: value}
		if t.interned[key] == handle {
			delete(t.interned, key)
		}
		t.internMu.Unlock()
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{Type: EventDropped, Handle: handle, Kind: kind, Value: value})
	return value, true
}

// Pin keeps handle alive across a Remove until Unpin.
func (t *Table) Pin(handle Handle) bool { return t.backend.Pin(handle) }

// Unpin releases a pin taken with Pin.
func (t *Table) Unpin(handle Handle) bool { return t.backend.Unpin(handle) }

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live values.
func (t *Table) Len() int {
	return t.backend.Len()
}

// LenKind returns the number of live values of one kind.
func (t *Table) LenKind(kind Kind) int {
	n := 0
	t.backend.Each(func(_ Handle, k Kind, _ any) bool {
		if k == kind {
			n++
		}
		return true
	})
	return n
}

// Clear drops every value of the given kinds, or all values when none
// are given. Pinned values survive.
func (t *Table) Clear(kinds ...Kind) {
	var handles []Handle
	t.backend.Each(func(h Handle, k Kind, _ any) bool {
		if len(kinds) == 0 {
			handles = append(handles, h)
			return true
		}
		for _, want := range kinds {
			if k == want {
				handles = append(handles, h)
				break
			}
		}
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases all values and stops accepting inserts.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	t.internMu.Lock()
	t.interned = make(map[internKey]Handle)
	t.internMu.Unlock()

	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
