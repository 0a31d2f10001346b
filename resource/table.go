package resource

import (
	"sync"

	"go.uber.org/zap"
)

// Table maps integer handles to host values and notifies observers about
// their lifecycle. It is safe for concurrent use.
type Table struct {
	backend   Backend
	logger    *zap.Logger
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a table backed by a LocalBackend.
func NewTable() *Table {
	return NewTableWithBackend(NewLocalBackend())
}

// NewTableWithBackend creates a table over the given backend.
func NewTableWithBackend(b Backend) *Table {
	return &Table{backend: b, logger: zap.NewNop()}
}

// SetLogger sets the logger used for lifecycle debugging.
func (t *Table) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	t.logger = l
}

// Insert stores a value and returns its handle, or 0 if the table is closed.
func (t *Table) Insert(kind uint64, value any) Handle {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return 0
	}

	handle, err := t.backend.Create(kind, value)
	if err != nil {
		t.logger.Debug("insert failed", zap.Error(err))
		return 0
	}

	t.notify(Event{Type: EventCreated, Handle: handle, Kind: kind, Value: value})
	return handle
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetKind retrieves a value only if it was stored with the expected kind.
func (t *Table) GetKind(handle Handle, kind uint64) (any, bool) {
	actual, ok := t.backend.Kind(handle)
	if !ok || actual != kind {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Take removes an entry and hands its value to the caller without releasing
// it.
func (t *Table) Take(handle Handle) (any, bool) {
	kind, _ := t.backend.Kind(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}
	t.notify(Event{Type: EventTaken, Handle: handle, Kind: kind, Value: value})
	return value, true
}

// Remove removes an entry and releases its value if it is a Releaser.
func (t *Table) Remove(handle Handle) (any, bool) {
	kind, _ := t.backend.Kind(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}

	if r, ok := value.(Releaser); ok {
		r.Release()
	}

	t.notify(Event{Type: EventReleased, Handle: handle, Kind: kind, Value: value})
	return value, true
}

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

// Len returns the number of live handles.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Clear removes and releases every entry.
func (t *Table) Clear() {
	// Collect handles first to avoid holding the backend lock during Remove
	var handles []Handle
	t.backend.Each(func(h Handle, _ uint64, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close stops accepting inserts, then removes and releases every entry with
// an EventReleased each, like Clear.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	t.Clear()
	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	if ce := t.logger.Check(zap.DebugLevel, "resource event"); ce != nil {
		ce.Write(zap.Stringer("type", e.Type), zap.Uint32("handle", uint32(e.Handle)), zap.Uint64("kind", e.Kind))
	}

	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
