package resource

import (
	"sync"

	"github.com/wippyai/ffiobject/errors"
)

// ErrClosed is returned when storing into a closed backend.
var ErrClosed = errors.New(errors.PhaseHost, errors.KindUnsupported).
	Detail("resource backend closed").
	Build()

// LocalBackend is an in-memory backend with handle reuse.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	kind  uint64
	valid bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(kind uint64, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{kind: kind, value: value, valid: true}

	if n := len(b.freeList); n > 0 {
		handle := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

func (b *LocalBackend) lookup(handle Handle) (*entry, bool) {
	if handle == 0 || int(handle-1) >= len(b.entries) {
		return nil, false
	}
	e := &b.entries[handle-1]
	return e, e.valid
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Kind returns the object kind recorded for a handle.
func (b *LocalBackend) Kind(handle Handle) (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Drop removes an entry and returns its value.
func (b *LocalBackend) Drop(handle Handle) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok {
		return nil, false
	}

	value := e.value
	*e = entry{}
	b.freeList = append(b.freeList, handle)
	return value, true
}

// Each iterates over live entries. The lock is held while fn runs, so fn must
// not call back into the backend.
func (b *LocalBackend) Each(fn func(Handle, uint64, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid && !fn(Handle(i+1), e.kind, e.value) {
			return
		}
	}
}

// Len returns the number of live entries.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries) - len(b.freeList)
}

// Close releases every remaining value.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var pending []Releaser
	for i := range b.entries {
		if !b.entries[i].valid {
			continue
		}
		if r, ok := b.entries[i].value.(Releaser); ok {
			pending = append(pending, r)
		}
		b.entries[i] = entry{}
	}
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	for _, r := range pending {
		r.Release()
	}
	return nil
}
