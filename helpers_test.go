package ffiobject

import (
	"testing"
	"unsafe"

	"github.com/wippyai/ffiobject/errors"
)

// mustViolate runs fn and returns the contract violation it raised.
func mustViolate(t *testing.T, kind errors.Kind, fn func()) *errors.Error {
	t.Helper()

	var got *errors.Error
	func() {
		defer func() {
			r := recover()
			e, ok := errors.AsViolation(r)
			if !ok {
				t.Fatalf("expected contract violation, recovered %v", r)
			}
			got = e
		}()
		fn()
	}()

	if got.Kind != kind {
		t.Fatalf("violation kind = %v, want %v (%v)", got.Kind, kind, got)
	}
	return got
}

// foreignArray is an array payload owned by an allocator other than this
// package's, sharing the ArrayHeader layout.
type foreignArray struct {
	ArrayHeader
	storage []byte
}

type foreignAllocator struct {
	dealloc *Deallocator
	freed   int
}

func newForeignAllocator() *foreignAllocator {
	fa := &foreignAllocator{}
	fa.dealloc = NewDeallocator("test:foreign", func(o *Object) {
		p := (*foreignArray)(o.Payload)
		o.Dealloc = nil
		o.Payload = nil
		if p != nil {
			p.storage = nil
			fa.freed++
		}
	})
	return fa
}

func (fa *foreignAllocator) bytes(b []byte) Object {
	p := &foreignArray{storage: append([]byte(nil), b...)}
	p.Len = len(p.storage)
	if p.Len > 0 {
		p.Data = unsafe.Pointer(&p.storage[0])
	}
	return New(KindDataArray, fa.dealloc, unsafe.Pointer(p))
}

// countingDealloc returns a deallocator that counts how often it frees.
func countingDealloc(count *int) *Deallocator {
	return NewDeallocator("test:counting", func(o *Object) {
		o.Dealloc = nil
		o.Payload = nil
		*count++
	})
}

func countedObject(kind Kind, count *int) Object {
	v := new(int)
	return New(kind, countingDealloc(count), unsafe.Pointer(v))
}
