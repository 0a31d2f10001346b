package ffiobject

import (
	"unsafe"

	"github.com/wippyai/ffiobject/errors"
)

// Element is the set of array element types with a reserved kind.
type Element interface {
	byte | Object
}

// ArrayHeader is the leading layout shared by every array payload, whatever
// allocator backs it. Data points at Len contiguous elements.
type ArrayHeader struct {
	Data unsafe.Pointer
	Len  int
}

// sliceArray is the payload produced by this implementation. The header must
// stay the first field.
type sliceArray[T Element] struct {
	ArrayHeader
	backing []T
	pooled  bool
}

var (
	dataArrayDealloc   = NewDeallocator("go:[]byte", releaseSliceArray[byte])
	objectArrayDealloc = NewDeallocator("go:[]Object", releaseSliceArray[Object])
)

func releaseSliceArray[T Element](o *Object) {
	p := (*sliceArray[T])(o.Payload)
	o.Dealloc = nil
	o.Payload = nil
	if p == nil {
		return
	}

	backing := p.backing[:p.Len]
	p.backing = nil
	p.Data = nil
	p.Len = 0

	switch elems := any(backing).(type) {
	case []Object:
		for i := range elems {
			elems[i].Release()
		}
	case []byte:
		if p.pooled {
			putBuffer(elems)
		}
	}
}

func arrayKind[T Element]() Kind {
	var zero T
	if _, ok := any(zero).(byte); ok {
		return KindDataArray
	}
	return KindObjectArray
}

func arrayDealloc[T Element]() *Deallocator {
	var zero T
	if _, ok := any(zero).(byte); ok {
		return dataArrayDealloc
	}
	return objectArrayDealloc
}

// Array is a typed view of an object holding an array payload.
type Array[T Element] struct {
	obj *Object
}

// DataArray is a view of an object holding bytes.
type DataArray = Array[byte]

// ObjectArray is a view of an object holding objects.
type ObjectArray = Array[Object]

// FromSlice moves s into a new owning object of kind KindDataArray (bytes) or
// KindObjectArray (objects). The caller must not use s afterwards.
func FromSlice[T Element](s []T) Array[T] {
	p := &sliceArray[T]{backing: s}
	p.Len = len(s)
	if len(s) > 0 {
		p.Data = unsafe.Pointer(unsafe.SliceData(s))
	}
	return Array[T]{obj: &Object{
		Kind:    arrayKind[T](),
		Dealloc: arrayDealloc[T](),
		Payload: unsafe.Pointer(p),
	}}
}

// NewDataArray returns an owning data array of n zero bytes whose storage is
// recycled when the array is released.
func NewDataArray(n int) DataArray {
	buf := getBuffer(n)
	arr := FromSlice(buf)
	(*sliceArray[byte])(arr.obj.Payload).pooled = true
	return arr
}

// ArrayFrom returns a typed view of o if o has the array kind for T and a
// payload. Otherwise o is untouched and ok is false.
func ArrayFrom[T Element](o *Object) (Array[T], bool) {
	if o == nil || o.Payload == nil || o.Kind != arrayKind[T]() {
		return Array[T]{}, false
	}
	return Array[T]{obj: o}, true
}

// Object returns the underlying container.
func (a Array[T]) Object() *Object {
	return a.obj
}

// IntoObject moves the container out of the view, leaving the view's object
// empty.
func (a Array[T]) IntoObject() Object {
	return a.obj.Take()
}

func (a Array[T]) header() *ArrayHeader {
	if a.obj == nil {
		errors.Violation(errors.NilPointer(errors.PhaseAccess, "array object"))
	}
	if a.obj.Kind != arrayKind[T]() {
		errors.Violation(errors.KindMismatch(errors.PhaseAccess, nil, uint64(arrayKind[T]()), uint64(a.obj.Kind)))
	}
	if a.obj.Payload == nil {
		errors.Violation(errors.Empty(errors.PhaseAccess, nil))
	}
	return (*ArrayHeader)(a.obj.Payload)
}

// Len returns the number of elements.
func (a Array[T]) Len() int {
	return a.header().Len
}

// AsSlice returns the elements. The slice aliases the payload and must not be
// written through; use AsMutableSlice for that.
func (a Array[T]) AsSlice() []T {
	h := a.header()
	if h.Len == 0 {
		return nil
	}
	return unsafe.Slice((*T)(h.Data), h.Len)[:h.Len:h.Len]
}

// AsMutableSlice returns the elements for in-place mutation.
func (a Array[T]) AsMutableSlice() []T {
	h := a.header()
	if h.Len == 0 {
		return nil
	}
	return unsafe.Slice((*T)(h.Data), h.Len)
}

// MoveIntoSlice moves the elements out of the object if this implementation
// allocated it. The object is left empty on success. If the payload belongs
// to another allocator, ok is false and the object is untouched.
func (a Array[T]) MoveIntoSlice() ([]T, bool) {
	if a.obj == nil {
		return nil, false
	}
	payload, ok := a.obj.CheckKindAndTake(arrayKind[T](), arrayDealloc[T]())
	if !ok {
		return nil, false
	}

	p := (*sliceArray[T])(payload)
	out := p.backing[:p.Len]
	if p.pooled {
		// ownership leaves the pool with the caller
		pooledOut.Add(-1)
	}
	p.backing = nil
	p.Data = nil
	p.Len = 0
	return out, true
}

// Release releases the underlying object.
func (a Array[T]) Release() {
	a.obj.Release()
}
