package ffiobject

import (
	"unsafe"

	"github.com/wippyai/ffiobject/errors"
)

// Erasure identifies the mechanism that erased a boxed value. Its name is a
// diagnostic type hint only; the pointer itself is what accessors compare.
type Erasure struct {
	name string
}

// NewErasure creates an erasure descriptor with the given type hint.
func NewErasure(name string) *Erasure {
	return &Erasure{name: name}
}

// Name returns the type hint.
func (e *Erasure) Name() string {
	if e == nil {
		return ""
	}
	return e.name
}

// BoxHeader is the leading layout shared by every boxed payload.
type BoxHeader struct {
	Erasure *Erasure
}

type goBox struct {
	BoxHeader
	value any
}

var (
	goErasure  = NewErasure("go:any")
	boxDealloc = NewDeallocator("go:box", releaseBox)
)

func releaseBox(o *Object) {
	p := (*goBox)(o.Payload)
	o.Dealloc = nil
	o.Payload = nil
	if p == nil {
		return
	}

	v := p.value
	p.value = nil
	p.Erasure = nil
	if r, ok := v.(Releaser); ok {
		r.Release()
	}
}

// Boxed is a view of an object holding one type-erased value.
type Boxed struct {
	obj *Object
}

// FromValue erases v into a new owning object of kind KindBoxedValue.
func FromValue(v any) Boxed {
	p := &goBox{BoxHeader: BoxHeader{Erasure: goErasure}, value: v}
	return Boxed{obj: &Object{
		Kind:    KindBoxedValue,
		Dealloc: boxDealloc,
		Payload: unsafe.Pointer(p),
	}}
}

// BoxedFrom returns a boxed view of o if o has kind KindBoxedValue and a
// payload. Otherwise o is untouched and ok is false.
func BoxedFrom(o *Object) (Boxed, bool) {
	if o == nil || o.Payload == nil || o.Kind != KindBoxedValue {
		return Boxed{}, false
	}
	return Boxed{obj: o}, true
}

// Object returns the underlying container.
func (b Boxed) Object() *Object {
	return b.obj
}

// IntoObject moves the container out of the view.
func (b Boxed) IntoObject() Object {
	return b.obj.Take()
}

func (b Boxed) header() *BoxHeader {
	if b.obj == nil {
		errors.Violation(errors.NilPointer(errors.PhaseAccess, "boxed object"))
	}
	if b.obj.Kind != KindBoxedValue {
		errors.Violation(errors.KindMismatch(errors.PhaseAccess, nil, uint64(KindBoxedValue), uint64(b.obj.Kind)))
	}
	if b.obj.Payload == nil {
		errors.Violation(errors.Empty(errors.PhaseAccess, nil))
	}
	return (*BoxHeader)(b.obj.Payload)
}

// Erasure returns the erasure that produced the payload.
func (b Boxed) Erasure() *Erasure {
	return b.header().Erasure
}

// TypeHint returns the diagnostic type hint of the erasure mechanism. It must
// not be used to decide how to interpret the value.
func (b Boxed) TypeHint() string {
	e := b.header().Erasure
	if e == nil {
		errors.Violation(errors.NilPointer(errors.PhaseAccess, "erasure"))
	}
	return e.name
}

// Native reports whether this implementation allocated the payload, so that
// MoveIntoValue will succeed.
func (b Boxed) Native() bool {
	return b.header().Erasure == goErasure && b.obj.Dealloc == boxDealloc
}

// box returns the payload as this implementation's layout. Both the erasure
// and the deallocator must be ours: the erasure pointer alone can be copied
// into a payload of another layout.
func (b Boxed) box() *goBox {
	h := b.header()
	if h.Erasure != goErasure {
		errors.Violation(errors.New(errors.PhaseAccess, errors.KindForeign).
			Object(uint64(KindBoxedValue)).
			Expected(goErasure.name).
			Actual(h.Erasure.Name()).
			Detail("boxed value was not erased by this implementation").
			Build())
	}
	if b.obj.Dealloc != boxDealloc {
		errors.Violation(errors.New(errors.PhaseAccess, errors.KindForeign).
			Object(uint64(KindBoxedValue)).
			Expected(boxDealloc.name).
			Actual(b.obj.Dealloc.Name()).
			Detail("boxed value is not owned through this implementation's deallocator").
			Build())
	}
	return (*goBox)(b.obj.Payload)
}

// AsErased returns the erased value. The caller downcasts it to the concrete
// type it knows. Borrowed aliases are rejected; read through the owner.
func (b Boxed) AsErased() any {
	return b.box().value
}

// AsErasedMut returns a pointer to the erased value so it can be replaced in
// place.
func (b Boxed) AsErasedMut() *any {
	return &b.box().value
}

// MoveIntoValue moves the value out of the object if this implementation
// allocated it. On failure the object is untouched.
func (b Boxed) MoveIntoValue() (any, bool) {
	if b.obj == nil {
		return nil, false
	}
	payload, ok := b.obj.CheckKindAndTake(KindBoxedValue, boxDealloc)
	if !ok {
		return nil, false
	}

	p := (*goBox)(payload)
	v := p.value
	p.value = nil
	p.Erasure = nil
	return v, true
}

// Release releases the underlying object.
func (b Boxed) Release() {
	b.obj.Release()
}

// Downcast returns the boxed value as T.
func Downcast[T any](b Boxed) (T, bool) {
	v, ok := b.AsErased().(T)
	return v, ok
}
