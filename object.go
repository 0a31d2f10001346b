package ffiobject

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/ffiobject/errors"
)

// Deallocator releases the payload of an owning Object.
//
// Deallocators are compared by pointer identity: an implementation declares
// exactly one Deallocator per payload layout and recognizes its own objects by
// that pointer. Two implementations that share a kind tag never share a
// Deallocator.
type Deallocator struct {
	fn   func(*Object)
	name string
}

// NewDeallocator creates a deallocator. fn receives the object being released
// and must clear its Dealloc and Payload fields before freeing the payload.
func NewDeallocator(name string, fn func(*Object)) *Deallocator {
	return &Deallocator{name: name, fn: fn}
}

// Name returns the diagnostic name of the deallocator.
func (d *Deallocator) Name() string {
	if d == nil {
		return ""
	}
	return d.name
}

// Object is the tagged container that crosses the boundary.
//
// Dealloc is set iff this instance owns Payload. A nil Dealloc with a non-nil
// Payload is a borrowed object; both nil is an empty or released object.
type Object struct {
	Kind    Kind
	Dealloc *Deallocator
	Payload unsafe.Pointer
}

// New creates an object. The caller guarantees that dealloc matches the
// allocator that produced payload.
func New(kind Kind, dealloc *Deallocator, payload unsafe.Pointer) Object {
	return Object{Kind: kind, Dealloc: dealloc, Payload: payload}
}

// Empty returns an opaque object with no payload and no deallocator.
func Empty() Object {
	return Object{Kind: KindOpaque}
}

// IsEmpty reports whether the object holds no payload.
func (o *Object) IsEmpty() bool {
	return o.Payload == nil
}

// IsOwned reports whether the object owns its payload.
func (o *Object) IsOwned() bool {
	return o.Dealloc != nil && o.Payload != nil
}

// Borrow returns a non-owning alias of o. The alias must not outlive o and
// releasing it never frees the payload.
func (o *Object) Borrow() Object {
	return Object{Kind: o.Kind, Payload: o.Payload}
}

// Release frees the payload if o owns it and leaves o empty.
// Calling Release again, or on a borrowed or empty object, only clears the
// fields.
func (o *Object) Release() {
	if o == nil {
		return
	}

	if d := o.Dealloc; d != nil {
		if o.Payload == nil {
			errors.Violation(errors.New(errors.PhaseRelease, errors.KindNilPointer).
				Object(uint64(o.Kind)).
				Actual(d.name).
				Detail("deallocator installed over a nil payload").
				Build())
		}
		if d.fn == nil {
			errors.Violation(errors.NilPointer(errors.PhaseRelease, "deallocator function"))
		}
		if ce := Logger().Check(zap.DebugLevel, "release object"); ce != nil {
			ce.Write(zap.Stringer("kind", o.Kind), zap.String("dealloc", d.name))
		}
		d.fn(o)
	}

	o.Dealloc = nil
	o.Payload = nil
}

// CheckKindAndTake moves the payload out of o if o has the expected kind and
// its deallocator is exactly dealloc. On success o is left as an empty shell
// of the same kind and the caller owns the returned payload. On failure o is
// untouched.
func (o *Object) CheckKindAndTake(kind Kind, dealloc *Deallocator) (unsafe.Pointer, bool) {
	if o.Kind != kind || dealloc == nil || o.Dealloc != dealloc || o.Payload == nil {
		if ce := Logger().Check(zap.DebugLevel, "capability check rejected"); ce != nil {
			ce.Write(
				zap.Stringer("kind", o.Kind),
				zap.Stringer("want_kind", kind),
				zap.String("dealloc", o.Dealloc.Name()),
				zap.String("want_dealloc", dealloc.Name()),
				zap.Bool("empty", o.Payload == nil),
			)
		}
		return nil, false
	}

	payload := o.Payload
	o.Dealloc = nil
	o.Payload = nil
	return payload, true
}

// Take moves the whole container out of o and leaves o empty.
func (o *Object) Take() Object {
	out := *o
	o.Dealloc = nil
	o.Payload = nil
	return out
}

// Releaser is implemented by values that hold resources of their own. Boxed
// values implementing it are released together with their box.
type Releaser interface {
	Release()
}
