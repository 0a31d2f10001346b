package ffiobject

import (
	"unsafe"

	"github.com/wippyai/ffiobject/errors"
)

// Result holds either an ok value of type T or an error value of type E
// without exposing how the union is laid out. The arm is queried through
// isOk and extracted through exactly one of intoOk or intoErr.
type Result[T, E any] struct {
	dealloc func(*unsafe.Pointer)
	intoOk  func(*unsafe.Pointer) T
	intoErr func(*unsafe.Pointer) E
	isOk    func(unsafe.Pointer) uint8
	object  unsafe.Pointer
}

type outcome[T, E any] struct {
	value T
	err   E
	ok    bool
}

func newResult[T, E any](o *outcome[T, E]) Result[T, E] {
	return Result[T, E]{
		dealloc: resultDealloc[T, E],
		intoOk:  resultIntoOk[T, E],
		intoErr: resultIntoErr[T, E],
		isOk:    resultIsOk[T, E],
		object:  unsafe.Pointer(o),
	}
}

// Ok returns a result holding v.
func Ok[T, E any](v T) Result[T, E] {
	return newResult(&outcome[T, E]{value: v, ok: true})
}

// Err returns a result holding e.
func Err[T, E any](e E) Result[T, E] {
	return newResult(&outcome[T, E]{err: e})
}

// FromPair converts a Go (value, error) pair into a result.
func FromPair[T any](v T, err error) Result[T, error] {
	if err != nil {
		return Err[T](err)
	}
	return Ok[T, error](v)
}

func resultDealloc[T, E any](object *unsafe.Pointer) {
	if object == nil {
		errors.Violation(errors.NilPointer(errors.PhaseRelease, "result slot"))
	}
	if *object == nil {
		return
	}

	o := (*outcome[T, E])(*object)
	*object = nil
	if o.ok {
		releaseArm(&o.value)
	} else {
		releaseArm(&o.err)
	}
}

// releaseArm releases an unresolved arm that holds resources of its own,
// either through its value or through a pointer to it (Object).
func releaseArm[V any](v *V) {
	if r, ok := any(*v).(Releaser); ok {
		r.Release()
		return
	}
	if r, ok := any(v).(Releaser); ok {
		r.Release()
	}
}

func takeOutcome[T, E any](object *unsafe.Pointer) *outcome[T, E] {
	if object == nil || *object == nil {
		errors.Violation(errors.NilPointer(errors.PhaseResolve, "result payload"))
	}
	o := (*outcome[T, E])(*object)
	*object = nil
	return o
}

func resultIntoOk[T, E any](object *unsafe.Pointer) T {
	o := takeOutcome[T, E](object)
	if !o.ok {
		errors.Violation(errors.WrongArm("ok", "err"))
	}
	return o.value
}

func resultIntoErr[T, E any](object *unsafe.Pointer) E {
	o := takeOutcome[T, E](object)
	if o.ok {
		errors.Violation(errors.WrongArm("err", "ok"))
	}
	return o.err
}

func resultIsOk[T, E any](object unsafe.Pointer) uint8 {
	if object == nil {
		errors.Violation(errors.NilPointer(errors.PhaseResolve, "result payload"))
	}
	if (*outcome[T, E])(object).ok {
		return 1
	}
	return 0
}

func (r *Result[T, E]) discriminant() uint8 {
	if r.isOk == nil {
		errors.Violation(errors.NilPointer(errors.PhaseResolve, "result is_ok function"))
	}
	return r.isOk(r.object)
}

// IsOk reports whether the result holds an ok value.
func (r *Result[T, E]) IsOk() bool {
	switch d := r.discriminant(); d {
	case 1:
		return true
	case 0:
		return false
	default:
		errors.Violation(errors.InvalidDiscriminant(errors.PhaseResolve, d))
		return false
	}
}

// Resolve consumes the result. Exactly one of the two arms is extracted:
// value when ok is true, err otherwise.
func (r *Result[T, E]) Resolve() (value T, err E, ok bool) {
	switch d := r.discriminant(); d {
	case 1:
		return r.intoOk(&r.object), err, true
	case 0:
		return value, r.intoErr(&r.object), false
	default:
		errors.Violation(errors.InvalidDiscriminant(errors.PhaseResolve, d))
		return value, err, false
	}
}

// Release drops the result without extracting it. An arm that implements
// Releaser, or whose pointer does, is released with it. Safe to call more
// than once and after Resolve.
func (r *Result[T, E]) Release() {
	if r.dealloc == nil {
		r.object = nil
		return
	}
	r.dealloc(&r.object)
}

// MapOk resolves r and applies f to the ok value.
func MapOk[T, E, U any](r *Result[T, E], f func(T) U) Result[U, E] {
	v, e, ok := r.Resolve()
	if ok {
		return Ok[U, E](f(v))
	}
	return Err[U, E](e)
}

// MapErr resolves r and applies f to the error value.
func MapErr[T, E, F any](r *Result[T, E], f func(E) F) Result[T, F] {
	v, e, ok := r.Resolve()
	if ok {
		return Ok[T, F](v)
	}
	return Err[T, F](f(e))
}
