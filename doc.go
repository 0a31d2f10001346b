// Package ffiobject implements a tagged-ownership container protocol for moving
// heap-allocated, dynamically typed values across an ABI boundary.
//
// Only ABI-stable primitives cross the boundary: an integer kind tag, a
// deallocator reference and a raw payload pointer. The receiving side
// dispatches on the kind, reads or mutates the payload, and finally either
// hands ownership back or releases it exactly once.
//
// # Architecture Overview
//
//	ffiobject/           Object, Kind, Deallocator; array, boxed and result payloads
//	├── errors/          Structured error types and contract-violation panics
//	├── resource/        Handle table for Go values referenced from guest memory
//	├── guest/           wazero host: lowers and lifts objects into guest linear memory
//	└── cmd/ffirun/      CLI that drives a guest accessor over a data array
//
// # Quick Start
//
//	arr := ffiobject.FromSlice([]byte("Test"))
//	obj := arr.Object() // cross the boundary with obj
//
//	view, ok := ffiobject.ArrayFrom[byte](obj)
//	if ok {
//	    copy(view.AsMutableSlice(), "0000")
//	}
//
//	data, ok := view.MoveIntoSlice() // only succeeds for this implementation
//	obj.Release()                    // no-op once moved out
//
// # Capability Check
//
// Deallocators are compared by pointer identity. Two implementations that
// happen to use the same kind tag for incompatible payloads are told apart by
// their deallocator, so a foreign payload is never reinterpreted:
//
//	payload, ok := obj.CheckKindAndTake(ffiobject.KindDataArray, myDealloc)
//	if !ok {
//	    // not ours; obj is untouched and still independently releasable
//	}
//
// # Errors
//
// Contract violations (kind mismatch on a typed accessor, access to a released
// object, extracting the wrong result arm) panic with an *errors.Error.
// Recoverable ownership mismatches return false and leave the object as it
// was.
//
// # Thread Safety
//
// Objects are single-owner values and are NOT safe for concurrent use. Passing
// an object to another goroutine is a move; add your own synchronization (for
// example a channel) around the handoff.
package ffiobject
