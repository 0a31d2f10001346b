// Package guest carries objects across a WebAssembly boundary.
//
// A guest module compiled separately from the host receives objects as
// pointers into its own linear memory. Each object is the 16-byte struct
//
//	struct object { uint64 kind; uint32 release; uint32 payload; }
//
// where release identifies the allocator that owns the payload. The host
// allocator uses ReleaseDataArray, ReleaseObjectArray and ReleaseHostBox;
// every other non-zero id is foreign and the host never frees such payloads.
// A zero release with a payload is a borrowed object.
//
// # Architecture
//
//	Runtime                wazero runtime + "ffiobject" host module
//	└── Instance           one guest module
//	    ├── Memory         bounds-checked access to linear memory
//	    ├── Arena          host allocator inside linear memory
//	    ├── resource.Table boxed Go values referenced by handle
//	    └── Bridge         Lower / Lift / Release
//
// # Usage
//
//	rt, err := guest.NewRuntime(ctx, &guest.Config{MemoryLimitPages: 256})
//	defer rt.Close(ctx)
//
//	inst, err := rt.Instantiate(ctx, wasmBytes)
//	obj := ffiobject.FromSlice([]byte("Test")).IntoObject()
//
//	ptr, err := inst.Bridge().Lower(&obj)     // obj is now empty
//	_, err = inst.Call(ctx, "array_set0", uint64(ptr))
//	back, err := inst.Bridge().Lift(ptr)       // "0000"
//	defer back.Release()
//	inst.Bridge().Destroy(ptr)
//
// # Host imports
//
// Guests import these functions from module "ffiobject"; each takes an object
// pointer:
//
//	release(obj i32)           release the payload, exactly once
//	kind(obj i32) i64          object kind
//	array_len(obj i32) i32     element count
//	array_data(obj i32) i32    address of the first element
//
// A failing host function traps the guest call.
//
// # Errors
//
// Everything read from guest memory is validated before it is acted on. Bad
// pointers, foreign or mismatched release ids, aliased storage and stale box
// handles are returned as *errors.Error values and leave guest memory as it
// was.
package guest
