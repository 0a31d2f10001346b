package guest

import (
	"context"
	"testing"

	"github.com/wippyai/ffiobject/errors"
)

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory" (6 bytes + string)
	0x02, 0x00, // kind: memory, index 0
}

// staticDataWASM is memoryWASM plus an active data segment at 1024, where
// wasm-ld places a C guest's static data by default.
var staticDataWASM = append(append([]byte(nil), memoryWASM...),
	0x0b, 0x18, 0x01, // data section: 24 bytes, 1 segment
	0x00, 0x41, 0x80, 0x08, 0x0b, // memory 0, offset i32.const 1024
	0x11, // 17 bytes
	'G', 'U', 'E', 'S', 'T', '-', 'S', 'T', 'A', 'T', 'I', 'C', '-', 'D', 'A', 'T', 'A',
)

const staticData = "GUEST-STATIC-DATA"

// emptyWASM has no memory at all.
var emptyWASM = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// objectWASM is a guest that works on objects through the host imports:
//
//	(import "ffiobject" "release"    (func $release (param i32)))
//	(import "ffiobject" "array_len"  (func $len (param i32) (result i32)))
//	(import "ffiobject" "array_data" (func $data (param i32) (result i32)))
//	(memory (export "memory") 1)
//	(func (export "array_len") (param $o i32) (result i64)
//	  local.get $o  i32.load offset=12  i32.load offset=4  i64.extend_i32_u)
//	(func (export "array_set0") (param $o i32) (local $p i32) (local $end i32)
//	  ;; for p := data(o); p < data(o)+len(o); p++ { *p = '0' })
//	(func (export "drop") (param $o i32) local.get $o call $release)
var objectWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

	// type section: (i32)->(), (i32)->i32, (i32)->i64
	0x01, 0x0f, 0x03,
	0x60, 0x01, 0x7f, 0x00,
	0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x60, 0x01, 0x7f, 0x01, 0x7e,

	// import section
	0x02, 0x42, 0x03,
	0x09, 0x66, 0x66, 0x69, 0x6f, 0x62, 0x6a, 0x65, 0x63, 0x74, // "ffiobject"
	0x07, 0x72, 0x65, 0x6c, 0x65, 0x61, 0x73, 0x65, // "release"
	0x00, 0x00,
	0x09, 0x66, 0x66, 0x69, 0x6f, 0x62, 0x6a, 0x65, 0x63, 0x74,
	0x09, 0x61, 0x72, 0x72, 0x61, 0x79, 0x5f, 0x6c, 0x65, 0x6e, // "array_len"
	0x00, 0x01,
	0x09, 0x66, 0x66, 0x69, 0x6f, 0x62, 0x6a, 0x65, 0x63, 0x74,
	0x0a, 0x61, 0x72, 0x72, 0x61, 0x79, 0x5f, 0x64, 0x61, 0x74, 0x61, // "array_data"
	0x00, 0x01,

	// function section: 3 functions
	0x03, 0x04, 0x03, 0x02, 0x00, 0x00,

	// memory section: 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section
	0x07, 0x2a, 0x04,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, // "memory"
	0x09, 0x61, 0x72, 0x72, 0x61, 0x79, 0x5f, 0x6c, 0x65, 0x6e, 0x00, 0x03, // "array_len"
	0x0a, 0x61, 0x72, 0x72, 0x61, 0x79, 0x5f, 0x73, 0x65, 0x74, 0x30, 0x00, 0x04, // "array_set0"
	0x04, 0x64, 0x72, 0x6f, 0x70, 0x00, 0x05, // "drop"

	// code section
	0x0a, 0x45, 0x03,
	// array_len
	0x0b, 0x00,
	0x20, 0x00, 0x28, 0x02, 0x0c, 0x28, 0x02, 0x04, 0xad,
	0x0b,
	// array_set0
	0x30, 0x01, 0x02, 0x7f,
	0x20, 0x00, 0x10, 0x02, 0x21, 0x01, // p = data(o)
	0x20, 0x01, 0x20, 0x00, 0x10, 0x01, 0x6a, 0x21, 0x02, // end = p + len(o)
	0x02, 0x40, 0x03, 0x40,
	0x20, 0x01, 0x20, 0x02, 0x4f, 0x0d, 0x01, // br_if p >= end
	0x20, 0x01, 0x41, 0x30, 0x3a, 0x00, 0x00, // *p = '0'
	0x20, 0x01, 0x41, 0x01, 0x6a, 0x21, 0x01, // p++
	0x0c, 0x00,
	0x0b, 0x0b,
	0x0b,
	// drop
	0x06, 0x00,
	0x20, 0x00, 0x10, 0x00,
	0x0b,
}

func newTestInstance(t *testing.T) (*Runtime, *Instance) {
	t.Helper()
	ctx := context.Background()

	rt, err := NewRuntime(ctx, &Config{MemoryLimitPages: 16})
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	inst, err := rt.Instantiate(ctx, objectWASM)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return rt, inst
}

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	_, inst := newTestInstance(t)
	return inst.Memory()
}

func expectKind(t *testing.T, err error, kind errors.Kind) *errors.Error {
	t.Helper()
	e, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected *errors.Error of kind %s, got %T: %v", kind, err, err)
	}
	if e.Kind != kind {
		t.Fatalf("error kind = %s, want %s (%v)", e.Kind, kind, e)
	}
	return e
}
