package ffiobject

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/wippyai/ffiobject/errors"
)

// fillZeroDigits writes '0' into every element using only the shared header
// layout, the way code on the far side of the boundary would.
func fillZeroDigits(o *Object) int {
	h := (*ArrayHeader)(o.Payload)
	data := unsafe.Slice((*byte)(h.Data), h.Len)
	for i := range data {
		data[i] = '0'
	}
	return h.Len
}

func TestDataArray_RoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", []byte{}},
		{"text", []byte("Test")},
		{"all bytes", all},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := append([]byte(nil), tt.in...)
			arr := FromSlice(tt.in)

			if arr.Object().Kind != KindDataArray {
				t.Fatalf("kind = %v, want data-array", arr.Object().Kind)
			}
			if arr.Len() != len(want) {
				t.Fatalf("Len() = %d, want %d", arr.Len(), len(want))
			}
			if !bytes.Equal(arr.AsSlice(), want) && len(want) > 0 {
				t.Fatalf("AsSlice() = %v, want %v", arr.AsSlice(), want)
			}

			got, ok := arr.MoveIntoSlice()
			if !ok {
				t.Fatal("MoveIntoSlice rejected an array this package allocated")
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("MoveIntoSlice() = %v, want %v", got, want)
			}
			if !arr.Object().IsEmpty() {
				t.Fatal("object should be empty after MoveIntoSlice")
			}
			arr.Release()
		})
	}
}

func TestDataArray_EndToEnd(t *testing.T) {
	arr := FromSlice([]byte("Test"))
	obj := arr.IntoObject()

	if n := fillZeroDigits(&obj); n != 4 {
		t.Fatalf("far side saw %d elements, want 4", n)
	}

	view, ok := ArrayFrom[byte](&obj)
	if !ok {
		t.Fatal("ArrayFrom rejected a data array")
	}
	if got := string(view.AsSlice()); got != "0000" {
		t.Fatalf("AsSlice() = %q, want %q", got, "0000")
	}

	obj.Release()
	obj.Release()

	e := mustViolate(t, errors.KindEmpty, func() { view.AsSlice() })
	if e.Detail != "object is empty" {
		t.Errorf("Detail = %q", e.Detail)
	}
}

func TestDataArray_Mutable(t *testing.T) {
	arr := FromSlice([]byte{1, 2, 3})
	defer arr.Release()

	s := arr.AsMutableSlice()
	s[1] = 9

	if got := arr.AsSlice(); !bytes.Equal(got, []byte{1, 9, 3}) {
		t.Fatalf("AsSlice() = %v", got)
	}
	if cap(arr.AsSlice()) != 3 {
		t.Fatal("AsSlice must not expose spare capacity")
	}
}

func TestDataArray_Pooled(t *testing.T) {
	baseline := pooledOut.Load()

	arr := NewDataArray(16)
	if pooledOut.Load() != baseline+1 {
		t.Fatalf("pooledOut = %d, want %d", pooledOut.Load(), baseline+1)
	}
	for _, b := range arr.AsSlice() {
		if b != 0 {
			t.Fatal("pooled buffer was not cleared")
		}
	}
	copy(arr.AsMutableSlice(), "recycled")

	arr.Release()
	arr.Release()
	if pooledOut.Load() != baseline {
		t.Fatalf("pooledOut after release = %d, want %d", pooledOut.Load(), baseline)
	}

	moved := NewDataArray(4)
	if _, ok := moved.MoveIntoSlice(); !ok {
		t.Fatal("MoveIntoSlice rejected pooled array")
	}
	moved.Release()
	if pooledOut.Load() != baseline {
		t.Fatalf("pooledOut after move = %d, want %d", pooledOut.Load(), baseline)
	}
}

func TestDataArray_ForeignAllocator(t *testing.T) {
	fa := newForeignAllocator()
	obj := fa.bytes([]byte("abc"))

	arr, ok := ArrayFrom[byte](&obj)
	if !ok {
		t.Fatal("ArrayFrom should accept any data array")
	}
	if got := string(arr.AsSlice()); got != "abc" {
		t.Fatalf("AsSlice() = %q, want %q", got, "abc")
	}

	if _, ok := arr.MoveIntoSlice(); ok {
		t.Fatal("MoveIntoSlice must reject a foreign payload")
	}
	if obj.Dealloc != fa.dealloc || obj.Payload == nil {
		t.Fatal("rejected object must be untouched")
	}

	obj.Release()
	obj.Release()
	if fa.freed != 1 {
		t.Fatalf("foreign deallocator ran %d times, want 1", fa.freed)
	}
}

func TestArray_Violations(t *testing.T) {
	t.Run("kind mismatch", func(t *testing.T) {
		arr := FromSlice([]byte{1})
		arr.Object().Kind = KindBoxedValue
		e := mustViolate(t, errors.KindKindMismatch, func() { arr.AsSlice() })
		if e.Detail != "invalid object kind" {
			t.Errorf("Detail = %q", e.Detail)
		}
		arr.Object().Kind = KindDataArray
		arr.Release()
	})

	t.Run("wrong element type", func(t *testing.T) {
		obj := FromSlice([]byte{1}).IntoObject()
		defer obj.Release()
		if _, ok := ArrayFrom[Object](&obj); ok {
			t.Fatal("ArrayFrom[Object] accepted a data array")
		}
		if obj.Payload == nil {
			t.Fatal("rejected object must be untouched")
		}
	})

	t.Run("nil view", func(t *testing.T) {
		var arr DataArray
		mustViolate(t, errors.KindNilPointer, func() { arr.Len() })
		if _, ok := arr.MoveIntoSlice(); ok {
			t.Fatal("MoveIntoSlice on a nil view should fail")
		}
	})
}

func TestObjectArray_ReleasesChildren(t *testing.T) {
	var freed [3]int
	children := make([]Object, len(freed))
	for i := range children {
		children[i] = countedObject(KindOpaque, &freed[i])
	}

	arr := FromSlice(children)
	if arr.Object().Kind != KindObjectArray {
		t.Fatalf("kind = %v, want object-array", arr.Object().Kind)
	}
	if arr.Len() != 3 {
		t.Fatalf("Len() = %d", arr.Len())
	}

	arr.Release()
	arr.Release()

	for i, n := range freed {
		if n != 1 {
			t.Errorf("child %d released %d times, want 1", i, n)
		}
	}
}

func TestObjectArray_MoveKeepsChildrenOwned(t *testing.T) {
	var freed int
	inner := FromSlice([]byte("inner")).IntoObject()
	arr := FromSlice([]Object{inner, countedObject(KindOpaque, &freed)})

	got, ok := arr.MoveIntoSlice()
	if !ok {
		t.Fatal("MoveIntoSlice rejected object array")
	}
	arr.Release()
	if freed != 0 {
		t.Fatal("moved children must not be released with the shell")
	}

	view, ok := ArrayFrom[byte](&got[0])
	if !ok || string(view.AsSlice()) != "inner" {
		t.Fatal("nested data array lost")
	}

	for i := range got {
		got[i].Release()
	}
	if freed != 1 {
		t.Fatalf("freed = %d, want 1", freed)
	}
}
