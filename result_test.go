package ffiobject

import (
	stderrors "errors"
	"testing"
	"unsafe"

	"github.com/wippyai/ffiobject/errors"
)

func TestResult_Ok(t *testing.T) {
	r := Ok[int, string](5)
	r.intoErr = func(*unsafe.Pointer) string {
		t.Fatal("intoErr called on an ok result")
		return ""
	}

	if !r.IsOk() {
		t.Fatal("IsOk() = false")
	}
	v, _, ok := r.Resolve()
	if !ok || v != 5 {
		t.Fatalf("Resolve() = %v, %v", v, ok)
	}
	r.Release()
}

func TestResult_Err(t *testing.T) {
	r := Err[int, string]("x")
	r.intoOk = func(*unsafe.Pointer) int {
		t.Fatal("intoOk called on an err result")
		return 0
	}

	if r.IsOk() {
		t.Fatal("IsOk() = true")
	}
	_, e, ok := r.Resolve()
	if ok || e != "x" {
		t.Fatalf("Resolve() = %q, %v", e, ok)
	}
	r.Release()
}

func TestResult_Null(t *testing.T) {
	r := Ok[Null, []byte](Null{})
	if _, _, ok := r.Resolve(); !ok {
		t.Fatal("expected ok")
	}
}

func TestResult_FromPair(t *testing.T) {
	boom := stderrors.New("boom")

	r := FromPair(7, nil)
	if v, _, ok := r.Resolve(); !ok || v != 7 {
		t.Fatalf("FromPair ok = %v, %v", v, ok)
	}

	r = FromPair(0, boom)
	if _, e, ok := r.Resolve(); ok || e != boom {
		t.Fatalf("FromPair err = %v, %v", e, ok)
	}
}

func TestResult_Map(t *testing.T) {
	ok := Ok[int, string](2)
	doubled := MapOk(&ok, func(v int) int { return v * 2 })
	if v, _, isOk := doubled.Resolve(); !isOk || v != 4 {
		t.Fatalf("MapOk = %v, %v", v, isOk)
	}

	failed := Err[int, string]("bad")
	wrapped := MapErr(&failed, func(e string) error { return stderrors.New("wrapped: " + e) })
	if _, e, isOk := wrapped.Resolve(); isOk || e.Error() != "wrapped: bad" {
		t.Fatalf("MapErr = %v, %v", e, isOk)
	}

	skipped := Err[int, string]("keep")
	untouched := MapOk(&skipped, func(v int) int {
		t.Fatal("MapOk applied f to an err result")
		return v
	})
	if _, e, _ := untouched.Resolve(); e != "keep" {
		t.Fatalf("MapOk err passthrough = %q", e)
	}
}

func TestResult_InvalidDiscriminant(t *testing.T) {
	r := Ok[int, string](1)
	r.isOk = func(unsafe.Pointer) uint8 { return 2 }

	e := mustViolate(t, errors.KindInvalidDiscriminant, func() { r.Resolve() })
	if e.Phase != errors.PhaseResolve {
		t.Errorf("Phase = %v", e.Phase)
	}
	mustViolate(t, errors.KindInvalidDiscriminant, func() { r.IsOk() })
}

func TestResult_WrongArm(t *testing.T) {
	r := Err[int, string]("x")
	mustViolate(t, errors.KindWrongArm, func() { r.intoOk(&r.object) })
}

func TestResult_ConsumedOnce(t *testing.T) {
	r := Ok[int, string](1)
	r.Resolve()
	mustViolate(t, errors.KindNilPointer, func() { r.Resolve() })

	r.Release()
	r.Release()

	var zero Result[int, string]
	zero.Release()
	mustViolate(t, errors.KindNilPointer, func() { zero.IsOk() })
}

func TestResult_ReleaseUnresolved(t *testing.T) {
	t.Run("releaser value", func(t *testing.T) {
		c := &closer{}
		r := Ok[*closer, error](c)
		r.Release()
		r.Release()
		if c.closed != 1 {
			t.Fatalf("Release ran %d times, want 1", c.closed)
		}
	})

	t.Run("pooled object", func(t *testing.T) {
		baseline := pooledOut.Load()
		r := Ok[Object, error](NewDataArray(4).IntoObject())
		if pooledOut.Load() != baseline+1 {
			t.Fatalf("pooledOut = %d, want %d", pooledOut.Load(), baseline+1)
		}
		r.Release()
		if pooledOut.Load() != baseline {
			t.Fatalf("pooledOut after release = %d, want %d", pooledOut.Load(), baseline)
		}
	})

	t.Run("err arm", func(t *testing.T) {
		var freed int
		r := Err[int, Object](countedObject(KindOpaque, &freed))
		r.Release()
		if freed != 1 {
			t.Fatalf("freed = %d, want 1", freed)
		}
	})

	t.Run("resolved arm is the caller's", func(t *testing.T) {
		c := &closer{}
		r := Ok[*closer, error](c)
		v, _, _ := r.Resolve()
		r.Release()
		if v.closed != 0 {
			t.Fatal("a resolved value must not be released with its result")
		}
	})
}
