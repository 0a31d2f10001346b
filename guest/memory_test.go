package guest

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/ffiobject/errors"
)

func TestWrapMemory_Nil(t *testing.T) {
	if mem := WrapMemory(nil); mem != nil {
		t.Error("expected nil for nil memory")
	}
}

func TestMemory_ReadWrite(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, memoryWASM)
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}
	defer mod.Close(ctx)

	mem := WrapMemory(mod.ExportedMemory("memory"))
	if mem == nil {
		t.Fatal("expected non-nil wrapped memory")
	}
	if mem.Size() != PageSize {
		t.Fatalf("Size() = %d, want %d", mem.Size(), PageSize)
	}

	data := []byte{1, 2, 3, 4}
	if err := mem.Write(0, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	read, err := mem.Read(0, 4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(read, data) {
		t.Errorf("Read() = %v, want %v", read, data)
	}

	if err := mem.WriteU32(8, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32 failed: %v", err)
	}
	if v, err := mem.ReadU32(8); err != nil || v != 0xdeadbeef {
		t.Errorf("ReadU32() = %x, %v", v, err)
	}

	if err := mem.WriteU64(16, 1<<40|7); err != nil {
		t.Fatalf("WriteU64 failed: %v", err)
	}
	if v, err := mem.ReadU64(16); err != nil || v != 1<<40|7 {
		t.Errorf("ReadU64() = %x, %v", v, err)
	}
}

func TestMemory_OutOfBounds(t *testing.T) {
	mem := newTestMemory(t)
	end := mem.Size()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Read", func() error { _, err := mem.Read(end-2, 4); return err }},
		{"Write", func() error { return mem.Write(end-1, []byte{1, 2}) }},
		{"ReadU32", func() error { _, err := mem.ReadU32(end - 2); return err }},
		{"ReadU64", func() error { _, err := mem.ReadU64(end - 4); return err }},
		{"WriteU32", func() error { return mem.WriteU32(end, 1) }},
		{"WriteU64", func() error { return mem.WriteU64(end-7, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectKind(t, tt.fn(), errors.KindOutOfBounds)
		})
	}
}

func TestMemory_Grow(t *testing.T) {
	mem := newTestMemory(t)

	prev, ok := mem.Grow(1)
	if !ok {
		t.Fatal("Grow failed")
	}
	if prev != 1 {
		t.Errorf("previous pages = %d, want 1", prev)
	}
	if mem.Size() != 2*PageSize {
		t.Errorf("Size() = %d after grow", mem.Size())
	}
}
