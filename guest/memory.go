package guest

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/ffiobject/errors"
)

// PageSize is the size of one wasm memory page.
const PageSize = 65536

// Memory adapts wazero api.Memory to bounds-checked little-endian access with
// structured errors.
type Memory struct {
	mem api.Memory
}

// WrapMemory wraps a guest memory. It returns nil for a nil memory.
func WrapMemory(mem api.Memory) *Memory {
	if mem == nil {
		return nil
	}
	return &Memory{mem: mem}
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Grow adds pages to the memory and returns the previous page count.
func (m *Memory) Grow(pages uint32) (uint32, bool) {
	return m.mem.Grow(pages)
}

func (m *Memory) outOfBounds(offset uint64) error {
	return errors.OutOfBounds(errors.PhaseAccess, nil, offset, uint64(m.mem.Size()))
}

// Read returns a view of length bytes at offset. The view aliases guest
// memory and is invalidated by Grow.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.outOfBounds(uint64(offset) + uint64(length))
	}
	return data, nil
}

// Write copies data into memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.outOfBounds(uint64(offset) + uint64(len(data)))
	}
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.outOfBounds(uint64(offset) + 4)
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, m.outOfBounds(uint64(offset) + 8)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return m.outOfBounds(uint64(offset) + 4)
	}
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return m.outOfBounds(uint64(offset) + 8)
	}
	return nil
}
