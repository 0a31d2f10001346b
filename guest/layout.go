package guest

import (
	"fmt"

	"github.com/wippyai/ffiobject"
)

// Guest object layout, wasm32:
//
//	struct object { uint64 kind; uint32 release; uint32 payload; }
//	struct array  { uint32 data; uint32 len; }
//
// Object arrays store their elements as consecutive objects.
const (
	ObjectSize  = 16
	ObjectAlign = 8

	OffsetKind    = 0
	OffsetRelease = 8
	OffsetPayload = 12

	ArrayHeaderSize  = 8
	ArrayHeaderAlign = 4
	OffsetArrayData  = 0
	OffsetArrayLen   = 4

	// MaxDepth bounds object array nesting when walking guest memory.
	MaxDepth = 64
)

// ReleaseID names the deallocator of a guest object. It is the guest analogue
// of a function pointer and is compared by identity only.
type ReleaseID uint32

const (
	// ReleaseNone marks a borrowed or empty object.
	ReleaseNone ReleaseID = iota
	ReleaseDataArray
	ReleaseObjectArray
	ReleaseHostBox
)

// Foreign reports whether the id belongs to an allocator other than the
// host's.
func (id ReleaseID) Foreign() bool {
	return id > ReleaseHostBox
}

func (id ReleaseID) String() string {
	switch id {
	case ReleaseNone:
		return "none"
	case ReleaseDataArray:
		return "host:data-array"
	case ReleaseObjectArray:
		return "host:object-array"
	case ReleaseHostBox:
		return "host:box"
	}
	return fmt.Sprintf("foreign(%d)", uint32(id))
}

// releaseFor returns the host release id used for a kind, or ReleaseNone when
// the host never allocates that kind.
func releaseFor(kind ffiobject.Kind) ReleaseID {
	switch kind {
	case ffiobject.KindDataArray:
		return ReleaseDataArray
	case ffiobject.KindObjectArray:
		return ReleaseObjectArray
	case ffiobject.KindBoxedValue:
		return ReleaseHostBox
	}
	return ReleaseNone
}

type header struct {
	Kind    ffiobject.Kind
	Release ReleaseID
	Payload uint32
}

type arrayHeader struct {
	Data uint32
	Len  uint32
}

func readHeader(m *Memory, ptr uint32) (header, error) {
	kind, err := m.ReadU64(ptr + OffsetKind)
	if err != nil {
		return header{}, err
	}
	release, err := m.ReadU32(ptr + OffsetRelease)
	if err != nil {
		return header{}, err
	}
	payload, err := m.ReadU32(ptr + OffsetPayload)
	if err != nil {
		return header{}, err
	}
	return header{Kind: ffiobject.Kind(kind), Release: ReleaseID(release), Payload: payload}, nil
}

func writeHeader(m *Memory, ptr uint32, h header) error {
	if err := m.WriteU64(ptr+OffsetKind, uint64(h.Kind)); err != nil {
		return err
	}
	if err := m.WriteU32(ptr+OffsetRelease, uint32(h.Release)); err != nil {
		return err
	}
	return m.WriteU32(ptr+OffsetPayload, h.Payload)
}

func readArrayHeader(m *Memory, ptr uint32) (arrayHeader, error) {
	data, err := m.ReadU32(ptr + OffsetArrayData)
	if err != nil {
		return arrayHeader{}, err
	}
	n, err := m.ReadU32(ptr + OffsetArrayLen)
	if err != nil {
		return arrayHeader{}, err
	}
	return arrayHeader{Data: data, Len: n}, nil
}

func writeArrayHeader(m *Memory, ptr uint32, h arrayHeader) error {
	if err := m.WriteU32(ptr+OffsetArrayData, h.Data); err != nil {
		return err
	}
	return m.WriteU32(ptr+OffsetArrayLen, h.Len)
}
