package ffiobject

import "fmt"

// Kind identifies the shape of an object's payload.
type Kind uint64

const (
	// KindOpaque marks an object with no typed payload. It is also the
	// fallback kind when no type check is needed.
	KindOpaque Kind = 0x00
	// KindDataArray is an array of bytes.
	KindDataArray Kind = 0x01
	// KindObjectArray is an array of objects.
	KindObjectArray Kind = 0x02
	// KindBoxedValue is a single type-erased value.
	KindBoxedValue Kind = 0x10

	// CustomMask is reserved for kinds defined outside this package.
	CustomMask Kind = 1 << 63
)

// CustomKind returns an embedder-defined kind that cannot collide with the
// built-in kinds.
func CustomKind(id uint64) Kind {
	return Kind(id) | CustomMask
}

// IsCustom reports whether k was defined by an embedder.
func (k Kind) IsCustom() bool {
	return k&CustomMask != 0
}

func (k Kind) String() string {
	switch k {
	case KindOpaque:
		return "opaque"
	case KindDataArray:
		return "data-array"
	case KindObjectArray:
		return "object-array"
	case KindBoxedValue:
		return "boxed-value"
	}
	if k.IsCustom() {
		return fmt.Sprintf("custom(0x%x)", uint64(k&^CustomMask))
	}
	return fmt.Sprintf("kind(0x%x)", uint64(k))
}
