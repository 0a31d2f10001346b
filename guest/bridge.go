package guest

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/ffiobject"
	"github.com/wippyai/ffiobject/errors"
	"github.com/wippyai/ffiobject/resource"
)

// Bridge moves objects between Go and one guest's linear memory.
//
// Lower copies a Go object into arena memory and hands the guest a pointer to
// a 16-byte object. Lift moves such an object back into a Go object. Boxed
// values never enter guest memory: they are parked in a resource table and
// the guest sees the handle.
//
// Every failure caused by guest memory contents is returned as an error; the
// host never panics on guest data. Bridge is not safe for concurrent use.
type Bridge struct {
	mem    *Memory
	arena  *Arena
	table  *resource.Table
	logger *zap.Logger
	live   atomic.Int64
}

// NewBridge creates a bridge over mem, allocating from arena and parking boxed
// values in table.
func NewBridge(mem *Memory, arena *Arena, table *resource.Table, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = Logger()
	}
	b := &Bridge{mem: mem, arena: arena, table: table, logger: logger}
	table.Subscribe(b)
	return b
}

// OnResourceEvent tracks boxes parked for the guest.
func (b *Bridge) OnResourceEvent(e resource.Event) {
	switch e.Type {
	case resource.EventCreated:
		b.live.Add(1)
	case resource.EventReleased, resource.EventTaken:
		b.live.Add(-1)
	}
}

// Live returns the number of boxed values currently held for the guest.
func (b *Bridge) Live() int {
	return int(b.live.Load())
}

// Arena returns the allocator backing lowered objects.
func (b *Bridge) Arena() *Arena {
	return b.arena
}

// lowering holds the state of one Lower call. Nothing observable changes on
// the Go side until commit.
type lowering struct {
	b       *Bridge
	allocs  *AllocationList
	handles []resource.Handle
	commits []func()
}

func (lw *lowering) alloc(size, align uint32) (uint32, error) {
	ptr, err := lw.b.arena.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	lw.allocs.Add(ptr, size, align)
	return ptr, nil
}

// Lower moves obj into guest memory and returns the address of the guest
// object. On success obj is left empty. On failure obj is untouched and no
// guest memory is leaked.
func (b *Bridge) Lower(obj *ffiobject.Object) (uint32, error) {
	if obj == nil {
		return 0, errors.NilPointer(errors.PhaseLower, "object")
	}

	lw := &lowering{b: b, allocs: NewAllocationList()}
	defer lw.allocs.Release()

	ptr, err := lw.alloc(ObjectSize, ObjectAlign)
	if err == nil {
		err = lw.encode(obj, ptr, nil, 0)
	}
	if err != nil {
		lw.rollback()
		b.logger.Debug("lower failed", zap.Stringer("kind", obj.Kind), zap.Error(err))
		return 0, err
	}

	for _, commit := range lw.commits {
		commit()
	}
	obj.Release()

	if ce := b.logger.Check(zap.DebugLevel, "lowered object"); ce != nil {
		ce.Write(zap.Uint32("ptr", ptr), zap.Int("allocations", lw.allocs.Count()))
	}
	return ptr, nil
}

func (lw *lowering) rollback() {
	if failed := lw.allocs.Free(lw.b.arena); failed > 0 {
		lw.b.logger.Warn("lower rollback left blocks allocated", zap.Int("failed", failed))
	}
	// The Go objects still own the boxed values.
	for _, h := range lw.handles {
		lw.b.table.Take(h)
	}
}

func (lw *lowering) encode(obj *ffiobject.Object, at uint32, path []string, depth int) error {
	if depth > MaxDepth {
		return errors.InvalidData(errors.PhaseLower, path, fmt.Sprintf("object nesting exceeds %d", MaxDepth))
	}
	mem := lw.b.mem

	if obj.Payload == nil {
		if obj.Dealloc != nil {
			return errors.InvalidInput(errors.PhaseLower, "deallocator installed over a nil payload")
		}
		return writeHeader(mem, at, header{Kind: obj.Kind})
	}
	if obj.Dealloc == nil {
		return errors.NotOwned(errors.PhaseLower, path, uint64(obj.Kind))
	}

	switch obj.Kind {
	case ffiobject.KindDataArray:
		arr, _ := ffiobject.ArrayFrom[byte](obj)
		data := arr.AsSlice()

		hdr, err := lw.alloc(ArrayHeaderSize, ArrayHeaderAlign)
		if err != nil {
			return err
		}
		dataPtr, err := lw.alloc(uint32(len(data)), 1)
		if err != nil {
			return err
		}
		if err := mem.Write(dataPtr, data); err != nil {
			return err
		}
		if err := writeArrayHeader(mem, hdr, arrayHeader{Data: dataPtr, Len: uint32(len(data))}); err != nil {
			return err
		}
		lw.commits = append(lw.commits, obj.Release)
		return writeHeader(mem, at, header{Kind: obj.Kind, Release: ReleaseDataArray, Payload: hdr})

	case ffiobject.KindObjectArray:
		arr, _ := ffiobject.ArrayFrom[ffiobject.Object](obj)
		elems := arr.AsMutableSlice()
		if uint64(len(elems))*ObjectSize > 1<<31 {
			return errors.InvalidInput(errors.PhaseLower, "object array too large for guest memory")
		}

		hdr, err := lw.alloc(ArrayHeaderSize, ArrayHeaderAlign)
		if err != nil {
			return err
		}
		base, err := lw.alloc(uint32(len(elems))*ObjectSize, ObjectAlign)
		if err != nil {
			return err
		}
		for i := range elems {
			child := append(path[:len(path):len(path)], errors.Index(i))
			if err := lw.encode(&elems[i], base+uint32(i)*ObjectSize, child, depth+1); err != nil {
				return err
			}
		}
		if err := writeArrayHeader(mem, hdr, arrayHeader{Data: base, Len: uint32(len(elems))}); err != nil {
			return err
		}
		// children commit first, so the parent releases empty shells
		lw.commits = append(lw.commits, obj.Release)
		return writeHeader(mem, at, header{Kind: obj.Kind, Release: ReleaseObjectArray, Payload: hdr})

	case ffiobject.KindBoxedValue:
		boxed, _ := ffiobject.BoxedFrom(obj)
		if !boxed.Native() {
			return errors.Foreign(errors.PhaseLower, path, uint64(obj.Kind), boxed.TypeHint())
		}
		h := lw.b.table.Insert(uint64(ffiobject.KindBoxedValue), boxed.AsErased())
		if h == 0 {
			return errors.New(errors.PhaseLower, errors.KindAllocation).
				Path(path...).
				Detail("resource table rejected boxed value").
				Build()
		}
		lw.handles = append(lw.handles, h)
		lw.commits = append(lw.commits, func() {
			// the table owns the value now
			boxed.MoveIntoValue()
		})
		return writeHeader(mem, at, header{Kind: obj.Kind, Release: ReleaseHostBox, Payload: uint32(h)})
	}

	return errors.New(errors.PhaseLower, errors.KindUnsupported).
		Path(path...).
		Object(uint64(obj.Kind)).
		Detail("kind %s cannot cross into guest memory", obj.Kind).
		Build()
}

// walkMode selects what a guest object walk accepts.
type walkMode uint8

const (
	// walkLift requires every reachable object to be host-owned.
	walkLift walkMode = iota
	// walkRelease tolerates borrowed children, which release only clears.
	walkRelease
)

// validator checks a guest object graph without modifying it.
type validator struct {
	b       *Bridge
	mode    walkMode
	blocks  map[uint32]struct{}
	handles map[uint32]struct{}
}

func (b *Bridge) newValidator(mode walkMode) *validator {
	return &validator{
		b:       b,
		mode:    mode,
		blocks:  make(map[uint32]struct{}),
		handles: make(map[uint32]struct{}),
	}
}

// validate checks the graph rooted at ptr. A host-allocated shell counts as
// one of the graph's blocks, so no payload may point back at it.
func (b *Bridge) validate(mode walkMode, phase errors.Phase, ptr uint32) error {
	v := b.newValidator(mode)
	if b.arena.Owns(ptr) {
		v.blocks[ptr] = struct{}{}
	}
	return v.check(phase, ptr, nil, 0)
}

// block checks that ptr starts a live arena block of at least size bytes that
// no other object in the graph references.
func (v *validator) block(phase errors.Phase, path []string, ptr, size uint32) error {
	if size == 0 {
		return nil
	}
	have, ok := v.b.arena.Block(ptr)
	if !ok || have < size {
		return errors.InvalidData(phase, path, fmt.Sprintf("0x%x is not a host block of %d bytes", ptr, size))
	}
	if _, dup := v.blocks[ptr]; dup {
		return errors.InvalidData(phase, path, fmt.Sprintf("block 0x%x referenced twice", ptr))
	}
	v.blocks[ptr] = struct{}{}
	return nil
}

func (v *validator) check(phase errors.Phase, at uint32, path []string, depth int) error {
	if depth > MaxDepth {
		return errors.InvalidData(phase, path, fmt.Sprintf("object nesting exceeds %d", MaxDepth))
	}

	h, err := readHeader(v.b.mem, at)
	if err != nil {
		return err
	}

	if h.Payload == 0 {
		if h.Release != ReleaseNone {
			return errors.InvalidData(phase, path, "release installed over a nil payload")
		}
		return nil
	}
	switch {
	case h.Release == ReleaseNone:
		if v.mode == walkRelease {
			return nil
		}
		return errors.NotOwned(phase, path, uint64(h.Kind))
	case h.Release.Foreign():
		return errors.Foreign(phase, path, uint64(h.Kind), h.Release.String())
	case releaseFor(h.Kind) != h.Release:
		return errors.KindMismatch(phase, path, uint64(kindFor(h.Release)), uint64(h.Kind))
	}

	switch h.Release {
	case ReleaseDataArray:
		if err := v.block(phase, path, h.Payload, ArrayHeaderSize); err != nil {
			return err
		}
		ah, err := readArrayHeader(v.b.mem, h.Payload)
		if err != nil {
			return err
		}
		return v.block(phase, path, ah.Data, ah.Len)

	case ReleaseObjectArray:
		if err := v.block(phase, path, h.Payload, ArrayHeaderSize); err != nil {
			return err
		}
		ah, err := readArrayHeader(v.b.mem, h.Payload)
		if err != nil {
			return err
		}
		if uint64(ah.Len)*ObjectSize > 1<<32 {
			return errors.OutOfBounds(phase, path, uint64(ah.Len)*ObjectSize, uint64(v.b.mem.Size()))
		}
		if err := v.block(phase, path, ah.Data, ah.Len*ObjectSize); err != nil {
			return err
		}
		for i := uint32(0); i < ah.Len; i++ {
			child := append(path[:len(path):len(path)], errors.Index(int(i)))
			if err := v.check(phase, ah.Data+i*ObjectSize, child, depth+1); err != nil {
				return err
			}
		}
		return nil

	case ReleaseHostBox:
		if _, ok := v.b.table.GetKind(resource.Handle(h.Payload), uint64(ffiobject.KindBoxedValue)); !ok {
			return errors.InvalidData(phase, path, fmt.Sprintf("stale box handle %d", h.Payload))
		}
		if _, dup := v.handles[h.Payload]; dup {
			return errors.InvalidData(phase, path, fmt.Sprintf("box handle %d referenced twice", h.Payload))
		}
		v.handles[h.Payload] = struct{}{}
	}
	return nil
}

func kindFor(id ReleaseID) ffiobject.Kind {
	switch id {
	case ReleaseDataArray:
		return ffiobject.KindDataArray
	case ReleaseObjectArray:
		return ffiobject.KindObjectArray
	case ReleaseHostBox:
		return ffiobject.KindBoxedValue
	}
	return ffiobject.KindOpaque
}

// Lift moves the guest object at ptr into a Go object and frees its guest
// storage. The object at ptr is left empty but keeps its kind; the 16 bytes
// at ptr themselves belong to whoever allocated them (see Destroy).
//
// Lift only accepts objects whose release id is the host's. A foreign,
// borrowed or mismatched object is reported as an error and guest memory is
// left untouched.
func (b *Bridge) Lift(ptr uint32) (ffiobject.Object, error) {
	if err := b.validate(walkLift, errors.PhaseLift, ptr); err != nil {
		b.logger.Debug("lift rejected", zap.Uint32("ptr", ptr), zap.Error(err))
		return ffiobject.Object{}, err
	}

	obj, err := b.lift(ptr)
	if err != nil {
		return ffiobject.Object{}, err
	}
	if ce := b.logger.Check(zap.DebugLevel, "lifted object"); ce != nil {
		ce.Write(zap.Uint32("ptr", ptr), zap.Stringer("kind", obj.Kind))
	}
	return obj, nil
}

func (b *Bridge) lift(at uint32) (ffiobject.Object, error) {
	h, err := readHeader(b.mem, at)
	if err != nil {
		return ffiobject.Object{}, err
	}
	if h.Payload == 0 {
		return ffiobject.Object{Kind: h.Kind}, nil
	}

	var obj ffiobject.Object
	switch h.Release {
	case ReleaseDataArray:
		ah, err := readArrayHeader(b.mem, h.Payload)
		if err != nil {
			return obj, err
		}
		data, err := b.mem.Read(ah.Data, ah.Len)
		if err != nil {
			return obj, err
		}
		arr := ffiobject.NewDataArray(int(ah.Len))
		copy(arr.AsMutableSlice(), data)
		obj = arr.IntoObject()
		b.free(ah.Data, ah.Len, 1)
		b.free(h.Payload, ArrayHeaderSize, ArrayHeaderAlign)

	case ReleaseObjectArray:
		ah, err := readArrayHeader(b.mem, h.Payload)
		if err != nil {
			return obj, err
		}
		elems := make([]ffiobject.Object, ah.Len)
		for i := range elems {
			if elems[i], err = b.lift(ah.Data + uint32(i)*ObjectSize); err != nil {
				for j := range elems[:i] {
					elems[j].Release()
				}
				return ffiobject.Object{}, err
			}
		}
		obj = ffiobject.FromSlice(elems).IntoObject()
		b.free(ah.Data, ah.Len*ObjectSize, ObjectAlign)
		b.free(h.Payload, ArrayHeaderSize, ArrayHeaderAlign)

	case ReleaseHostBox:
		v, _ := b.table.Take(resource.Handle(h.Payload))
		obj = ffiobject.FromValue(v).IntoObject()
	}

	if err := writeHeader(b.mem, at, header{Kind: h.Kind}); err != nil {
		obj.Release()
		return ffiobject.Object{}, err
	}
	return obj, nil
}

func (b *Bridge) free(ptr, size, align uint32) {
	if size == 0 {
		return
	}
	if err := b.arena.Free(ptr, size, align); err != nil {
		b.logger.Warn("free guest block", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

// Release frees the payload of the guest object at ptr and leaves it empty.
// Releasing an empty object does nothing, and a borrowed object is only
// cleared, so a second release is always harmless. Objects owned by a
// foreign allocator cannot be released by the host.
func (b *Bridge) Release(ptr uint32) error {
	h, err := readHeader(b.mem, ptr)
	if err != nil {
		return err
	}
	if h.Payload == 0 && h.Release == ReleaseNone {
		return nil
	}

	if err := b.validate(walkRelease, errors.PhaseRelease, ptr); err != nil {
		b.logger.Debug("release rejected", zap.Uint32("ptr", ptr), zap.Error(err))
		return err
	}

	if ce := b.logger.Check(zap.DebugLevel, "release guest object"); ce != nil {
		ce.Write(zap.Uint32("ptr", ptr), zap.Stringer("kind", h.Kind), zap.Stringer("release", h.Release))
	}
	return b.drop(ptr)
}

func (b *Bridge) drop(at uint32) error {
	h, err := readHeader(b.mem, at)
	if err != nil {
		return err
	}

	switch h.Release {
	case ReleaseDataArray:
		ah, err := readArrayHeader(b.mem, h.Payload)
		if err != nil {
			return err
		}
		b.free(ah.Data, ah.Len, 1)
		b.free(h.Payload, ArrayHeaderSize, ArrayHeaderAlign)

	case ReleaseObjectArray:
		ah, err := readArrayHeader(b.mem, h.Payload)
		if err != nil {
			return err
		}
		for i := uint32(0); i < ah.Len; i++ {
			if err := b.drop(ah.Data + i*ObjectSize); err != nil {
				return err
			}
		}
		b.free(ah.Data, ah.Len*ObjectSize, ObjectAlign)
		b.free(h.Payload, ArrayHeaderSize, ArrayHeaderAlign)

	case ReleaseHostBox:
		b.table.Remove(resource.Handle(h.Payload))
	}

	return writeHeader(b.mem, at, header{Kind: h.Kind})
}

// Destroy releases the object at ptr and frees the 16 bytes that Lower
// allocated for it.
func (b *Bridge) Destroy(ptr uint32) error {
	if err := b.Release(ptr); err != nil {
		return err
	}
	if !b.arena.Owns(ptr) {
		return errors.New(errors.PhaseRelease, errors.KindInvalidInput).
			Value(ptr).
			Detail("object 0x%x was not lowered by the host", ptr).
			Build()
	}
	return b.arena.Free(ptr, ObjectSize, ObjectAlign)
}

// Kind returns the kind of the guest object at ptr.
func (b *Bridge) Kind(ptr uint32) (ffiobject.Kind, error) {
	h, err := readHeader(b.mem, ptr)
	if err != nil {
		return 0, err
	}
	return h.Kind, nil
}

// array reads the array header of the guest object at ptr. Any allocator's
// arrays are readable, since the header layout is shared.
func (b *Bridge) array(ptr uint32, kinds ...ffiobject.Kind) (arrayHeader, error) {
	h, err := readHeader(b.mem, ptr)
	if err != nil {
		return arrayHeader{}, err
	}

	match := false
	for _, k := range kinds {
		match = match || h.Kind == k
	}
	if !match {
		return arrayHeader{}, errors.KindMismatch(errors.PhaseAccess, nil, uint64(kinds[0]), uint64(h.Kind))
	}
	if h.Payload == 0 {
		return arrayHeader{}, errors.Empty(errors.PhaseAccess, nil)
	}
	return readArrayHeader(b.mem, h.Payload)
}

// ArrayLen returns the element count of the guest array at ptr.
func (b *Bridge) ArrayLen(ptr uint32) (uint32, error) {
	ah, err := b.array(ptr, ffiobject.KindDataArray, ffiobject.KindObjectArray)
	if err != nil {
		return 0, err
	}
	return ah.Len, nil
}

// ArrayData returns the guest address of the first element of the array at
// ptr.
func (b *Bridge) ArrayData(ptr uint32) (uint32, error) {
	ah, err := b.array(ptr, ffiobject.KindDataArray, ffiobject.KindObjectArray)
	if err != nil {
		return 0, err
	}
	return ah.Data, nil
}

// Bytes returns a copy of the guest data array at ptr.
func (b *Bridge) Bytes(ptr uint32) ([]byte, error) {
	ah, err := b.array(ptr, ffiobject.KindDataArray)
	if err != nil {
		return nil, err
	}
	data, err := b.mem.Read(ah.Data, ah.Len)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}
