package transcoder

import (
	clipsruntime "github.com/wippyai/clips-runtime"
	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

type Memory = clipsruntime.Memory
type Allocator = clipsruntime.Allocator

// Allocation records a guest buffer to free once a call completes.
type Allocation struct {
	Ptr  uint32
	Size uint32
}

// StoreValues writes a count-prefixed value list into guest memory.
// The caller owns the returned allocation.
func StoreValues(mem Memory, alloc Allocator, vals []engine.Value) (Allocation, error) {
	buf := getBuf()
	defer putBuf(buf)

	*buf = AppendWireList(*buf, vals)
	return store(mem, alloc, *buf)
}

// StoreBytes copies raw bytes (text arguments) into guest memory.
func StoreBytes(mem Memory, alloc Allocator, data []byte) (Allocation, error) {
	return store(mem, alloc, data)
}

func store(mem Memory, alloc Allocator, data []byte) (Allocation, error) {
	if len(data) == 0 {
		return Allocation{}, nil
	}
	size := uint32(len(data))
	ptr, err := alloc.Alloc(size, 8)
	if err != nil {
		return Allocation{}, errors.Wrap(errors.PhaseEncode, errors.KindValue, err, "guest allocation failed")
	}
	if err := mem.Write(ptr, data); err != nil {
		alloc.Free(ptr, size, 8)
		return Allocation{}, errors.Wrap(errors.PhaseEncode, errors.KindValue, err, "guest write failed")
	}
	return Allocation{Ptr: ptr, Size: size}, nil
}

// Free releases the allocation. Zero allocations are ignored.
func (a Allocation) Free(alloc Allocator) {
	if a.Ptr != 0 {
		alloc.Free(a.Ptr, a.Size, 8)
	}
}

// LoadValue reads one wire value from guest memory.
func LoadValue(mem Memory, ptr, size uint32) (engine.Value, error) {
	data, err := mem.Read(ptr, size)
	if err != nil {
		return engine.Value{}, errors.Wrap(errors.PhaseDecode, errors.KindValue, err, "guest read failed")
	}
	v, _, err := ReadWire(data)
	return v, err
}

// LoadValues reads a count-prefixed value list from guest memory.
func LoadValues(mem Memory, ptr, size uint32) ([]engine.Value, error) {
	data, err := mem.Read(ptr, size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindValue, err, "guest read failed")
	}
	vals, _, err := ReadWireList(data)
	return vals, err
}
