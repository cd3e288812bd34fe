package clipsruntime

// MemoryReader reads the linear memory of a WebAssembly-hosted engine.
// Offsets are guest addresses; multi-byte values are little endian.
type MemoryReader interface {
	Read(offset uint32, length uint32) ([]byte, error)
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
}

// MemoryWriter writes the linear memory of a WebAssembly-hosted engine.
type MemoryWriter interface {
	Write(offset uint32, data []byte) error
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// Memory is guest memory the value codec stages wire lists in.
type Memory interface {
	MemoryReader
	MemoryWriter
}

// MemorySizer reports the current size of guest memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator hands out guest buffers. Buffers the host allocates for a
// dispatch are freed by the host; buffers returned from a callback
// belong to the guest.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
