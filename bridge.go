package agcbridge

import "context"

// Memory is a bounds-checked view of the linear memory shared with the
// emulator module. Offsets are validated on every access; no raw slice is
// retained across calls because the memory may grow.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	Size() uint32
}

// Allocator allocates memory through the module's malloc/free exports.
type Allocator interface {
	Malloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32) error
}

// Core is the capability of a live emulator instance: the named entry
// points of the module, typed, and the memory they point into.
type Core interface {
	Allocator

	// Version returns the pointer to the NUL-terminated identification
	// string. ok is false when the module has no version export.
	Version(ctx context.Context) (ptr uint32, ok bool, err error)
	PacketWrite(ctx context.Context, channel, value uint32) error
	PacketRead(ctx context.Context) (uint32, error)
	CPUStep(ctx context.Context, steps uint32) error
	CPUReset(ctx context.Context) error
	ErasablePtr(ctx context.Context) (uint32, error)
	SetFixed(ctx context.Context, ptr uint32) error

	// Call invokes an arbitrary export with raw wasm values.
	Call(ctx context.Context, name string, params ...uint64) ([]uint64, error)
	Memory() Memory
	Close(ctx context.Context) error
}
