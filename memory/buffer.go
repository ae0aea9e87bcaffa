package memory

import (
	"context"
	"encoding/binary"
	"sync"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
)

// Buffer is a detached arena: a byte slice that implements both Memory and
// Allocator. Allocation is a bump pointer aligned to 8; Free only counts.
// Offset 0 is never handed out so a zero pointer stays distinguishable.
type Buffer struct {
	// FailAfter makes the n+1th Malloc fail when positive.
	FailAfter int

	data   []byte
	next   uint32
	allocs int
	frees  int
	live   map[uint32]uint32
	mu     sync.Mutex
}

// NewBuffer returns a zeroed arena of size bytes.
func NewBuffer(size uint32) *Buffer {
	return &Buffer{
		data: make([]byte, size),
		next: 8,
		live: make(map[uint32]uint32),
	}
}

// Bytes returns the backing slice.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) check(offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(b.data)) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, length, uint32(len(b.data)))
	}
	return nil
}

func (b *Buffer) Read(offset, length uint32) ([]byte, error) {
	if err := b.check(offset, length); err != nil {
		return nil, err
	}
	return b.data[offset : offset+length : offset+length], nil
}

func (b *Buffer) Write(offset uint32, data []byte) error {
	if err := b.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *Buffer) ReadU8(offset uint32) (uint8, error) {
	if err := b.check(offset, 1); err != nil {
		return 0, err
	}
	return b.data[offset], nil
}

func (b *Buffer) ReadU16(offset uint32) (uint16, error) {
	if err := b.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[offset:]), nil
}

func (b *Buffer) ReadU32(offset uint32) (uint32, error) {
	if err := b.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[offset:]), nil
}

func (b *Buffer) WriteU16(offset uint32, value uint16) error {
	if err := b.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b.data[offset:], value)
	return nil
}

func (b *Buffer) WriteU32(offset uint32, value uint32) error {
	if err := b.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.data[offset:], value)
	return nil
}

func (b *Buffer) Size() uint32 {
	return uint32(len(b.data))
}

func (b *Buffer) Malloc(_ context.Context, size uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailAfter > 0 && b.allocs >= b.FailAfter {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, nil)
	}
	aligned := (size + 7) &^ 7
	if aligned == 0 {
		aligned = 8
	}
	if err := b.check(b.next, aligned); err != nil {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, err)
	}
	ptr := b.next
	b.next += aligned
	b.allocs++
	b.live[ptr] = size
	return ptr, nil
}

func (b *Buffer) Free(_ context.Context, ptr uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.live[ptr]; !ok {
		return errors.InvalidInput(errors.PhaseMarshal, "free of unallocated pointer")
	}
	delete(b.live, ptr)
	b.frees++
	return nil
}

// Stats reports allocation and free counts.
func (b *Buffer) Stats() (allocs, frees int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocs, b.frees
}

// Live returns the number of outstanding allocations.
func (b *Buffer) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

var (
	_ agcbridge.Memory    = (*Buffer)(nil)
	_ agcbridge.Allocator = (*Buffer)(nil)
)
