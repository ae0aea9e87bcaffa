package memory

import (
	"github.com/tetratelabs/wazero/api"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
)

// Wrap adapts a wazero memory to agcbridge.Memory.
func Wrap(mem api.Memory) agcbridge.Memory {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to the bridge Memory interface.
type Wrapper struct {
	Mem api.Memory
}

// Read returns a view of length bytes at offset. The slice aliases guest
// memory and is only valid until the next call into the module.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, offset, length, m.Mem.Size())
	}
	return data, nil
}

func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, uint32(len(data)), m.Mem.Size())
	}
	return nil
}

func (m *Wrapper) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, offset, 1, m.Mem.Size())
	}
	return v, nil
}

func (m *Wrapper) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Mem.ReadUint16Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, offset, 2, m.Mem.Size())
	}
	return v, nil
}

func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, offset, 4, m.Mem.Size())
	}
	return v, nil
}

func (m *Wrapper) WriteU16(offset uint32, value uint16) error {
	if !m.Mem.WriteUint16Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, 2, m.Mem.Size())
	}
	return nil
}

func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, 4, m.Mem.Size())
	}
	return nil
}

func (m *Wrapper) Size() uint32 {
	if m.Mem == nil {
		return 0
	}
	return m.Mem.Size()
}

var _ agcbridge.Memory = (*Wrapper)(nil)
