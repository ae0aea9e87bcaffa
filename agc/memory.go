package agc

import (
	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
)

// lockedMemory serializes every access to the core's memory with the VM
// lock, so reads never observe a cpu_step in progress.
type lockedMemory struct {
	vm  *VM
	mem agcbridge.Memory
}

var _ agcbridge.Memory = lockedMemory{}

func (m lockedMemory) lock() error {
	m.vm.mu.Lock()
	if m.vm.closed {
		m.vm.mu.Unlock()
		return errors.NotInitialized(errors.PhaseRuntime, "vm (closed)")
	}
	return nil
}

func (m lockedMemory) Read(offset, length uint32) ([]byte, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.vm.mu.Unlock()
	return m.mem.Read(offset, length)
}

func (m lockedMemory) Write(offset uint32, data []byte) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.vm.mu.Unlock()
	return m.mem.Write(offset, data)
}

func (m lockedMemory) ReadU8(offset uint32) (uint8, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.vm.mu.Unlock()
	return m.mem.ReadU8(offset)
}

func (m lockedMemory) ReadU16(offset uint32) (uint16, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.vm.mu.Unlock()
	return m.mem.ReadU16(offset)
}

func (m lockedMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.vm.mu.Unlock()
	return m.mem.ReadU32(offset)
}

func (m lockedMemory) WriteU16(offset uint32, value uint16) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.vm.mu.Unlock()
	return m.mem.WriteU16(offset, value)
}

func (m lockedMemory) WriteU32(offset uint32, value uint32) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.vm.mu.Unlock()
	return m.mem.WriteU32(offset, value)
}

// Size is 0 once the VM is closed.
func (m lockedMemory) Size() uint32 {
	if err := m.lock(); err != nil {
		return 0
	}
	defer m.vm.mu.Unlock()
	return m.mem.Size()
}
