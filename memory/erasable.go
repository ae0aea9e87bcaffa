package memory

import (
	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
)

// ErasableWords is the size of AGC erasable memory in 16-bit words.
const ErasableWords = 2048

// Erasable is a read-only projection of the core's erasable memory. It
// keeps only the base offset; each read is validated against the memory
// as it is now.
type Erasable struct {
	mem  agcbridge.Memory
	base uint32
}

// NewErasable returns the view of ErasableWords words starting at base.
func NewErasable(mem agcbridge.Memory, base uint32) *Erasable {
	return &Erasable{mem: mem, base: base}
}

// Base returns the guest offset of word 0.
func (e *Erasable) Base() uint32 {
	return e.base
}

// Len returns the number of words in the view.
func (e *Erasable) Len() int {
	return ErasableWords
}

// Word reads word addr (0 to 2047).
func (e *Erasable) Word(addr int) (uint16, error) {
	if addr < 0 || addr >= ErasableWords {
		return 0, errOutOfView(addr)
	}
	return e.mem.ReadU16(e.base + uint32(addr)*2)
}

// Words copies the whole view out of guest memory.
func (e *Erasable) Words() ([]uint16, error) {
	raw, err := e.mem.Read(e.base, ErasableWords*2)
	if err != nil {
		return nil, err
	}
	words := make([]uint16, ErasableWords)
	for i := range words {
		words[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return words, nil
}

func errOutOfView(addr int) error {
	return errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
		Detail("erasable address %d outside 0..%d", addr, ErasableWords-1).
		Value(addr).
		Build()
}
