// Package snapshot captures and serializes the observable state of a VM:
// erasable memory, channel table, lamps and step count.
//
// Snapshots are encoded as canonical CBOR so equal states encode to equal
// bytes and can be compared or hashed directly.
package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/agc-bridge/errors"
	"github.com/wippyai/agc-bridge/memory"
)

// Snapshot is the state of one VM at one instant.
type Snapshot struct {
	Channels   map[uint32]uint32 `cbor:"5,keyasint,omitempty"`
	Version    string            `cbor:"1,keyasint"`
	Erasable   []uint16          `cbor:"6,keyasint"`
	TakenAt    int64             `cbor:"2,keyasint"` // unix nanoseconds
	Steps      uint64            `cbor:"3,keyasint"`
	Indicators uint32            `cbor:"4,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Encode serializes s to canonical CBOR.
func Encode(s *Snapshot) ([]byte, error) {
	if len(s.Erasable) != memory.ErasableWords {
		return nil, errors.InvalidInput(errors.PhaseLoad,
			fmt.Sprintf("snapshot has %d erasable words, want %d", len(s.Erasable), memory.ErasableWords))
	}
	return encMode.Marshal(s)
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, errors.Load("decode snapshot", err)
	}
	if len(s.Erasable) != memory.ErasableWords {
		return nil, errors.Load(fmt.Sprintf("snapshot has %d erasable words", len(s.Erasable)), nil)
	}
	return &s, nil
}

// Word returns erasable word addr, or 0 outside the memory.
func (s *Snapshot) Word(addr int) uint16 {
	if addr < 0 || addr >= len(s.Erasable) {
		return 0
	}
	return s.Erasable[addr]
}

// Octal formats word addr as the DSKY-era listings do: five octal digits,
// six for the 16-bit accumulator at address 0.
func (s *Snapshot) Octal(addr int) string {
	width := 5
	if addr == 0 {
		width = 6
	}
	text := fmt.Sprintf("%06o", s.Word(addr))
	return text[len(text)-width:]
}
