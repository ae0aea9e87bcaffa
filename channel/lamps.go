package channel

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/wippyai/agc-bridge/errors"
)

// Channels with fixed meaning to the bridge.
const (
	ChanDSKYLamps = 0o11  // COMP ACTY, UPLINK ACTY
	ChanKeypad    = 0o15  // main DSKY keycode input
	ChanProceed   = 0o32  // PRO key, among other discretes
	ChanBlinking  = 0o163 // lamp signals, modulated by the emulator
)

// Lamp bits of the composite indicator field.
const (
	LampCompActy   uint32 = 1 << 1
	LampUplink     uint32 = 1 << 2
	LampTemp       uint32 = 1 << 3
	LampKeyRel     uint32 = 1 << 4
	LampVerbNoun   uint32 = 1 << 5 // VERB/NOUN flash
	LampOperErr    uint32 = 1 << 6
	LampRestart    uint32 = 1 << 7
	LampStandby    uint32 = 1 << 8
	lampChan11Set         = LampCompActy | LampUplink
	lampChan163Set        = LampTemp | LampKeyRel | LampVerbNoun | LampOperErr | LampRestart | LampStandby
)

// Masks maps an indicator channel to the bits it owns.
type Masks map[uint32]uint32

// DefaultMasks returns the DSKY indicator masks.
func DefaultMasks() Masks {
	return Masks{
		ChanDSKYLamps: lampChan11Set,  // 0b110
		ChanBlinking:  lampChan163Set, // 0b111111000
	}
}

// ValidateMasks checks that no two channels own the same bit.
func ValidateMasks(m Masks) error {
	chans := make([]uint32, 0, len(m))
	for ch := range m {
		chans = append(chans, ch)
	}
	sort.Slice(chans, func(i, j int) bool { return chans[i] < chans[j] })

	var seen uint32
	for _, ch := range chans {
		mask := m[ch]
		if overlap := seen & mask; overlap != 0 {
			return errors.InvalidInput(errors.PhaseProtocol,
				fmt.Sprintf("mask of channel %o overlaps bit %d", ch, bits.TrailingZeros32(overlap)))
		}
		seen |= mask
	}
	return nil
}

var lampNames = []struct {
	name string
	bit  uint32
}{
	{"COMP ACTY", LampCompActy},
	{"UPLINK ACTY", LampUplink},
	{"TEMP", LampTemp},
	{"KEY REL", LampKeyRel},
	{"VERB/NOUN", LampVerbNoun},
	{"OPR ERR", LampOperErr},
	{"RESTART", LampRestart},
	{"STBY", LampStandby},
}

// LampNames returns the names of the lamps lit in bits, in panel order.
func LampNames(bits uint32) []string {
	var out []string
	for _, l := range lampNames {
		if bits&l.bit != 0 {
			out = append(out, l.name)
		}
	}
	return out
}

// AllLamps lists every lamp with its bit, in panel order.
func AllLamps() []Lamp {
	out := make([]Lamp, len(lampNames))
	for i, l := range lampNames {
		out[i] = Lamp{Name: l.name, Bit: l.bit}
	}
	return out
}

// Lamp is a named indicator bit.
type Lamp struct {
	Name string
	Bit  uint32
}
