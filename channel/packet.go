package channel

import "fmt"

// Packet is a channel number and value packed into one word.
type Packet uint32

// Sentinel is returned by packet_read when no packet is pending.
const Sentinel Packet = 0

// Encode packs channel and value. Only the low 16 bits of value are kept.
func Encode(channel, value uint32) Packet {
	return Packet(channel<<16 | value&0xFFFF)
}

// Decode splits a packet into channel and value.
func Decode(p Packet) (channel, value uint32) {
	return p.Channel(), p.Value()
}

func (p Packet) Channel() uint32 {
	return uint32(p) >> 16
}

func (p Packet) Value() uint32 {
	return uint32(p) & 0xFFFF
}

// IsSentinel reports whether p ends a drain.
func (p Packet) IsSentinel() bool {
	return p == Sentinel
}

func (p Packet) String() string {
	return fmt.Sprintf("%03o:%05o", p.Channel(), p.Value())
}
