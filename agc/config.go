package agc

import (
	"go.uber.org/zap"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/engine"
	"github.com/wippyai/agc-bridge/scheduler"
)

// MaskFlag marks a packet_write as a mask for the channel's next writes.
const MaskFlag = 1 << 8

// Config configures a VM.
type Config struct {
	// Core skips bootstrap and drives an existing core.
	Core agcbridge.Core

	// OnChannel receives every channel change.
	OnChannel func(channel, value uint32)

	// OnIndicators receives the composite lamp field after it changes.
	OnIndicators func(bits uint32)

	// OnError receives the error that stopped oscillation.
	OnError func(error)

	Logger *zap.Logger

	// Imports are extra host imports for the core.
	Imports engine.Imports

	// EnvFuncs are host functions re-exported by the env module.
	EnvFuncs map[string]engine.HostFunc

	// Masks overrides the indicator masks.
	Masks channel.Masks

	// Module is the compiled core.
	Module []byte

	// InitialWrites replaces DefaultInitialWrites when non-nil. Use
	// MaskedInitialWrites to address the input mask channels instead.
	InitialWrites []channel.Update

	Engine    engine.Config
	Scheduler scheduler.Config

	MaxDrain int
}

// DefaultInitialWrites returns the packets written to a freshly booted core.
// The channel operands are ANDed with MaskFlag, so both packets land on
// channel 0, and the keypad value is the hex literal 0x11111. Existing
// cores are built against exactly these packets.
func DefaultInitialWrites() []channel.Update {
	return []channel.Update{
		{Channel: ProceedChannel & MaskFlag, Value: ProceedBit},
		{Channel: KeypadChannel & MaskFlag, Value: 0x11111},
	}
}

// MaskedInitialWrites sets the input masks for the proceed discrete and
// the five keycode bits of the keypad channel.
func MaskedInitialWrites() []channel.Update {
	return []channel.Update{
		{Channel: ProceedChannel | MaskFlag, Value: ProceedBit},
		{Channel: KeypadChannel | MaskFlag, Value: 0b11111},
	}
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.InitialWrites == nil {
		c.InitialWrites = DefaultInitialWrites()
	}
	if c.Engine.Logger == nil {
		c.Engine.Logger = c.Logger.Named("engine")
	}
	if c.Scheduler.Logger == nil {
		c.Scheduler.Logger = c.Logger.Named("scheduler")
	}
	return c
}
