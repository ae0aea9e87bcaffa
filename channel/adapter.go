package channel

import (
	"context"

	"go.uber.org/zap"
)

// DefaultMaxDrain bounds the packets read in one Drain.
const DefaultMaxDrain = 65536

// Port is the packet half of the core.
type Port interface {
	PacketWrite(ctx context.Context, channel, value uint32) error
	PacketRead(ctx context.Context) (uint32, error)
}

// Update is one observed channel change.
type Update struct {
	Channel uint32
	Value   uint32
}

// Options configures an Adapter.
type Options struct {
	// OnChannel is called for every changed channel, in read order.
	OnChannel func(channel, value uint32)

	// OnIndicators is called with the composite field after an indicator
	// channel changes.
	OnIndicators func(bits uint32)

	// Masks overrides DefaultMasks.
	Masks Masks

	Logger *zap.Logger

	// MaxDrain overrides DefaultMaxDrain.
	MaxDrain int
}

// Adapter tracks channel state observed through a Port. It is not safe for
// concurrent use; the owning VM serializes access.
type Adapter struct {
	port       Port
	log        *zap.Logger
	onChannel  func(channel, value uint32)
	onLamps    func(bits uint32)
	table      map[uint32]uint32
	masks      Masks
	maxDrain   int
	indicators uint32
}

// NewAdapter creates an adapter over port. It panics if the masks overlap.
func NewAdapter(port Port, opts Options) *Adapter {
	if opts.Masks == nil {
		opts.Masks = DefaultMasks()
	}
	if err := ValidateMasks(opts.Masks); err != nil {
		panic(err)
	}
	if opts.MaxDrain <= 0 {
		opts.MaxDrain = DefaultMaxDrain
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	masks := make(Masks, len(opts.Masks))
	for ch, m := range opts.Masks {
		masks[ch] = m
	}
	return &Adapter{
		port:      port,
		log:       opts.Logger,
		onChannel: opts.OnChannel,
		onLamps:   opts.OnIndicators,
		table:     make(map[uint32]uint32),
		masks:     masks,
		maxDrain:  opts.MaxDrain,
	}
}

// Write sends value to channel. The core only latches one pending value
// per channel: a second write to the same channel before the program has
// stepped may be lost.
func (a *Adapter) Write(ctx context.Context, channel, value uint32) error {
	return a.port.PacketWrite(ctx, channel, value)
}

// Drain reads packets until the sentinel and returns the changes in read
// order. Callbacks fire as each change is applied. A read error stops the
// drain; changes applied before it are returned with the error.
func (a *Adapter) Drain(ctx context.Context) ([]Update, error) {
	var updates []Update
	for n := 0; ; n++ {
		if n >= a.maxDrain {
			a.log.Warn("channel drain stopped at bound; core keeps producing packets",
				zap.Int("max_drain", a.maxDrain))
			return updates, nil
		}

		raw, err := a.port.PacketRead(ctx)
		if err != nil {
			return updates, err
		}
		p := Packet(raw)
		if p.IsSentinel() {
			return updates, nil
		}

		ch, v := p.Channel(), p.Value()
		if prev, seen := a.table[ch]; seen && prev == v {
			continue
		}
		a.table[ch] = v
		updates = append(updates, Update{Channel: ch, Value: v})
		if a.onChannel != nil {
			a.onChannel(ch, v)
		}

		if mask, ok := a.masks[ch]; ok {
			a.indicators = a.indicators&^mask | v&mask
			if a.onLamps != nil {
				a.onLamps(a.indicators)
			}
		}
	}
}

// Value returns the last value seen on channel.
func (a *Adapter) Value(channel uint32) (uint32, bool) {
	v, ok := a.table[channel]
	return v, ok
}

// Channels returns a copy of the channel table.
func (a *Adapter) Channels() map[uint32]uint32 {
	out := make(map[uint32]uint32, len(a.table))
	for ch, v := range a.table {
		out[ch] = v
	}
	return out
}

// Indicators returns the composite lamp field.
func (a *Adapter) Indicators() uint32 {
	return a.indicators
}

// MaskOf returns the indicator mask owned by channel, or 0.
func (a *Adapter) MaskOf(channel uint32) uint32 {
	return a.masks[channel]
}
