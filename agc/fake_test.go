package agc

import (
	"context"
	"sync"
	"time"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/errors"
	"github.com/wippyai/agc-bridge/memory"
	"github.com/wippyai/agc-bridge/scheduler"
)

// fakeCore is a Core over a detached Buffer. Written packets are looped
// back to the read side like the synthetic core does.
type fakeCore struct {
	*memory.Buffer
	block       chan struct{}
	setFixedErr error
	writes      []channel.Update
	queue       []uint32
	steps       uint32
	fixedPtr    uint32
	closed      bool
	mu          sync.Mutex
}

var _ agcbridge.Core = (*fakeCore)(nil)

func newFakeCore() *fakeCore {
	return &fakeCore{Buffer: memory.NewBuffer(8192)}
}

func (c *fakeCore) Version(context.Context) (uint32, bool, error) {
	return 0, false, nil
}

func (c *fakeCore) PacketWrite(_ context.Context, ch, value uint32) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, channel.Update{Channel: ch, Value: value})
	c.queue = append(c.queue, uint32(channel.Encode(ch, value)))
	return nil
}

func (c *fakeCore) PacketRead(context.Context) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return 0, nil
	}
	p := c.queue[0]
	c.queue = c.queue[1:]
	return p, nil
}

func (c *fakeCore) CPUStep(_ context.Context, n uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps += n
	c.queue = append(c.queue, uint32(channel.Encode(channel.ChanDSKYLamps, c.steps)))
	return c.Buffer.WriteU16(fakeErasableBase+fakeTIME1*2, uint16(c.steps))
}

func (c *fakeCore) CPUReset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = 0
	return nil
}

const (
	fakeErasableBase = 4096
	fakeTIME1        = 0o25
)

func (c *fakeCore) ErasablePtr(context.Context) (uint32, error) {
	return fakeErasableBase, nil
}

func (c *fakeCore) SetFixed(_ context.Context, ptr uint32) error {
	c.fixedPtr = ptr
	return c.setFixedErr
}

func (c *fakeCore) Call(context.Context, string, ...uint64) ([]uint64, error) {
	return nil, errors.NotFound(errors.PhaseRuntime, "export", "main")
}

func (c *fakeCore) Memory() agcbridge.Memory {
	return c.Buffer
}

func (c *fakeCore) Close(context.Context) error {
	c.closed = true
	return nil
}

func (c *fakeCore) Writes() []channel.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]channel.Update(nil), c.writes...)
}

type manualClock struct {
	now time.Time
	mu  sync.Mutex
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// manualTicker runs the registered task only when fired.
type manualTicker struct {
	fn func()
	mu sync.Mutex
}

type manualTask struct {
	t *manualTicker
}

func (m *manualTicker) Every(_ time.Duration, fn func()) scheduler.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return manualTask{m}
}

func (t manualTask) Stop() {
	t.t.mu.Lock()
	defer t.t.mu.Unlock()
	t.t.fn = nil
}

func (m *manualTicker) Fire() bool {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}
