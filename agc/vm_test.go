package agc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/errors"
	"github.com/wippyai/agc-bridge/internal/synthagc"
	"github.com/wippyai/agc-bridge/scheduler"
	"github.com/wippyai/agc-bridge/snapshot"
)

type recorder struct {
	updates    []channel.Update
	indicators []uint32
	mu         sync.Mutex
}

func (r *recorder) onChannel(ch, v uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, channel.Update{Channel: ch, Value: v})
}

func (r *recorder) onIndicators(bits uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicators = append(r.indicators, bits)
}

func (r *recorder) Updates() []channel.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]channel.Update(nil), r.updates...)
}

func (r *recorder) Indicators() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.indicators...)
}

func newVM(t *testing.T, cfg Config) (*VM, *recorder) {
	t.Helper()
	ctx := context.Background()
	rec := &recorder{}
	if cfg.Module == nil && cfg.Core == nil {
		cfg.Module = synthagc.Module()
	}
	cfg.OnChannel = rec.onChannel
	cfg.OnIndicators = rec.onIndicators
	vm := New(ctx, cfg)
	require.NoError(t, vm.Ready(ctx))
	t.Cleanup(func() { _ = vm.Close(ctx) })
	return vm, rec
}

func TestVM_InitialWrites(t *testing.T) {
	ctx := context.Background()
	vm, rec := newVM(t, Config{})

	// the synthetic core loops packets back, truncated to 16 bits
	updates, err := vm.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Update{
		{Channel: 0, Value: ProceedBit},
		{Channel: 0, Value: 0x1111},
	}, updates)
	assert.Equal(t, updates, rec.Updates())

	masked, rec := newVM(t, Config{InitialWrites: MaskedInitialWrites()})
	updates, err = masked.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Update{
		{Channel: ProceedChannel | MaskFlag, Value: ProceedBit},
		{Channel: KeypadChannel | MaskFlag, Value: 0b11111},
	}, updates)
	assert.Equal(t, updates, rec.Updates())
}

func TestVM_LoadResetStep(t *testing.T) {
	ctx := context.Background()
	vm, _ := newVM(t, Config{})

	require.NoError(t, vm.LoadProgram(ctx, []byte{0x01, 0x30, 0x00, 0x00}))
	require.NoError(t, vm.Reset(ctx))

	view, err := vm.Erasable(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(synthagc.ErasableBase), view.Base())

	z, err := view.Word(synthagc.AddrZ)
	require.NoError(t, err)
	assert.Equal(t, uint16(synthagc.ResetZ), z)

	require.NoError(t, vm.StepCPU(ctx, 1))
	z, err = view.Word(synthagc.AddrZ)
	require.NoError(t, err)
	assert.NotEqual(t, uint16(synthagc.ResetZ), z)
	assert.Equal(t, uint64(1), vm.Steps())

	again, err := vm.Erasable(ctx)
	require.NoError(t, err)
	assert.Same(t, view, again)
}

func TestVM_LoadProgramFreesImage(t *testing.T) {
	ctx := context.Background()
	vm, _ := newVM(t, Config{})

	require.NoError(t, vm.LoadProgram(ctx, make([]byte, 64)))

	mem := vm.core.Memory()
	allocs, err := mem.ReadU32(synthagc.AllocCountAddr)
	require.NoError(t, err)
	frees, err := mem.ReadU32(synthagc.FreeCountAddr)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), allocs)
	assert.Equal(t, allocs, frees)
}

func TestVM_LoadProgramEmpty(t *testing.T) {
	vm, _ := newVM(t, Config{})

	err := vm.LoadProgram(context.Background(), nil)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
}

func TestVM_Version(t *testing.T) {
	ctx := context.Background()

	vm, _ := newVM(t, Config{})
	v, err := vm.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, synthagc.VersionString, v)

	bare, _ := newVM(t, Config{Module: synthagc.Build(synthagc.Options{OmitExports: []string{"version"}})})
	v, err = bare.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, UnknownVersion, v)
}

func TestVM_WriteChannelChangesOnly(t *testing.T) {
	ctx := context.Background()
	vm, rec := newVM(t, Config{InitialWrites: []channel.Update{}})

	require.NoError(t, vm.WriteChannel(ctx, 0o10, 0o1234))
	updates, err := vm.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Update{{Channel: 0o10, Value: 0o1234}}, updates)

	require.NoError(t, vm.WriteChannel(ctx, 0o10, 0o1234))
	updates, err = vm.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, updates)

	assert.Len(t, rec.Updates(), 1)
	assert.Equal(t, map[uint32]uint32{0o10: 0o1234}, vm.Channels())
}

func TestVM_Keys(t *testing.T) {
	ctx := context.Background()
	vm, _ := newVM(t, Config{InitialWrites: []channel.Update{}})

	require.NoError(t, vm.KeyPress(ctx, KeyNone))
	require.NoError(t, vm.KeyPress(ctx, Key5))
	updates, err := vm.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Update{{Channel: KeypadChannel, Value: uint32(Key5)}}, updates)

	assert.Error(t, vm.KeyPress(ctx, KeyPro))

	require.NoError(t, vm.Press(ctx, KeyPro))
	updates, err = vm.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Update{{Channel: ProceedChannel, Value: ProceedBit}}, updates)

	require.NoError(t, vm.Release(ctx, KeyPro))
	require.NoError(t, vm.Release(ctx, KeyVerb))
	updates, err = vm.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Update{{Channel: ProceedChannel, Value: 0}}, updates)
}

func TestVM_Indicators(t *testing.T) {
	ctx := context.Background()
	vm, rec := newVM(t, Config{InitialWrites: []channel.Update{}})

	// TIME1 = 2 is reported on channel 0o11: COMP ACTY
	require.NoError(t, vm.StepCPU(ctx, 2))
	_, err := vm.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(channel.LampCompActy), vm.Indicators())
	assert.Equal(t, []uint32{channel.LampCompActy}, rec.Indicators())
}

func TestVM_CallWithArgs(t *testing.T) {
	ctx := context.Background()
	vm, _ := newVM(t, Config{})

	results, err := vm.CallWithArgs(ctx, "main", "", []string{"E"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0])

	view, err := vm.Erasable(ctx)
	require.NoError(t, err)
	arg, err := view.Word(synthagc.AddrArg)
	require.NoError(t, err)
	assert.Equal(t, uint16('E'), arg)

	mem := vm.core.Memory()
	allocs, _ := mem.ReadU32(synthagc.AllocCountAddr)
	frees, _ := mem.ReadU32(synthagc.FreeCountAddr)
	assert.Equal(t, uint32(3), allocs)
	assert.Equal(t, allocs, frees)
}

func TestVM_Snapshot(t *testing.T) {
	ctx := context.Background()
	vm, _ := newVM(t, Config{})

	require.NoError(t, vm.Reset(ctx))
	require.NoError(t, vm.StepCPU(ctx, 4))
	_, err := vm.Drain(ctx)
	require.NoError(t, err)

	snap, err := vm.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, synthagc.VersionString, snap.Version)
	assert.Equal(t, uint64(4), snap.Steps)
	assert.Equal(t, uint16(4), snap.Word(synthagc.AddrTIME1))
	assert.Equal(t, "04000", snap.Octal(synthagc.AddrZ))
	assert.Equal(t, uint32(4), snap.Channels[channel.ChanDSKYLamps])

	data, err := snapshot.Encode(snap)
	require.NoError(t, err)
	back, err := snapshot.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap, back)
}

func TestVM_BootstrapErrorPersists(t *testing.T) {
	ctx := context.Background()
	vm := New(ctx, Config{Module: []byte("not wasm")})

	err := vm.Ready(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCompile)
	assert.Equal(t, err, vm.Ready(ctx))

	err = vm.Reset(ctx)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	assert.ErrorIs(t, err, errors.ErrCompile)
	assert.NoError(t, vm.Close(ctx))
}

func TestVM_LinkErrorRejectsReady(t *testing.T) {
	ctx := context.Background()
	vm := New(ctx, Config{Module: synthagc.Build(synthagc.Options{OmitExports: []string{"cpu_step"}})})

	assert.ErrorIs(t, vm.Ready(ctx), errors.ErrLink)
}

func TestVM_NoModule(t *testing.T) {
	ctx := context.Background()
	vm := New(ctx, Config{})

	var e *errors.Error
	require.ErrorAs(t, vm.Ready(ctx), &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
}

func TestVM_NotInitializedBeforeReady(t *testing.T) {
	ctx := context.Background()
	core := newFakeCore()
	core.block = make(chan struct{})
	vm := New(ctx, Config{Core: core})

	assert.ErrorIs(t, vm.Reset(ctx), errors.ErrNotInitialized)
	assert.ErrorIs(t, vm.Start(ctx, 1), errors.ErrNotInitialized)

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, vm.Ready(short), context.DeadlineExceeded)

	close(core.block)
	require.NoError(t, vm.Ready(ctx))
	assert.NoError(t, vm.Reset(ctx))
}

func TestVM_LoadProgramFreesOnFailure(t *testing.T) {
	ctx := context.Background()
	core := newFakeCore()
	core.setFixedErr = errors.Trap("set_fixed", assert.AnError)
	vm, _ := newVM(t, Config{Core: core})

	err := vm.LoadProgram(ctx, []byte{1, 2, 3})
	assert.ErrorIs(t, err, assert.AnError)

	allocs, frees := core.Stats()
	assert.Equal(t, 1, allocs)
	assert.Equal(t, 1, frees)
}

func TestVM_Close(t *testing.T) {
	ctx := context.Background()
	core := newFakeCore()
	vm := New(ctx, Config{Core: core})
	require.NoError(t, vm.Ready(ctx))

	require.NoError(t, vm.Close(ctx))
	require.NoError(t, vm.Close(ctx))
	assert.True(t, core.closed)
	assert.ErrorIs(t, vm.Reset(ctx), errors.ErrNotInitialized)
}

func TestVM_Oscillator(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	ticker := &manualTicker{}
	core := newFakeCore()
	vm, rec := newVM(t, Config{
		Core:          core,
		InitialWrites: []channel.Update{},
		Scheduler:     scheduler.Config{Clock: clock, Ticker: ticker},
	})

	require.NoError(t, vm.Start(ctx, 1))
	assert.True(t, vm.Running())

	clock.Advance(10 * scheduler.CycleDuration)
	require.True(t, ticker.Fire())
	assert.Equal(t, uint64(10), vm.Steps())
	assert.Equal(t, []channel.Update{{Channel: channel.ChanDSKYLamps, Value: 10}}, rec.Updates())
	assert.Equal(t, []uint32{channel.LampCompActy}, rec.Indicators())

	vm.Stop()
	assert.False(t, vm.Running())
	assert.False(t, ticker.Fire())
}

func TestVM_CallbacksMayReenter(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	ticker := &manualTicker{}
	core := newFakeCore()

	var vm *VM
	var seen []uint32
	vm = New(ctx, Config{
		Core:          core,
		InitialWrites: []channel.Update{},
		Scheduler:     scheduler.Config{Clock: clock, Ticker: ticker},
		OnIndicators: func(uint32) {
			seen = append(seen, vm.Indicators())
			vm.Stop()
		},
	})
	require.NoError(t, vm.Ready(ctx))
	defer vm.Close(ctx)

	require.NoError(t, vm.Start(ctx, 1))
	clock.Advance(2 * scheduler.CycleDuration)
	require.True(t, ticker.Fire())

	assert.Equal(t, []uint32{channel.LampCompActy}, seen)
	assert.False(t, vm.Running())
}

func TestVM_StartRejectsBadDivisor(t *testing.T) {
	vm, _ := newVM(t, Config{Core: newFakeCore()})

	assert.Error(t, vm.Start(context.Background(), -1))
	assert.False(t, vm.Running())
}

func TestVM_ErasableReadsWhileRunning(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	ticker := &manualTicker{}
	core := newFakeCore()
	vm, _ := newVM(t, Config{
		Core:          core,
		InitialWrites: []channel.Update{},
		Scheduler:     scheduler.Config{Clock: clock, Ticker: ticker},
	})

	view, err := vm.Erasable(ctx)
	require.NoError(t, err)
	require.NoError(t, vm.Start(ctx, 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			clock.Advance(2 * scheduler.CycleDuration)
			ticker.Fire()
		}
	}()

	var last uint16
	for range 100 {
		w, err := view.Word(fakeTIME1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, w, last)
		last = w
	}
	<-done
	vm.Stop()

	w, err := view.Word(fakeTIME1)
	require.NoError(t, err)
	assert.Equal(t, uint16(vm.Steps()), w)
	assert.NotZero(t, w)

	require.NoError(t, vm.Close(ctx))
	_, err = view.Word(fakeTIME1)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
}
