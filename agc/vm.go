package agc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/engine"
	"github.com/wippyai/agc-bridge/errors"
	"github.com/wippyai/agc-bridge/memory"
	"github.com/wippyai/agc-bridge/scheduler"
	"github.com/wippyai/agc-bridge/snapshot"
)

// UnknownVersion is reported by Version when the core has no version export.
const UnknownVersion = "unknown"

// VM is one emulated computer: a core, its channel table and its oscillator.
type VM struct {
	log     *zap.Logger
	ready   chan struct{}
	bootErr error
	sched   *scheduler.Scheduler
	cfg     Config

	// guarded by mu
	engine      *engine.Engine
	core        agcbridge.Core
	adapter     *channel.Adapter
	erasable    *memory.Erasable // reads take mu
	rawErasable *memory.Erasable // for use with mu held
	pending     []event
	dispatching bool
	closed      bool
	mu          sync.Mutex
}

type event struct {
	channel    uint32
	value      uint32
	indicators bool
}

// New creates a VM and starts bootstrapping it on a background goroutine.
// Use Ready to wait for the result.
func New(ctx context.Context, cfg Config) *VM {
	cfg = cfg.withDefaults()
	v := &VM{
		log:   cfg.Logger,
		ready: make(chan struct{}),
		cfg:   cfg,
	}

	schedCfg := cfg.Scheduler
	if schedCfg.Ticker == nil {
		schedCfg.Ticker = scheduler.TimeTicker{}
	}
	schedCfg.Ticker = dispatchTicker{Ticker: schedCfg.Ticker, vm: v}
	schedOnError := schedCfg.OnError
	schedCfg.OnError = func(err error) {
		if schedOnError != nil {
			schedOnError(err)
		}
		if cfg.OnError != nil {
			cfg.OnError(err)
		}
	}
	v.sched = scheduler.New(vmTarget{v}, schedCfg)

	go func() {
		defer close(v.ready)
		if err := v.boot(ctx); err != nil {
			v.log.Error("bootstrap failed", zap.Error(err))
			v.bootErr = err
			return
		}
		v.log.Debug("vm ready")
	}()
	return v
}

func (v *VM) boot(ctx context.Context) error {
	if v.cfg.Masks != nil {
		if err := channel.ValidateMasks(v.cfg.Masks); err != nil {
			return err
		}
	}

	core := v.cfg.Core
	var eng *engine.Engine
	if core == nil {
		if len(v.cfg.Module) == 0 {
			return errors.InvalidInput(errors.PhaseLoad, "no core module")
		}
		var err error
		eng, err = engine.NewEngine(ctx, v.cfg.Engine)
		if err != nil {
			return err
		}
		shared, err := eng.NewSharedMemory(ctx, v.cfg.EnvFuncs)
		if err != nil {
			_ = eng.Close(ctx)
			return err
		}
		inst, err := eng.Instantiate(ctx, v.cfg.Module, shared, v.cfg.Imports)
		if err != nil {
			_ = eng.Close(ctx)
			return err
		}
		core = inst
	}

	adapter := channel.NewAdapter(core, channel.Options{
		OnChannel:    v.queueChannel,
		OnIndicators: v.queueIndicators,
		Masks:        v.cfg.Masks,
		Logger:       v.log.Named("channel"),
		MaxDrain:     v.cfg.MaxDrain,
	})
	for _, w := range v.cfg.InitialWrites {
		if err := adapter.Write(ctx, w.Channel, w.Value); err != nil {
			if eng != nil {
				_ = eng.Close(ctx)
			}
			return err
		}
	}

	v.mu.Lock()
	v.engine = eng
	v.core = core
	v.adapter = adapter
	v.mu.Unlock()
	return nil
}

// Ready blocks until bootstrap completes and returns its error. A failed
// bootstrap returns the same error on every call.
func (v *VM) Ready(ctx context.Context) error {
	select {
	case <-v.ready:
		return v.bootErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *VM) checkReady() error {
	select {
	case <-v.ready:
	default:
		return errors.NotInitialized(errors.PhaseRuntime, "vm")
	}
	if v.bootErr != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNotInitialized, v.bootErr, "vm bootstrap failed")
	}
	return nil
}

// with runs fn holding the core lock, then delivers queued callbacks.
func (v *VM) with(fn func(core agcbridge.Core) error) error {
	if err := v.checkReady(); err != nil {
		return err
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errors.NotInitialized(errors.PhaseRuntime, "vm (closed)")
	}
	err := fn(v.core)
	v.mu.Unlock()

	v.dispatch()
	return err
}

func (v *VM) queueChannel(ch, value uint32) {
	v.pending = append(v.pending, event{channel: ch, value: value})
}

func (v *VM) queueIndicators(bits uint32) {
	v.pending = append(v.pending, event{value: bits, indicators: true})
}

// dispatch delivers queued events in order. Only one goroutine delivers at
// a time; events queued meanwhile are picked up by that goroutine.
func (v *VM) dispatch() {
	v.mu.Lock()
	if v.dispatching {
		v.mu.Unlock()
		return
	}
	v.dispatching = true
	for len(v.pending) > 0 {
		batch := v.pending
		v.pending = nil
		v.mu.Unlock()

		for _, ev := range batch {
			switch {
			case ev.indicators:
				if v.cfg.OnIndicators != nil {
					v.cfg.OnIndicators(ev.value)
				}
			case v.cfg.OnChannel != nil:
				v.cfg.OnChannel(ev.channel, ev.value)
			}
		}

		v.mu.Lock()
	}
	v.dispatching = false
	v.mu.Unlock()
}

// LoadProgram installs a program image into fixed memory.
func (v *VM) LoadProgram(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return errors.InvalidInput(errors.PhaseLoad, "empty program image")
	}
	return v.with(func(core agcbridge.Core) (err error) {
		size := uint32(len(image))
		ptr, err := core.Malloc(ctx, size)
		if err != nil {
			return err
		}
		defer func() {
			if ferr := core.Free(ctx, ptr); ferr != nil {
				err = errors.Join(err, ferr)
			}
		}()

		if err := core.Memory().Write(ptr, image); err != nil {
			return err
		}
		if err := core.SetFixed(ctx, ptr); err != nil {
			return err
		}
		v.log.Debug("program loaded", zap.Int("bytes", len(image)))
		return nil
	})
}

// Reset resets the processor. A running oscillator keeps stepping it.
func (v *VM) Reset(ctx context.Context) error {
	return v.with(func(core agcbridge.Core) error {
		return core.CPUReset(ctx)
	})
}

// StepCPU runs n steps directly. Channels are not drained.
func (v *VM) StepCPU(ctx context.Context, n uint32) error {
	if err := v.checkReady(); err != nil {
		return err
	}
	return v.sched.StepCPU(ctx, n)
}

// Start begins real-time stepping at the given clock divisor, or changes
// the divisor of a running oscillator. Ticks run under ctx until Stop or
// until ctx is done.
func (v *VM) Start(ctx context.Context, divisor float64) error {
	if err := v.checkReady(); err != nil {
		return err
	}
	return v.sched.Start(ctx, divisor)
}

// Stop halts real-time stepping. A tick in progress completes first.
func (v *VM) Stop() {
	v.sched.Stop()
}

// Running reports whether the oscillator is running.
func (v *VM) Running() bool {
	return v.sched.State() == scheduler.Oscillating
}

// Divisor returns the current clock divisor.
func (v *VM) Divisor() float64 {
	return v.sched.Divisor()
}

// Frequency returns the emulated instruction rate in Hz.
func (v *VM) Frequency() float64 {
	return v.sched.Frequency()
}

// Steps returns the steps counted since the last start or resync.
func (v *VM) Steps() uint64 {
	return v.sched.Steps()
}

// Resyncs returns how many ticks resynchronized.
func (v *VM) Resyncs() uint64 {
	return v.sched.Resyncs()
}

// Err returns the error that last stopped the oscillator.
func (v *VM) Err() error {
	return v.sched.Err()
}

// Erasable returns the erasable memory view. The base pointer is fetched
// from the core once. Each read through the view takes the VM lock, so it
// may be used while the oscillator runs; reads fail once the VM is closed.
// Use Snapshot for a consistent copy of all words.
func (v *VM) Erasable(ctx context.Context) (*memory.Erasable, error) {
	var view *memory.Erasable
	err := v.with(func(core agcbridge.Core) error {
		if err := v.bindErasable(ctx, core); err != nil {
			return err
		}
		view = v.erasable
		return nil
	})
	return view, err
}

// bindErasable creates both erasable views. Requires mu.
func (v *VM) bindErasable(ctx context.Context, core agcbridge.Core) error {
	if v.erasable != nil {
		return nil
	}
	base, err := core.ErasablePtr(ctx)
	if err != nil {
		return err
	}
	v.rawErasable = memory.NewErasable(core.Memory(), base)
	v.erasable = memory.NewErasable(lockedMemory{vm: v, mem: core.Memory()}, base)
	return nil
}

// Version returns the core's identification string, or UnknownVersion.
func (v *VM) Version(ctx context.Context) (string, error) {
	var version string
	err := v.with(func(core agcbridge.Core) (err error) {
		version, err = coreVersion(ctx, core)
		return err
	})
	return version, err
}

func coreVersion(ctx context.Context, core agcbridge.Core) (string, error) {
	ptr, ok, err := core.Version(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return UnknownVersion, nil
	}
	return memory.DecodeString(core.Memory(), ptr)
}

// WriteChannel sends value to an input channel. Write one value per
// channel between steps; the core latches only the latest.
func (v *VM) WriteChannel(ctx context.Context, ch, value uint32) error {
	return v.with(func(core agcbridge.Core) error {
		return v.adapter.Write(ctx, ch, value)
	})
}

// KeyPress writes a keycode to the keypad channel. KeyNone is ignored.
func (v *VM) KeyPress(ctx context.Context, key Key) error {
	if key == KeyNone {
		return nil
	}
	if key == KeyPro {
		return errors.InvalidInput(errors.PhaseRuntime, "PRO is not a keycode; use ProceedSignal")
	}
	return v.WriteChannel(ctx, KeypadChannel, uint32(key))
}

// ProceedSignal drives the PRO key discrete.
func (v *VM) ProceedSignal(ctx context.Context, active bool) error {
	var value uint32
	if active {
		value = ProceedBit
	}
	return v.WriteChannel(ctx, ProceedChannel, value)
}

// Press presses key. PRO asserts the proceed discrete; others send the
// keycode.
func (v *VM) Press(ctx context.Context, key Key) error {
	if key == KeyPro {
		return v.ProceedSignal(ctx, true)
	}
	return v.KeyPress(ctx, key)
}

// Release releases key. Only PRO has a release; keycodes are edge events.
func (v *VM) Release(ctx context.Context, key Key) error {
	if key == KeyPro {
		return v.ProceedSignal(ctx, false)
	}
	return v.checkReady()
}

// Drain reads every pending output packet and returns the changes.
func (v *VM) Drain(ctx context.Context) ([]channel.Update, error) {
	var updates []channel.Update
	err := v.with(func(agcbridge.Core) (err error) {
		updates, err = v.adapter.Drain(ctx)
		return err
	})
	return updates, err
}

// Channels returns a copy of the channel table.
func (v *VM) Channels() map[uint32]uint32 {
	var table map[uint32]uint32
	_ = v.with(func(agcbridge.Core) error {
		table = v.adapter.Channels()
		return nil
	})
	return table
}

// Indicators returns the composite lamp field.
func (v *VM) Indicators() uint32 {
	var bits uint32
	_ = v.with(func(agcbridge.Core) error {
		bits = v.adapter.Indicators()
		return nil
	})
	return bits
}

// CallWithArgs calls export as main(argc, argv) with programName and args.
func (v *VM) CallWithArgs(ctx context.Context, export, programName string, args []string) ([]uint64, error) {
	var results []uint64
	err := v.with(func(core agcbridge.Core) error {
		return memory.WithArgv(ctx, core, core.Memory(), programName, args,
			func(ctx context.Context, argc, argv uint32) (err error) {
				results, err = core.Call(ctx, export, uint64(argc), uint64(argv))
				return err
			})
	})
	return results, err
}

// Snapshot captures erasable memory and the channel state.
func (v *VM) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	snap := &snapshot.Snapshot{
		TakenAt: time.Now().UnixNano(),
		Steps:   v.sched.Steps(),
	}
	err := v.with(func(core agcbridge.Core) error {
		if err := v.bindErasable(ctx, core); err != nil {
			return err
		}
		version, err := coreVersion(ctx, core)
		if err != nil {
			return err
		}
		words, err := v.rawErasable.Words()
		if err != nil {
			return err
		}
		snap.Version = version
		snap.Erasable = words
		snap.Channels = v.adapter.Channels()
		snap.Indicators = v.adapter.Indicators()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Close stops the oscillator and releases the core. It waits for a
// bootstrap in progress.
func (v *VM) Close(ctx context.Context) error {
	select {
	case <-v.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	v.sched.Stop()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.core == nil {
		v.closed = true
		return nil
	}
	v.closed = true

	err := v.core.Close(ctx)
	if v.engine != nil {
		err = errors.Join(err, v.engine.Close(ctx))
	}
	return err
}

// vmTarget lets the scheduler drive the core through the VM lock.
type vmTarget struct {
	vm *VM
}

func (t vmTarget) Step(ctx context.Context, n uint32) error {
	t.vm.mu.Lock()
	defer t.vm.mu.Unlock()
	if t.vm.closed {
		return errors.NotInitialized(errors.PhaseRuntime, "vm (closed)")
	}
	return t.vm.core.CPUStep(ctx, n)
}

func (t vmTarget) Drain(ctx context.Context) error {
	t.vm.mu.Lock()
	defer t.vm.mu.Unlock()
	if t.vm.closed {
		return errors.NotInitialized(errors.PhaseRuntime, "vm (closed)")
	}
	_, err := t.vm.adapter.Drain(ctx)
	return err
}

// dispatchTicker delivers callbacks queued by a tick once the scheduler has
// released its lock.
type dispatchTicker struct {
	scheduler.Ticker
	vm *VM
}

func (t dispatchTicker) Every(period time.Duration, fn func()) scheduler.Task {
	return t.Ticker.Every(period, func() {
		fn()
		t.vm.dispatch()
	})
}
