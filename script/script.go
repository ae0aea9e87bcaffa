package script

import (
	"context"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wippyai/agc-bridge/agc"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/errors"
)

// Typing cadence of keys().
const (
	DefaultKeyDelay = 700 * time.Millisecond
	DefaultKeyHold  = 200 * time.Millisecond
)

// Target is what a script drives. *agc.VM implements it.
type Target interface {
	Press(ctx context.Context, key agc.Key) error
	Release(ctx context.Context, key agc.Key) error
	ProceedSignal(ctx context.Context, active bool) error
	StepCPU(ctx context.Context, n uint32) error
	Reset(ctx context.Context) error
	Start(ctx context.Context, divisor float64) error
	Stop()
	WriteChannel(ctx context.Context, ch, value uint32) error
	Drain(ctx context.Context) ([]channel.Update, error)
	Channels() map[uint32]uint32
	Indicators() uint32
	Version(ctx context.Context) (string, error)
}

var _ Target = (*agc.VM)(nil)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Runner.
type Options struct {
	// Sleep replaces the wall-clock wait.
	Sleep SleepFunc

	// Print receives print() output. nil logs it.
	Print func(msg string)

	Logger *zap.Logger

	KeyDelay time.Duration
	KeyHold  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.KeyDelay <= 0 {
		o.KeyDelay = DefaultKeyDelay
	}
	if o.KeyHold <= 0 || o.KeyHold > o.KeyDelay {
		o.KeyHold = min(DefaultKeyHold, o.KeyDelay)
	}
	return o
}

// Sleep is the wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runner executes scripts against one target.
type Runner struct {
	target Target
	opts   Options
}

// NewRunner creates a runner for target.
func NewRunner(target Target, opts Options) *Runner {
	return &Runner{target: target, opts: opts.withDefaults()}
}

// Run executes src, which may be a string, []byte or io.Reader. Cancelling
// ctx interrupts the script at the next builtin or loop iteration.
func (r *Runner) Run(ctx context.Context, filename string, src any) error {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			if r.opts.Print != nil {
				r.opts.Print(msg)
				return
			}
			r.opts.Logger.Info(msg, zap.String("script", filename))
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, errors.InvalidInput(errors.PhaseScript, "load is not supported: "+module)
		},
	}
	thread.SetLocal(ctxKey, ctx)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	r.opts.Logger.Debug("script started", zap.String("script", filename))
	_, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, r.builtins())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return errors.New(errors.PhaseScript, errors.KindTrap).
			Path(filename).
			Cause(err).
			Detail("script failed").
			Build()
	}
	r.opts.Logger.Debug("script finished", zap.String("script", filename))
	return nil
}

const ctxKey = "context"

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(ctxKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}
