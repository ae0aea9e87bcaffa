package script

import (
	"fmt"
	"math"
	"time"

	"go.starlark.net/starlark"

	"github.com/wippyai/agc-bridge/agc"
	"github.com/wippyai/agc-bridge/channel"
)

type builtinFunc func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func (r *Runner) builtins() starlark.StringDict {
	funcs := map[string]builtinFunc{
		"key":     r.key,
		"keys":    r.keys,
		"proceed": r.proceed,
		"step":    r.step,
		"reset":   r.reset,
		"start":   r.start,
		"stop":    r.stop,
		"run":     r.run,
		"write":   r.write,
		"channel": r.channel,
		"drain":   r.drain,
		"lamps":   r.lamps,
		"version": r.version,
	}
	dict := make(starlark.StringDict, len(funcs))
	for name, fn := range funcs {
		dict[name] = starlark.NewBuiltin(name, fn)
	}
	return dict
}

// seconds converts a Starlark number of seconds to a duration.
func seconds(fn string, v starlark.Value) (time.Duration, error) {
	f, ok := starlark.AsFloat(v)
	if !ok || math.IsNaN(f) || f < 0 {
		return 0, fmt.Errorf("%s: want a non-negative number of seconds, got %s", fn, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// tap presses and releases k, holding it for the configured time.
func (r *Runner) tap(thread *starlark.Thread, k agc.Key) error {
	ctx := threadContext(thread)
	if err := r.target.Press(ctx, k); err != nil {
		return err
	}
	if err := r.opts.Sleep(ctx, r.opts.KeyHold); err != nil {
		return err
	}
	return r.target.Release(ctx, k)
}

func (r *Runner) key(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	k, ok := agc.KeyByName(name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown key %q", b.Name(), name)
	}
	return starlark.None, r.tap(thread, k)
}

func (r *Runner) keys(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	var delayArg starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text, "delay?", &delayArg); err != nil {
		return nil, err
	}
	delay := r.opts.KeyDelay
	if delayArg != starlark.None {
		d, err := seconds(b.Name(), delayArg)
		if err != nil {
			return nil, err
		}
		delay = d
	}

	// validate first so a typo types nothing
	seq := make([]agc.Key, 0, len(text))
	for _, c := range text {
		if c == ' ' {
			seq = append(seq, agc.KeyNone)
			continue
		}
		k, ok := agc.ParseKey(c)
		if !ok {
			return nil, fmt.Errorf("%s: no DSKY key for %q", b.Name(), c)
		}
		seq = append(seq, k)
	}

	ctx := threadContext(thread)
	for _, k := range seq {
		wait := delay
		if k != agc.KeyNone {
			if err := r.tap(thread, k); err != nil {
				return nil, err
			}
			wait -= min(r.opts.KeyHold, delay)
		}
		if err := r.opts.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

func (r *Runner) proceed(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	active := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "active?", &active); err != nil {
		return nil, err
	}
	return starlark.None, r.target.ProceedSignal(threadContext(thread), active)
}

func (r *Runner) step(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 1
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	if n < 0 || uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("%s: step count %d out of range", b.Name(), n)
	}
	return starlark.None, r.target.StepCPU(threadContext(thread), uint32(n))
}

func (r *Runner) reset(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.None, r.target.Reset(threadContext(thread))
}

func (r *Runner) start(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var divisorArg starlark.Value = starlark.Float(1)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "divisor?", &divisorArg); err != nil {
		return nil, err
	}
	divisor, ok := starlark.AsFloat(divisorArg)
	if !ok {
		return nil, fmt.Errorf("%s: divisor must be a number, got %s", b.Name(), divisorArg.Type())
	}
	return starlark.None, r.target.Start(threadContext(thread), divisor)
}

func (r *Runner) stop(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	r.target.Stop()
	return starlark.None, nil
}

func (r *Runner) run(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var secs starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "seconds", &secs); err != nil {
		return nil, err
	}
	d, err := seconds(b.Name(), secs)
	if err != nil {
		return nil, err
	}
	return starlark.None, r.opts.Sleep(threadContext(thread), d)
}

func (r *Runner) write(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ch, value int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "channel", &ch, "value", &value); err != nil {
		return nil, err
	}
	if ch < 0 || value < 0 || ch > 0xFFFF || value > 0xFFFF {
		return nil, fmt.Errorf("%s: channel and value must fit in 16 bits", b.Name())
	}
	return starlark.None, r.target.WriteChannel(threadContext(thread), uint32(ch), uint32(value))
}

func (r *Runner) channel(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ch int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &ch); err != nil {
		return nil, err
	}
	v, ok := r.target.Channels()[uint32(ch)]
	if !ok {
		return starlark.None, nil
	}
	return starlark.MakeUint64(uint64(v)), nil
}

func (r *Runner) drain(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	updates, err := r.target.Drain(threadContext(thread))
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, 0, len(updates))
	for _, u := range updates {
		out = append(out, starlark.Tuple{starlark.MakeUint64(uint64(u.Channel)), starlark.MakeUint64(uint64(u.Value))})
	}
	return starlark.NewList(out), nil
}

func (r *Runner) lamps(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	names := channel.LampNames(r.target.Indicators())
	out := make([]starlark.Value, len(names))
	for i, n := range names {
		out[i] = starlark.String(n)
	}
	return starlark.NewList(out), nil
}

func (r *Runner) version(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	v, err := r.target.Version(threadContext(thread))
	if err != nil {
		return nil, err
	}
	return starlark.String(v), nil
}
