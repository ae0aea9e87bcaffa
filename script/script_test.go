package script

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/agc-bridge/agc"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/errors"
)

type fakeTarget struct {
	now      time.Duration
	log      []string
	channels map[uint32]uint32
	pending  []channel.Update
	lamps    uint32
	divisor  float64
	steps    uint32
	running  bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{channels: map[uint32]uint32{}}
}

func (f *fakeTarget) record(format string, args ...any) {
	f.log = append(f.log, fmt.Sprintf("%v ", f.now)+fmt.Sprintf(format, args...))
}

func (f *fakeTarget) sleep(ctx context.Context, d time.Duration) error {
	f.now += d
	return ctx.Err()
}

func (f *fakeTarget) Press(_ context.Context, k agc.Key) error {
	f.record("press %s", k)
	return nil
}

func (f *fakeTarget) Release(_ context.Context, k agc.Key) error {
	f.record("release %s", k)
	return nil
}

func (f *fakeTarget) ProceedSignal(_ context.Context, active bool) error {
	f.record("proceed %v", active)
	return nil
}

func (f *fakeTarget) StepCPU(_ context.Context, n uint32) error {
	f.steps += n
	return nil
}

func (f *fakeTarget) Reset(context.Context) error {
	f.record("reset")
	return nil
}

func (f *fakeTarget) Start(_ context.Context, divisor float64) error {
	f.divisor = divisor
	f.running = true
	return nil
}

func (f *fakeTarget) Stop() {
	f.running = false
}

func (f *fakeTarget) WriteChannel(_ context.Context, ch, value uint32) error {
	f.pending = append(f.pending, channel.Update{Channel: ch, Value: value})
	return nil
}

func (f *fakeTarget) Drain(context.Context) ([]channel.Update, error) {
	out := f.pending
	f.pending = nil
	for _, u := range out {
		f.channels[u.Channel] = u.Value
	}
	return out, nil
}

func (f *fakeTarget) Channels() map[uint32]uint32 {
	return f.channels
}

func (f *fakeTarget) Indicators() uint32 {
	return f.lamps
}

func (f *fakeTarget) Version(context.Context) (string, error) {
	return "test core", nil
}

func run(t *testing.T, f *fakeTarget, src string) ([]string, error) {
	t.Helper()
	var printed []string
	r := NewRunner(f, Options{
		Sleep: f.sleep,
		Print: func(msg string) { printed = append(printed, msg) },
	})
	err := r.Run(context.Background(), "test.star", src)
	return printed, err
}

func TestKeysCadence(t *testing.T) {
	f := newFakeTarget()
	_, err := run(t, f, `keys("V3 E")`)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"0s press VERB",
		"200ms release VERB",
		"700ms press 3",
		"900ms release 3",
		"2.1s press ENTR",
		"2.3s release ENTR",
	}, f.log)
	assert.Equal(t, 2800*time.Millisecond, f.now)
}

func TestKeysCustomDelay(t *testing.T) {
	f := newFakeTarget()
	_, err := run(t, f, `keys("12", delay=1)`)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, f.now)
	assert.Equal(t, "1s press 2", f.log[2])
}

func TestKeysRejectsUnknownBeforeTyping(t *testing.T) {
	f := newFakeTarget()
	_, err := run(t, f, `keys("V3x")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no DSKY key")
	assert.Empty(t, f.log)
}

func TestKeyByName(t *testing.T) {
	f := newFakeTarget()
	_, err := run(t, f, `
key("VERB")
key("pro")
`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0s press VERB",
		"200ms release VERB",
		"200ms press PRO",
		"400ms release PRO",
	}, f.log)

	_, err = run(t, f, `key("launch")`)
	assert.Error(t, err)
}

func TestOscillatorBuiltins(t *testing.T) {
	f := newFakeTarget()
	_, err := run(t, f, `
reset()
step(5)
step()
start(2)
run(1.5)
stop()
start()
start(float("inf"))
`)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), f.steps)
	assert.Equal(t, 1500*time.Millisecond, f.now)
	assert.True(t, math.IsInf(f.divisor, 1))
	assert.Equal(t, []string{"0s reset"}, f.log)

	_, err = run(t, f, `start("fast")`)
	assert.Error(t, err)
	_, err = run(t, f, `run(-1)`)
	assert.Error(t, err)
	_, err = run(t, f, `step(-1)`)
	assert.Error(t, err)
}

func TestChannelBuiltins(t *testing.T) {
	f := newFakeTarget()
	f.lamps = channel.LampKeyRel | channel.LampCompActy
	printed, err := run(t, f, `
print(channel(0o15))
write(0o15, 5)
print(drain())
print(channel(0o15))
proceed()
proceed(False)
print(lamps())
print(version())
`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"None",
		"[(13, 5)]",
		"5",
		`["COMP ACTY", "KEY REL"]`,
		"test core",
	}, printed)
	assert.Equal(t, []string{"0s proceed true", "0s proceed false"}, f.log)

	_, err = run(t, f, `write(0o15, 70000)`)
	assert.Error(t, err)
}

func TestLoadUnsupported(t *testing.T) {
	_, err := run(t, newFakeTarget(), `load("other.star", "x")`)
	require.Error(t, err)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseScript, e.Phase)
}

func TestSyntaxError(t *testing.T) {
	_, err := run(t, newFakeTarget(), `keys(`)
	assert.Error(t, err)
}

func TestCancelled(t *testing.T) {
	f := newFakeTarget()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(f, Options{Sleep: f.sleep})
	err := r.Run(ctx, "test.star", `run(1)`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, Sleep(ctx, time.Millisecond))
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}

func TestErrorNamesScript(t *testing.T) {
	_, err := run(t, newFakeTarget(), `fail("boom")`)
	require.Error(t, err)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []string{"test.star"}, e.Path)
	assert.Contains(t, err.Error(), "at test.star")
}
