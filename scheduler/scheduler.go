package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/agc-bridge/errors"
)

// Timing defaults.
const (
	CycleDuration = 11720 * time.Nanosecond // one AGC memory cycle
	TickInterval  = time.Second / 60
	MaxCatchUp    = 100000
)

// Paused is the divisor that computes zero cycles forever.
var Paused = math.Inf(1)

// State is the oscillator state.
type State int

const (
	Idle State = iota
	Oscillating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Oscillating:
		return "oscillating"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Target is what the scheduler drives.
type Target interface {
	Step(ctx context.Context, n uint32) error
	Drain(ctx context.Context) error
}

// Config configures a Scheduler. Zero fields take the defaults above.
type Config struct {
	Clock  Clock
	Ticker Ticker
	Logger *zap.Logger

	// OnError is called when a target error stops oscillation.
	OnError func(error)

	CycleDuration time.Duration
	TickInterval  time.Duration
	MaxCatchUp    uint32
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = WallClock{}
	}
	if c.Ticker == nil {
		c.Ticker = TimeTicker{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.CycleDuration <= 0 {
		c.CycleDuration = CycleDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = TickInterval
	}
	if c.MaxCatchUp == 0 {
		c.MaxCatchUp = MaxCatchUp
	}
	return c
}

// Scheduler converts wall-clock time into CPU steps for one target.
type Scheduler struct {
	target  Target
	task    Task
	err     error
	start   time.Time
	cfg     Config
	divisor float64
	steps   uint64
	resyncs uint64
	state   State
	mu      sync.Mutex
}

// New creates an idle scheduler for target.
func New(target Target, cfg Config) *Scheduler {
	return &Scheduler{
		target:  target,
		cfg:     cfg.withDefaults(),
		divisor: 1,
	}
}

// ValidateDivisor rejects divisors that cannot scale the clock. Paused is valid.
func ValidateDivisor(divisor float64) error {
	if math.IsNaN(divisor) || divisor <= 0 {
		return errors.InvalidInput(errors.PhaseSchedule,
			fmt.Sprintf("clock divisor must be positive, got %v", divisor))
	}
	return nil
}

// Start begins oscillating at divisor. When already oscillating it only
// changes the divisor; timing continues from the same reference.
func (s *Scheduler) Start(ctx context.Context, divisor float64) error {
	if err := ValidateDivisor(divisor); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.divisor = divisor
	if s.state == Oscillating {
		s.cfg.Logger.Debug("clock divisor changed", zap.Float64("divisor", divisor))
		return nil
	}

	s.state = Oscillating
	s.start = s.cfg.Clock.Now()
	s.steps = 0
	s.err = nil
	s.task = s.cfg.Ticker.Every(s.cfg.TickInterval, func() {
		if err := ctx.Err(); err != nil {
			s.Stop()
			return
		}
		_ = s.Tick(ctx)
	})
	s.cfg.Logger.Debug("oscillator started",
		zap.Float64("divisor", divisor),
		zap.Duration("tick", s.cfg.TickInterval))
	return nil
}

// Tick runs one scheduling step. It is a no-op while idle.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Oscillating {
		s.mu.Unlock()
		return nil
	}

	now := s.cfg.Clock.Now()
	elapsed := math.Floor(float64(now.Sub(s.start)) / float64(s.cfg.CycleDuration) / s.divisor)
	delta := elapsed - float64(s.steps)

	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta < 0 || delta > float64(s.cfg.MaxCatchUp) {
		s.cfg.Logger.Debug("oscillator resync",
			zap.Float64("delta", delta),
			zap.Uint64("steps", s.steps))
		s.start = now
		s.steps = 0
		s.resyncs++
		s.mu.Unlock()
		return nil
	}

	n := uint32(delta)
	err := s.run(ctx, n)
	if err == nil {
		s.mu.Unlock()
		return nil
	}

	s.stopLocked()
	s.err = err
	onError := s.cfg.OnError
	s.mu.Unlock()

	s.cfg.Logger.Error("oscillator stopped", zap.Error(err))
	if onError != nil {
		onError(err)
	}
	return err
}

func (s *Scheduler) run(ctx context.Context, n uint32) error {
	if n > 0 {
		if err := s.target.Step(ctx, n); err != nil {
			return err
		}
		s.steps += uint64(n)
	}
	return s.target.Drain(ctx)
}

// StepCPU steps the target directly in any state. It counts the steps but
// does not drain.
func (s *Scheduler) StepCPU(ctx context.Context, n uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.target.Step(ctx, n); err != nil {
		return err
	}
	s.steps += uint64(n)
	return nil
}

// Stop returns to idle. It waits for a tick in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.state != Oscillating {
		return
	}
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
	s.state = Idle
	s.cfg.Logger.Debug("oscillator stopped", zap.Uint64("steps", s.steps))
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Divisor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divisor
}

// Steps returns the cumulative step count since the last start or resync.
func (s *Scheduler) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Resyncs returns how many ticks resynchronized instead of stepping.
func (s *Scheduler) Resyncs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resyncs
}

// Err returns the error that last stopped oscillation.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Frequency returns the emulated instruction rate in Hz at the current divisor.
func (s *Scheduler) Frequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(time.Second) / float64(s.cfg.CycleDuration) / s.divisor
}
