// Package scheduler steps the emulated CPU in real time.
//
// A fixed-rate tick (60 Hz by default) computes how many AGC instruction
// cycles should have elapsed since oscillation started, scaled down by a
// divisor, steps the CPU by the difference, then drains channel output.
// The tick rate is independent of the divisor, so slow and paused clocks
// do not busy-wait.
//
// A tick whose step count would be negative, not finite, or above
// MaxCatchUp resynchronizes instead: the time reference moves to now, the
// step counter returns to zero, and nothing is stepped. This is what keeps
// a laptop resuming from sleep from running millions of catch-up cycles.
// Resyncs are not errors; they are counted and logged at debug level.
package scheduler
