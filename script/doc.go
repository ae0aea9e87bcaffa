// Package script runs Starlark programs against a VM.
//
// A script types on the keypad, flips the proceed discrete, steps or runs
// the oscillator and reads back channels and lamps:
//
//	start(1)
//	run(2)
//	keys("V35E")
//	run(10)
//	keys("V16N65E")
//	print(lamps())
//
// Builtins:
//
//	key(name)            press and release one key ("VERB", "7", "PRO", "e")
//	keys(text, delay)    type text, one key per delay seconds (default 0.7); a space only waits
//	proceed(active)      drive the PRO discrete
//	step(n)              run n CPU steps
//	reset()              reset the processor
//	start(divisor)       start the oscillator (default 1.0)
//	stop()               stop the oscillator
//	run(seconds)         wait while the oscillator runs
//	write(channel, v)    write an input channel
//	channel(n)           last value seen on channel n, or None
//	drain()              read pending output as (channel, value) tuples
//	lamps()              names of the lit indicator lamps
//	version()            core identification string
package script
