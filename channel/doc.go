// Package channel implements the I/O channel packet protocol of the core.
//
// A packet is one uint32: the channel number in the high 16 bits and the
// value in the low 16 bits. Reading returns packet 0 when nothing is
// pending, which is also the encoding of value 0 on channel 0. The two are
// indistinguishable at this layer and a real (0, 0) is never reported.
//
// The Adapter keeps the last value seen per channel, reports changes, and
// folds selected channels into a single lamp bitfield.
package channel
