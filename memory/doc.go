// Package memory marshals strings and argument vectors across the linear
// memory shared with the emulator module.
//
// All accessors take offsets and validate them against the current memory
// size on every call. Nothing here caches a slice of guest memory, since a
// memory.grow inside the module may move it.
//
// Pointers are 4 bytes, little-endian, matching the wasm32 target the core
// is compiled for.
package memory
