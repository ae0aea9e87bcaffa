// Package wasmbin encodes small WebAssembly core modules.
//
// It covers the subset the bridge generates at run time (the shared memory
// module that re-exports host functions) and the synthetic emulator core used
// by tests: types, imports, functions, memories, mutable globals, exports,
// code and active data segments. Function bodies are built with Code.
package wasmbin
