// Package engine boots the emulator core on wazero.
//
// Each Engine owns its own wazero runtime; runtimes are never shared between
// VMs. Bootstrap runs in a fixed order:
//
//  1. NewSharedMemory instantiates a generated module named "env" that
//     defines the linear memory and re-exports any env host functions.
//  2. Instantiate compiles the core, checks its memory and function imports
//     against the shared memory, the WASI shim and the caller's imports,
//     and validates its exports against the Contract.
//  3. The core is instantiated with only _initialize as a start function,
//     so a command-style main is never run implicitly.
//
// # Errors
//
//	malformed bytes                    errors.ErrCompile
//	unresolved function imports        errors.ErrInstantiation (MissingImportsError cause)
//	memory import without shared memory errors.ErrLink
//	missing or mistyped export         errors.ErrLink
//
// # WASI
//
// The wasi_snapshot_preview1 shim is backed by an in-memory filesystem
// pre-opened at "/" (or a host directory when Config.HostDir is set). Guest
// stdout and stderr are logged line by line unless writers are supplied. A
// caller entry for wasi_snapshot_preview1 never replaces the shim.
package engine
