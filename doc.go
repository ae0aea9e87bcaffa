// Package agcbridge hosts a precompiled Apollo Guidance Computer emulator
// (a WASI wasm32 module) and exposes it as a controllable virtual machine.
//
// # Architecture Overview
//
//	agcbridge/           Root package with Memory, Allocator and Core interfaces
//	├── agc/             VM host facade: readiness, program load, stepping, keypad
//	├── engine/          wazero bootstrap: shared memory, WASI shim, export contract
//	├── memory/          String and argv marshaling against linear memory
//	├── channel/         I/O channel packet protocol and lamp state
//	├── scheduler/       Real-time conversion of wall clock into emulated cycles
//	├── snapshot/        CBOR snapshots of erasable memory and channel state
//	├── script/          Starlark driven keypad automation
//	├── errors/          Structured error types
//	└── cmd/agc/         Terminal host
//
// # Quick Start
//
//	vm := agc.New(ctx, agc.Config{Module: wasmBytes})
//	defer vm.Close(ctx)
//
//	if err := vm.Ready(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := vm.LoadProgram(ctx, rope); err != nil {
//	    log.Fatal(err)
//	}
//	vm.Reset(ctx)
//	vm.Start(ctx, 1) // real time
//
// # Channels
//
// The emulated hardware talks to the outside world through numbered I/O
// channels. Every packet exchanged with the module packs a channel number
// in the high 16 bits and a value in the low 16 bits. A packet of zero marks
// the end of pending output; a genuine write of zero to channel zero cannot
// be told apart from it and is never reported.
//
// # Thread Safety
//
// A VM may be used from several goroutines. All calls into the module are
// serialized by the VM, so the emulator observes the same single-threaded
// ordering as a cooperative event loop.
package agcbridge
