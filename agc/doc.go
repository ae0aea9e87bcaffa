// Package agc assembles the bridge into a virtual Apollo Guidance Computer.
//
// New boots the core on a background goroutine; Ready blocks until the core
// is instantiated and the initial channel configuration is written, and
// returns the bootstrap error forever after if it failed:
//
//	vm := agc.New(ctx, agc.Config{Module: wasm, OnChannel: show})
//	if err := vm.Ready(ctx); err != nil {
//		return err
//	}
//	_ = vm.LoadProgram(ctx, rope)
//	_ = vm.Reset(ctx)
//	_ = vm.Start(ctx, 1)
//
// Before Ready returns, the VM writes Config.InitialWrites. The default
// packets, as (channel, value), are (0, 0x2000) and (0, 0x11111): the
// proceed and keypad channels masked with 0x100 rather than ORed. Set
// InitialWrites to MaskedInitialWrites() to write (0o432, 0x2000) and
// (0o415, 0x1f) to the mask channels.
//
// Every access to the core goes through one mutex per VM, so the scheduler
// goroutine and callers see the same ordering a single-threaded host would.
// Channel and indicator callbacks are invoked after that mutex is released,
// possibly from the scheduler goroutine; they may call back into the VM.
package agc
