// Package errors provides structured error types for the AGC bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the export path, offending value and cause chain.
//
// Bootstrap failures surface through the VM's readiness:
//
//	if err := vm.Ready(ctx); errors.Is(err, agcerrors.ErrCompile) {
//		// the binary is malformed
//	}
//
// Marshaling failures (ErrBufferOverflow, ErrMalformedString) are contract
// violations by the caller or the module and should be treated as fatal.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindSignatureMismatch).
//		Path("packet_read").
//		WitType("u32").
//		Detail("module declares () -> ()").
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
