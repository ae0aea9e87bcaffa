package memory

import (
	"context"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
)

// PointerSize is the width of a guest pointer on the wasm32 target.
const PointerSize = 4

// ArgvFunc receives the argument count and the guest address of the
// pointer array.
type ArgvFunc func(ctx context.Context, argc, argv uint32) error

// WithArgv builds a C style argv for programName followed by args, runs fn
// with it, and frees every allocation it made in reverse order whatever the
// outcome. args is not modified. Free failures are joined into the result.
func WithArgv(ctx context.Context, alloc agcbridge.Allocator, mem agcbridge.Memory,
	programName string, args []string, fn ArgvFunc) (err error) {
	all := make([]string, 0, len(args)+1)
	all = append(all, programName)
	all = append(all, args...)
	argc := uint32(len(all))

	var allocated []uint32
	defer func() {
		for i := len(allocated) - 1; i >= 0; i-- {
			if ferr := alloc.Free(ctx, allocated[i]); ferr != nil {
				err = errors.Join(err, errors.Wrap(errors.PhaseMarshal, errors.KindAllocation, ferr, "free argv"))
			}
		}
	}()

	slots := argc * PointerSize
	argv, err := alloc.Malloc(ctx, slots)
	if err != nil {
		return errors.AllocationFailed(errors.PhaseMarshal, slots, err)
	}
	allocated = append(allocated, argv)

	for i, s := range all {
		size := uint32(len(s)) + 1
		ptr, err := alloc.Malloc(ctx, size)
		if err != nil {
			return errors.AllocationFailed(errors.PhaseMarshal, size, err)
		}
		allocated = append(allocated, ptr)

		if _, err := EncodeString(s, mem, ptr); err != nil {
			return err
		}
		// the allocation has room for the terminator, so EncodeString wrote it
		if err := mem.WriteU32(argv+uint32(i)*PointerSize, ptr); err != nil {
			return err
		}
	}

	return fn(ctx, argc, argv)
}
