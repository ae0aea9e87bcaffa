// Package synthagc assembles a small stand-in for the compiled emulator core.
//
// The module imports its memory from env.memory and one WASI function, and
// exports the same entry points as the real core. It does not interpret AGC
// instructions: stepping advances Z and TIME1 in erasable memory and reports
// TIME1 on channel 0o11, packets written by the host are looped back to the
// read side, and malloc is a bump allocator that counts calls.
package synthagc

import (
	"slices"

	"github.com/wippyai/agc-bridge/internal/wasmbin"
)

// Memory layout of the synthetic core.
const (
	InitFlagAddr   = 8
	VersionAddr    = 16
	AllocCountAddr = 64
	FreeCountAddr  = 68
	argsSizesAddr  = 256
	RingAddr       = 1024
	RingSlots      = 64
	ErasableBase   = 4096
	ErasableBytes  = 4096
	FixedBase      = 8192
	FixedBytes     = 2048
	HeapBase       = 16384
	MinPages       = 2
)

// Erasable word addresses touched by the core.
const (
	AddrZ     = 0o5
	AddrTIME1 = 0o25
	AddrArg   = 0o7 // first byte of argv[1], stored by main
	ResetZ    = 0o4000
	StepChan  = 0o11
)

// VersionString is the identification string returned by version.
const VersionString = "yaAGC synthetic core"

// Import names one extra function import of type () -> ().
type Import struct {
	Module string
	Name   string
}

// Options changes the generated module for failure-path tests.
type Options struct {
	// OmitExports drops the named exports.
	OmitExports []string
	// ExtraImports adds function imports nobody is expected to provide.
	ExtraImports []Import
	// MemoryModule and MemoryName override the memory import (default env.memory).
	MemoryModule string
	MemoryName   string
	// MemoryMin is the minimum page count of the memory import (default MinPages).
	MemoryMin uint32
	// OwnMemory defines and exports a memory instead of importing one.
	OwnMemory bool
}

// Module returns the default synthetic core.
func Module() []byte {
	return Build(Options{})
}

// Build assembles the synthetic core with opts applied.
func Build(opts Options) []byte {
	if opts.MemoryModule == "" {
		opts.MemoryModule = "env"
	}
	if opts.MemoryName == "" {
		opts.MemoryName = "memory"
	}
	if opts.MemoryMin == 0 {
		opts.MemoryMin = MinPages
	}

	i32 := wasmbin.I32
	m := &wasmbin.Module{}
	tI := m.AddType(nil, []wasmbin.ValType{i32})
	tII := m.AddType([]wasmbin.ValType{i32, i32}, nil)
	tIV := m.AddType([]wasmbin.ValType{i32}, nil)
	tV := m.AddType(nil, nil)
	tII2 := m.AddType([]wasmbin.ValType{i32}, []wasmbin.ValType{i32})
	tIII := m.AddType([]wasmbin.ValType{i32, i32}, []wasmbin.ValType{i32})

	if !opts.OwnMemory {
		m.Imports = append(m.Imports, wasmbin.Import{
			Module: opts.MemoryModule,
			Name:   opts.MemoryName,
			Kind:   wasmbin.KindMemory,
			Memory: &wasmbin.Limits{Min: opts.MemoryMin},
		})
	} else {
		m.Memories = []wasmbin.Limits{{Min: opts.MemoryMin}}
	}
	m.Imports = append(m.Imports, wasmbin.Import{
		Module:  "wasi_snapshot_preview1",
		Name:    "args_sizes_get",
		Kind:    wasmbin.KindFunc,
		TypeIdx: tIII,
	})
	for _, imp := range opts.ExtraImports {
		m.Imports = append(m.Imports, wasmbin.Import{
			Module:  imp.Module,
			Name:    imp.Name,
			Kind:    wasmbin.KindFunc,
			TypeIdx: tV,
		})
	}

	const argsSizesGet = 0
	base := m.ImportedFuncs()
	push := base + 12

	fn := func(name string, typeIdx uint32, locals []wasmbin.ValType, body *wasmbin.Code) {
		idx := base + uint32(len(m.Funcs))
		m.Funcs = append(m.Funcs, wasmbin.Func{TypeIdx: typeIdx, Locals: locals, Body: body.Bytes()})
		if name != "" && !slices.Contains(opts.OmitExports, name) {
			m.Exports = append(m.Exports, wasmbin.Export{Name: name, Kind: wasmbin.KindFunc, Index: idx})
		}
	}

	fn("version", tI, nil, wasmbin.NewCode().I32Const(VersionAddr))

	fn("packet_write", tII, nil, wasmbin.NewCode().
		LocalGet(0).I32Const(16).I32Shl().
		LocalGet(1).I32Const(0xFFFF).I32And().
		I32Or().
		Call(push))

	fn("packet_read", tI, nil, wasmbin.NewCode().
		GlobalGet(1).GlobalGet(2).I32Eq().
		If().I32Const(0).Return().End().
		I32Const(RingAddr).
		GlobalGet(1).I32Const(RingSlots-1).I32And().I32Const(2).I32Shl().
		I32Add().I32Load(0).
		GlobalGet(1).I32Const(1).I32Add().GlobalSet(1))

	// Z only advances once a program image is installed.
	fn("cpu_step", tIV, nil, wasmbin.NewCode().
		I32Const(FixedBase).I32Load16U(0).
		If().
		I32Const(ErasableBase).
		I32Const(ErasableBase).I32Load16U(AddrZ*2).LocalGet(0).I32Add().
		I32Store16(AddrZ*2).
		End().
		I32Const(ErasableBase).
		I32Const(ErasableBase).I32Load16U(AddrTIME1*2).LocalGet(0).I32Add().
		I32Store16(AddrTIME1*2).
		I32Const(StepChan<<16).
		I32Const(ErasableBase).I32Load16U(AddrTIME1*2).
		I32Or().
		Call(push))

	fn("cpu_reset", tV, nil, wasmbin.NewCode().
		I32Const(ErasableBase).I32Const(0).I32Const(ErasableBytes).MemoryFill().
		I32Const(ErasableBase).I32Const(ResetZ).I32Store16(AddrZ*2))

	fn("get_erasable_ptr", tI, nil, wasmbin.NewCode().I32Const(ErasableBase))

	fn("set_fixed", tIV, nil, wasmbin.NewCode().
		I32Const(FixedBase).LocalGet(0).I32Const(FixedBytes).MemoryCopy())

	fn("malloc", tII2, nil, wasmbin.NewCode().
		I32Const(AllocCountAddr).
		I32Const(AllocCountAddr).I32Load(0).I32Const(1).I32Add().
		I32Store(0).
		GlobalGet(0).
		GlobalGet(0).
		LocalGet(0).I32Const(7).I32Add().I32Const(-8).I32And().
		I32Add().GlobalSet(0))

	fn("free", tIV, nil, wasmbin.NewCode().
		I32Const(FreeCountAddr).
		I32Const(FreeCountAddr).I32Load(0).I32Const(1).I32Add().
		I32Store(0))

	fn("main", tIII, nil, wasmbin.NewCode().
		I32Const(ErasableBase).
		LocalGet(1).I32Load(4).I32Load8U(0).
		I32Store16(AddrArg*2).
		LocalGet(0))

	fn("_initialize", tV, nil, wasmbin.NewCode().
		I32Const(argsSizesAddr).I32Const(argsSizesAddr+4).Call(argsSizesGet).Drop().
		I32Const(InitFlagAddr).I32Const(1).I32Store(0))

	fn("_start", tV, nil, wasmbin.NewCode().Unreachable())

	fn("", tIV, nil, wasmbin.NewCode().
		I32Const(RingAddr).
		GlobalGet(2).I32Const(RingSlots-1).I32And().I32Const(2).I32Shl().
		I32Add().LocalGet(0).I32Store(0).
		GlobalGet(2).I32Const(1).I32Add().GlobalSet(2))

	m.Globals = []wasmbin.Global{
		{Init: HeapBase, Mutable: true},
		{Init: 0, Mutable: true},
		{Init: 0, Mutable: true},
	}
	if opts.OwnMemory {
		m.Exports = append(m.Exports, wasmbin.Export{Name: "memory", Kind: wasmbin.KindMemory, Index: 0})
	}
	m.Data = []wasmbin.Data{{Offset: VersionAddr, Bytes: append([]byte(VersionString), 0)}}

	return m.Encode()
}
