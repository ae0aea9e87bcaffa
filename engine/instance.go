package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
	"github.com/wippyai/agc-bridge/memory"
)

// Instance is a live emulator core. It implements agcbridge.Core.
type Instance struct {
	module      api.Module
	mem         agcbridge.Memory
	log         *zap.Logger
	version     api.Function
	packetWrite api.Function
	packetRead  api.Function
	cpuStep     api.Function
	cpuReset    api.Function
	erasablePtr api.Function
	setFixed    api.Function
	malloc      api.Function
	free        api.Function
	stackBuf    []uint64
	stackMutex  sync.Mutex
}

var _ agcbridge.Core = (*Instance)(nil)

// Instantiate compiles moduleBytes, binds it to shared and imports, and
// returns the running core. shared may be nil only for a module that
// defines its own memory.
func (e *Engine) Instantiate(ctx context.Context, moduleBytes []byte, shared *SharedMemory, imports Imports) (*Instance, error) {
	compiled, err := e.runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return nil, errors.CompileError(err)
	}
	defer compiled.Close(ctx)

	if err := checkMemory(compiled, shared); err != nil {
		return nil, err
	}

	if err := e.bindImports(ctx, shared, imports); err != nil {
		return nil, err
	}

	if missing := e.missingImports(compiled, shared, imports); len(missing) > 0 {
		return nil, errors.InstantiationError("resolve imports", errors.NewMissingImportsError(missing))
	}

	if err := e.cfg.Contract.Validate(compiled); err != nil {
		return nil, err
	}

	if _, ok := compiled.ExportedFunctions()[startCommand]; ok {
		e.log.Debug("module exports _start; it will not be run")
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled, e.moduleConfig())
	if err != nil {
		return nil, errors.InstantiationError("instantiate module", err)
	}

	inst := &Instance{
		module:      mod,
		log:         e.log,
		version:     mod.ExportedFunction(ExportVersion),
		packetWrite: mod.ExportedFunction(ExportPacketWrite),
		packetRead:  mod.ExportedFunction(ExportPacketRead),
		cpuStep:     mod.ExportedFunction(ExportCPUStep),
		cpuReset:    mod.ExportedFunction(ExportCPUReset),
		erasablePtr: mod.ExportedFunction(ExportErasablePtr),
		setFixed:    mod.ExportedFunction(ExportSetFixed),
		malloc:      mod.ExportedFunction(ExportMalloc),
		free:        mod.ExportedFunction(ExportFree),
		stackBuf:    make([]uint64, stackSize(compiled)),
	}
	if shared != nil {
		inst.mem = shared.Memory()
	} else {
		inst.mem = memory.Wrap(mod.Memory())
	}

	e.log.Debug("core instantiated",
		zap.Bool("has_version", inst.version != nil),
		zap.Uint32("memory_bytes", inst.mem.Size()))

	return inst, nil
}

// stackSize fits the largest param or result list among the exports, so
// discarded extra results still have room on the call stack.
func stackSize(compiled wazero.CompiledModule) int {
	n := 4
	for _, def := range compiled.ExportedFunctions() {
		n = max(n, len(def.ParamTypes()), len(def.ResultTypes()))
	}
	return n
}

// checkMemory enforces that the only memory the core uses is the shared one.
func checkMemory(compiled wazero.CompiledModule, shared *SharedMemory) error {
	imported := compiled.ImportedMemories()
	if len(imported) == 0 {
		if shared != nil {
			return errors.LinkError("module defines its own memory; expected an %s.%s import", EnvModule, MemoryName)
		}
		return nil
	}

	for _, def := range imported {
		mod, name, _ := def.Import()
		if shared == nil {
			return errors.LinkError("module imports memory %s.%s but no shared memory was supplied", mod, name)
		}
		if mod != EnvModule || name != MemoryName {
			return errors.LinkError("module imports memory %s.%s; only %s.%s is provided", mod, name, EnvModule, MemoryName)
		}
		if shared.Pages() < def.Min() {
			return errors.LinkError("module needs %d memory pages, shared memory has %d", def.Min(), shared.Pages())
		}
	}
	return nil
}

// bindImports instantiates a host module per caller namespace. env entries
// belong to the shared memory, and the WASI namespace is never replaced.
func (e *Engine) bindImports(ctx context.Context, shared *SharedMemory, imports Imports) error {
	modules := make([]string, 0, len(imports))
	for name := range imports {
		modules = append(modules, name)
	}
	sort.Strings(modules)

	for _, modName := range modules {
		funcs := imports[modName]
		switch {
		case len(funcs) == 0:
			continue
		case modName == WASIModule:
			for name := range funcs {
				e.log.Warn("caller import shadowed by WASI shim",
					zap.String("module", modName), zap.String("name", name))
			}
			continue
		case modName == EnvModule && shared != nil:
			for name := range funcs {
				if !shared.provides(name) {
					return errors.LinkError("env function %q must be passed to NewSharedMemory", name)
				}
			}
			continue
		case modName == envHostModule:
			return errors.LinkError("import module name %q is reserved", modName)
		}

		if e.runtime.Module(modName) != nil {
			return errors.LinkError("import module %q already instantiated", modName)
		}

		builder := e.runtime.NewHostModuleBuilder(modName)
		names := make([]string, 0, len(funcs))
		for name := range funcs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			hf := funcs[name]
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(hf.Fn, hf.Params, hf.Results).
				Export(name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.InstantiationError("instantiate host module "+modName, err)
		}
	}
	return nil
}

// missingImports lists "module#function" for every function import nobody provides.
func (e *Engine) missingImports(compiled wazero.CompiledModule, shared *SharedMemory, imports Imports) []string {
	wasi := e.runtime.Module(WASIModule)

	var missing []string
	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()

		var ok bool
		switch modName {
		case WASIModule:
			// host modules panic on ExportedFunction; definitions are safe
			if wasi != nil {
				_, ok = wasi.ExportedFunctionDefinitions()[name]
			}
		case EnvModule:
			if shared != nil {
				ok = shared.provides(name)
			} else {
				_, ok = imports[modName][name]
			}
		default:
			_, ok = imports[modName][name]
		}
		if !ok {
			missing = append(missing, modName+"#"+name)
		}
	}
	return missing
}

// Memory returns the shared memory view.
func (i *Instance) Memory() agcbridge.Memory {
	return i.mem
}

// call invokes fn with params using the reusable stack and returns the
// first result, if any.
func (i *Instance) call(ctx context.Context, name string, fn api.Function, params ...uint64) (uint64, error) {
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "export", name)
	}

	i.stackMutex.Lock()
	defer i.stackMutex.Unlock()

	if i.module == nil {
		return 0, errors.NotInitialized(errors.PhaseRuntime, "core instance")
	}

	copy(i.stackBuf, params)
	if err := fn.CallWithStack(ctx, i.stackBuf); err != nil {
		return 0, errors.Trap(name, err)
	}
	return i.stackBuf[0], nil
}

func (i *Instance) Version(ctx context.Context) (uint32, bool, error) {
	if i.version == nil {
		return 0, false, nil
	}
	ptr, err := i.call(ctx, ExportVersion, i.version)
	return uint32(ptr), err == nil, err
}

func (i *Instance) PacketWrite(ctx context.Context, channel, value uint32) error {
	_, err := i.call(ctx, ExportPacketWrite, i.packetWrite, uint64(channel), uint64(value))
	return err
}

func (i *Instance) PacketRead(ctx context.Context) (uint32, error) {
	v, err := i.call(ctx, ExportPacketRead, i.packetRead)
	return uint32(v), err
}

func (i *Instance) CPUStep(ctx context.Context, steps uint32) error {
	_, err := i.call(ctx, ExportCPUStep, i.cpuStep, uint64(steps))
	return err
}

func (i *Instance) CPUReset(ctx context.Context) error {
	_, err := i.call(ctx, ExportCPUReset, i.cpuReset)
	return err
}

func (i *Instance) ErasablePtr(ctx context.Context) (uint32, error) {
	v, err := i.call(ctx, ExportErasablePtr, i.erasablePtr)
	return uint32(v), err
}

func (i *Instance) SetFixed(ctx context.Context, ptr uint32) error {
	_, err := i.call(ctx, ExportSetFixed, i.setFixed, uint64(ptr))
	return err
}

func (i *Instance) Malloc(ctx context.Context, size uint32) (uint32, error) {
	v, err := i.call(ctx, ExportMalloc, i.malloc, uint64(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, err)
	}
	if v == 0 && size > 0 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, nil)
	}
	return uint32(v), nil
}

func (i *Instance) Free(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	_, err := i.call(ctx, ExportFree, i.free, uint64(ptr))
	return err
}

// Call invokes any export by name with raw core values.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	i.stackMutex.Lock()
	mod := i.module
	i.stackMutex.Unlock()
	if mod == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "core instance")
	}

	fn := mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

// Close closes the core module. The engine still owns the runtime.
func (i *Instance) Close(ctx context.Context) error {
	i.stackMutex.Lock()
	defer i.stackMutex.Unlock()

	if i.module == nil {
		return nil
	}
	err := i.module.Close(ctx)
	i.module = nil
	return err
}
