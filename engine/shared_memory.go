package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	agcbridge "github.com/wippyai/agc-bridge"
	"github.com/wippyai/agc-bridge/errors"
	"github.com/wippyai/agc-bridge/internal/wasmbin"
	"github.com/wippyai/agc-bridge/memory"
)

// HostFunc is a caller-supplied import with an explicit core signature.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Params  []api.ValueType
	Results []api.ValueType
}

// Imports maps module name to function name to host function.
type Imports map[string]map[string]HostFunc

// SharedMemory is the linear memory handed to the core as env.memory.
type SharedMemory struct {
	module api.Module
	mem    agcbridge.Memory
	funcs  map[string]struct{}
	pages  uint32
}

// Memory returns the bounds-checked view.
func (s *SharedMemory) Memory() agcbridge.Memory {
	return s.mem
}

// Pages returns the initial page count.
func (s *SharedMemory) Pages() uint32 {
	return s.pages
}

// provides reports whether env re-exports the named function.
func (s *SharedMemory) provides(name string) bool {
	_, ok := s.funcs[name]
	return ok
}

// NewSharedMemory instantiates the env module: a generated wasm module that
// defines the memory and re-exports env host functions, since a host module
// cannot export a memory itself.
func (e *Engine) NewSharedMemory(ctx context.Context, env map[string]HostFunc) (*SharedMemory, error) {
	if _, clash := env[MemoryName]; clash {
		return nil, errors.LinkError("env function %q collides with the shared memory export", MemoryName)
	}
	if e.runtime.Module(EnvModule) != nil {
		return nil, errors.LinkError("shared memory already created for this engine")
	}

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		builder := e.runtime.NewHostModuleBuilder(envHostModule)
		for _, name := range names {
			hf := env[name]
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(hf.Fn, hf.Params, hf.Results).
				Export(name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return nil, errors.InstantiationError("instantiate env host functions", err)
		}
	}

	limits := wasmbin.Limits{Min: e.cfg.MemoryPages}
	if e.cfg.MaxMemoryPages > 0 {
		maxPages := e.cfg.MaxMemoryPages
		limits.Max = &maxPages
	}
	m := &wasmbin.Module{Memories: []wasmbin.Limits{limits}}
	for i, name := range names {
		hf := env[name]
		m.Imports = append(m.Imports, wasmbin.Import{
			Module:  envHostModule,
			Name:    name,
			Kind:    wasmbin.KindFunc,
			TypeIdx: m.AddType(valTypes(hf.Params), valTypes(hf.Results)),
		})
		m.Exports = append(m.Exports, wasmbin.Export{Name: name, Kind: wasmbin.KindFunc, Index: uint32(i)})
	}
	m.Exports = append(m.Exports, wasmbin.Export{Name: MemoryName, Kind: wasmbin.KindMemory, Index: 0})

	mod, err := e.runtime.InstantiateWithConfig(ctx, m.Encode(), wazero.NewModuleConfig().WithName(EnvModule))
	if err != nil {
		return nil, errors.InstantiationError("instantiate shared memory", err)
	}

	funcs := make(map[string]struct{}, len(names))
	for _, name := range names {
		funcs[name] = struct{}{}
	}

	e.log.Debug("shared memory created",
		zap.Uint32("pages", e.cfg.MemoryPages),
		zap.Uint32("max_pages", e.cfg.MaxMemoryPages),
		zap.Strings("env_funcs", names))

	return &SharedMemory{
		module: mod,
		mem:    memory.Wrap(mod.ExportedMemory(MemoryName)),
		funcs:  funcs,
		pages:  e.cfg.MemoryPages,
	}, nil
}

func valTypes(types []api.ValueType) []wasmbin.ValType {
	out := make([]wasmbin.ValType, len(types))
	for i, t := range types {
		out[i] = wasmbin.ValType(t)
	}
	return out
}
