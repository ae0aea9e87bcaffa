package engine

import (
	"context"
	"io"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/agc-bridge/errors"
)

// DefaultMemoryPages is the initial size of the shared memory (64KiB pages).
const DefaultMemoryPages = 5

// Config holds configuration for engine creation
type Config struct {
	// Files is the in-memory root filesystem, keyed by guest path.
	Files map[string][]byte

	// Stdout and Stderr receive guest output. nil logs it line by line.
	Stdout io.Writer
	Stderr io.Writer

	// Logger defaults to the package logger.
	Logger *zap.Logger

	// Contract overrides the required export set. nil means DefaultContract.
	Contract *Contract

	// HostDir mounts a host directory at "/" instead of Files.
	HostDir string

	// Args are the WASI command-line arguments, program name first.
	Args []string

	// MemoryPages is the initial shared memory size. 0 means DefaultMemoryPages.
	MemoryPages uint32

	// MaxMemoryPages bounds memory growth. 0 leaves the memory unbounded.
	MaxMemoryPages uint32
}

func (c Config) withDefaults() Config {
	if c.MemoryPages == 0 {
		c.MemoryPages = DefaultMemoryPages
	}
	if c.MaxMemoryPages != 0 && c.MaxMemoryPages < c.MemoryPages {
		c.MaxMemoryPages = c.MemoryPages
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	if c.Contract == nil {
		c.Contract = DefaultContract()
	}
	return c
}

// Engine owns one wazero runtime. It is not shared across VMs.
type Engine struct {
	runtime wazero.Runtime
	log     *zap.Logger
	stdout  *lineWriter
	stderr  *lineWriter
	cfg     Config
}

// NewEngine creates an engine with its own runtime and WASI shim.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MaxMemoryPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MaxMemoryPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := instantiateWASI(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, errors.InstantiationError("instantiate WASI", err)
	}

	e := &Engine{
		runtime: r,
		log:     cfg.Logger,
		cfg:     cfg,
	}
	if cfg.Stdout == nil {
		e.stdout = newLineWriter(cfg.Logger, "stdout")
		e.cfg.Stdout = e.stdout
	}
	if cfg.Stderr == nil {
		e.stderr = newLineWriter(cfg.Logger, "stderr")
		e.cfg.Stderr = e.stderr
	}
	return e, nil
}

// Runtime exposes the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases the runtime and every module instantiated in it.
func (e *Engine) Close(ctx context.Context) error {
	if e.stdout != nil {
		e.stdout.Flush()
	}
	if e.stderr != nil {
		e.stderr.Flush()
	}
	return e.runtime.Close(ctx)
}

func (e *Engine) moduleConfig() wazero.ModuleConfig {
	mc := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions(startInitialize).
		WithFSConfig(fsConfig(&e.cfg)).
		WithStdout(e.cfg.Stdout).
		WithStderr(e.cfg.Stderr).
		WithSysWalltime().
		WithSysNanotime()
	if len(e.cfg.Args) > 0 {
		mc = mc.WithArgs(e.cfg.Args...)
	}
	return mc
}
