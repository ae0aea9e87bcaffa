// Command agc runs an AGC emulator core compiled to WebAssembly.
//
// With a terminal attached it shows a DSKY-style panel and types keyboard
// input on the keypad; otherwise, or with -headless, it runs the core,
// logs channel activity and optionally drives it with a Starlark script.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/agc-bridge/agc"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/engine"
	"github.com/wippyai/agc-bridge/internal/synthagc"
	"github.com/wippyai/agc-bridge/scheduler"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agc", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "Path to agc.toml")
		module     = fs.String("module", "", "Path to the emulator core wasm module")
		program    = fs.String("program", "", "Program image (rope) to load")
		divisor    = fs.String("divisor", "", "Clock divisor; inf pauses")
		tick       = fs.Duration("tick", 0, "Scheduler tick interval")
		pages      = fs.Uint("pages", 0, "Initial shared memory pages")
		logLevel   = fs.String("log", "", "Log level (debug, info, warn, error)")
		logFile    = fs.String("log-file", "", "Write logs to this file")
		scriptPath = fs.String("script", "", "Starlark script to run (headless)")
		snapPath   = fs.String("snapshot", "", "Write a CBOR snapshot here on exit")
		duration   = fs.Duration("duration", 0, "Stop after this long (headless)")
		maskInputs = fs.Bool("mask-inputs", false, "Write the input mask channels at boot")
		synthetic  = fs.Bool("synthetic", false, "Use the built-in synthetic core")
		headless   = fs.Bool("headless", false, "Run without the terminal panel")
		dump       = fs.Bool("dump", false, "Print erasable memory on exit (headless)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "module":
			cfg.Module = *module
		case "program":
			cfg.Program = *program
		case "divisor":
			cfg.Divisor = *divisor
		case "tick":
			cfg.Tick = *tick
		case "pages":
			cfg.MemoryPages = uint32(*pages)
		case "log":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		case "script":
			cfg.Script = *scriptPath
		case "snapshot":
			cfg.Snapshot = *snapPath
		case "duration":
			cfg.Duration = *duration
		case "mask-inputs":
			cfg.MaskInputs = *maskInputs
		case "synthetic":
			cfg.Synthetic = *synthetic
		case "headless":
			cfg.Headless = *headless
		case "dump":
			cfg.Dump = *dump
		}
	})
	if err := cfg.validate(); err != nil {
		fs.Usage()
		return err
	}

	interactive := !cfg.Headless && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))

	log, err := newLogger(cfg.LogLevel, cfg.LogFile, interactive)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log.Named("engine"))

	vmCfg, err := vmConfig(cfg, log)
	if err != nil {
		return err
	}

	var image []byte
	if cfg.Program != "" {
		image, err = os.ReadFile(cfg.Program)
		if err != nil {
			return fmt.Errorf("read program: %w", err)
		}
	}

	if interactive {
		return runInteractive(ctx, cfg, vmCfg, image)
	}
	return runHeadless(ctx, cfg, vmCfg, image, log)
}

// vmConfig translates the file config into a VM config.
func vmConfig(cfg Config, log *zap.Logger) (agc.Config, error) {
	files, err := cfg.readFiles()
	if err != nil {
		return agc.Config{}, err
	}

	var wasm []byte
	if cfg.Synthetic {
		wasm = synthagc.Module()
	} else {
		wasm, err = os.ReadFile(cfg.Module)
		if err != nil {
			return agc.Config{}, fmt.Errorf("read module: %w", err)
		}
	}

	var writes []channel.Update
	if cfg.MaskInputs {
		writes = agc.MaskedInitialWrites()
	}

	return agc.Config{
		Module:        wasm,
		Logger:        log.Named("vm"),
		InitialWrites: writes,
		Engine: engine.Config{
			Files:       files,
			HostDir:     cfg.HostDir,
			Args:        []string{"agc"},
			MemoryPages: cfg.MemoryPages,
			Logger:      log.Named("engine"),
		},
		Scheduler: scheduler.Config{
			TickInterval: cfg.Tick,
			Logger:       log.Named("scheduler"),
		},
	}, nil
}

// boot waits for the VM, installs the program image and starts it.
func boot(ctx context.Context, vm *agc.VM, image []byte, divisor float64) error {
	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := vm.Ready(readyCtx); err != nil {
		return err
	}
	if len(image) > 0 {
		if err := vm.LoadProgram(ctx, image); err != nil {
			return err
		}
	}
	if err := vm.Reset(ctx); err != nil {
		return err
	}
	return vm.Start(ctx, divisor)
}
