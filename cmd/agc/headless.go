package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/agc-bridge/agc"
	"github.com/wippyai/agc-bridge/channel"
	"github.com/wippyai/agc-bridge/script"
	"github.com/wippyai/agc-bridge/snapshot"
)

// errFinished ends a headless run normally.
var errFinished = stderrors.New("run finished")

// runHeadless runs the VM until a signal, the configured duration, the end
// of the script, or an oscillator error.
func runHeadless(ctx context.Context, cfg Config, vmCfg agc.Config, image []byte, log *zap.Logger) error {
	divisor, err := parseDivisor(cfg.Divisor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	oscErr := make(chan error, 1)
	vmCfg.OnChannel = func(ch, v uint32) {
		log.Info("channel", zap.Stringer("packet", channel.Encode(ch, v)))
	}
	vmCfg.OnIndicators = func(bits uint32) {
		log.Info("lamps", zap.Strings("lit", channel.LampNames(bits)))
	}
	vmCfg.OnError = func(err error) {
		select {
		case oscErr <- err:
		default:
		}
	}

	vm := agc.New(ctx, vmCfg)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := vm.Close(closeCtx); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()

	if err := boot(ctx, vm, image, divisor); err != nil {
		return err
	}
	version, err := vm.Version(ctx)
	if err != nil {
		return err
	}
	log.Info("core running",
		zap.String("version", version),
		zap.String("clock", formatFrequency(vm.Frequency())))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err := <-oscErr:
			return err
		case <-gctx.Done():
			return nil
		}
	})
	if cfg.Duration > 0 {
		g.Go(func() error {
			select {
			case <-time.After(cfg.Duration):
				return errFinished
			case <-gctx.Done():
				return nil
			}
		})
	}
	if cfg.Script != "" {
		src, err := os.ReadFile(cfg.Script)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		runner := script.NewRunner(vm, script.Options{Logger: log.Named("script")})
		g.Go(func() error {
			if err := runner.Run(gctx, filepath.Base(cfg.Script), src); err != nil {
				return err
			}
			return errFinished
		})
	}

	err = g.Wait()
	vm.Stop()
	if err != nil && !stderrors.Is(err, errFinished) && !stderrors.Is(err, context.Canceled) {
		return err
	}

	log.Info("core stopped",
		zap.String("steps", formatSteps(vm.Steps())),
		zap.Uint64("resyncs", vm.Resyncs()))
	return writeSnapshot(ctx, vm, cfg)
}

// writeSnapshot saves and/or prints the final state as configured.
func writeSnapshot(ctx context.Context, vm *agc.VM, cfg Config) error {
	if cfg.Snapshot == "" && !cfg.Dump {
		return nil
	}
	// ctx may already be cancelled by the signal that ended the run
	ctx = context.WithoutCancel(ctx)

	snap, err := vm.Snapshot(ctx)
	if err != nil {
		return err
	}
	if cfg.Snapshot != "" {
		data, err := snapshot.Encode(snap)
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.Snapshot, data, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	if cfg.Dump {
		return snap.Dump(os.Stdout)
	}
	return nil
}
