package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/agc-bridge/internal/synthagc"
	"github.com/wippyai/agc-bridge/snapshot"
)

func TestRunHeadlessScript(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "state.cbor")
	scriptPath := writeFile(t, "boot.star", `
step(3)
keys("V35E", delay=0)
proceed()
`)

	err := run(context.Background(), []string{
		"-synthetic", "-headless",
		"-divisor", "inf",
		"-log", "error",
		"-script", scriptPath,
		"-snapshot", snapPath,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	snap, err := snapshot.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, synthagc.VersionString, snap.Version)
	assert.Equal(t, uint16(3), snap.Word(synthagc.AddrTIME1))
	assert.Equal(t, "04000", snap.Octal(synthagc.AddrZ))
}

func TestRunHeadlessDuration(t *testing.T) {
	err := run(context.Background(), []string{
		"-synthetic", "-headless", "-log", "error", "-duration", "20ms",
	})
	assert.NoError(t, err)
}

func TestRunRejectsBadConfig(t *testing.T) {
	assert.Error(t, run(context.Background(), []string{"-headless"}))
	assert.Error(t, run(context.Background(), []string{"-synthetic", "-headless", "-divisor", "0"}))
	assert.Error(t, run(context.Background(), []string{"-synthetic", "-headless", "-log", "loud"}))
	assert.Error(t, run(context.Background(), []string{"-module", filepath.Join(t.TempDir(), "none.wasm"), "-headless"}))
}

func TestRunScriptError(t *testing.T) {
	scriptPath := writeFile(t, "bad.star", `key("launch")`)
	err := run(context.Background(), []string{
		"-synthetic", "-headless", "-log", "error", "-divisor", "inf", "-script", scriptPath,
	})
	assert.Error(t, err)
}
