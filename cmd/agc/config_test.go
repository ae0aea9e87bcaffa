package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "agc.toml", `
module = "yaAGC.wasm"
program = "Luminary099.bin"
divisor = "inf"
tick = "50ms"
memory-pages = 8
headless = true
mask-inputs = true

[files]
"/core.bin" = "core.bin"
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "yaAGC.wasm", cfg.Module)
	assert.Equal(t, "Luminary099.bin", cfg.Program)
	assert.Equal(t, 50*time.Millisecond, cfg.Tick)
	assert.Equal(t, uint32(8), cfg.MemoryPages)
	assert.True(t, cfg.Headless)
	assert.True(t, cfg.MaskInputs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, map[string]string{"/core.bin": "core.bin"}, cfg.Files)
	assert.NoError(t, cfg.validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Error(t, cfg.validate())

	cfg.Synthetic = true
	assert.NoError(t, cfg.validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = loadConfig(writeFile(t, "bad.toml", `module = `))
	assert.Error(t, err)

	_, err = loadConfig(writeFile(t, "typo.toml", `modul = "x.wasm"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modul")
}

func TestParseDivisor(t *testing.T) {
	for _, s := range []string{"inf", "Paused", "+Inf"} {
		d, err := parseDivisor(s)
		require.NoError(t, err, s)
		assert.True(t, math.IsInf(d, 1), s)
	}

	d, err := parseDivisor("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, d)

	for _, s := range []string{"0", "-1", "NaN", "fast"} {
		_, err := parseDivisor(s)
		assert.Error(t, err, s)
	}
}

func TestReadFiles(t *testing.T) {
	host := writeFile(t, "core.bin", "rope")
	cfg := Config{Files: map[string]string{"/core.bin": host}}

	files, err := cfg.readFiles()
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"/core.bin": []byte("rope")}, files)

	cfg.Files["/missing"] = filepath.Join(t.TempDir(), "nope")
	_, err = cfg.readFiles()
	assert.Error(t, err)
}
