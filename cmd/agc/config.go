package main

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/agc-bridge/scheduler"
)

// Config is the agc.toml file. Command-line flags override it.
type Config struct {
	// Files maps guest paths to host files loaded into the root filesystem.
	Files map[string]string `toml:"files"`

	Module   string `toml:"module"`
	Program  string `toml:"program"`
	Divisor  string `toml:"divisor"`
	LogLevel string `toml:"log-level"`
	LogFile  string `toml:"log-file"`
	Script   string `toml:"script"`
	Snapshot string `toml:"snapshot"`
	HostDir  string `toml:"host-dir"`

	Tick     time.Duration `toml:"tick"`
	Duration time.Duration `toml:"duration"`

	MemoryPages uint32 `toml:"memory-pages"`

	// MaskInputs writes the input mask channels at boot instead of the
	// default channel 0 packets.
	MaskInputs bool `toml:"mask-inputs"`

	Synthetic bool `toml:"synthetic"`
	Headless  bool `toml:"headless"`
	Dump      bool `toml:"dump"`
}

func defaultConfig() Config {
	return Config{
		Divisor:  "1",
		LogLevel: "info",
		Tick:     scheduler.TickInterval,
	}
}

// loadConfig reads path over the defaults. Unknown keys are an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return cfg, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Module == "" && !c.Synthetic {
		return fmt.Errorf("no core module: set module or synthetic")
	}
	if _, err := parseDivisor(c.Divisor); err != nil {
		return err
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %v", c.Tick)
	}
	return nil
}

// parseDivisor accepts a positive number, or "inf"/"paused".
func parseDivisor(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inf", "paused", "pause":
		return scheduler.Paused, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid divisor %q", s)
	}
	if math.IsInf(d, 1) {
		return scheduler.Paused, nil
	}
	if err := scheduler.ValidateDivisor(d); err != nil {
		return 0, err
	}
	return d, nil
}

// readFiles loads the configured guest files.
func (c Config) readFiles() (map[string][]byte, error) {
	if len(c.Files) == 0 {
		return nil, nil
	}
	out := make(map[string][]byte, len(c.Files))
	for guest, host := range c.Files {
		data, err := os.ReadFile(host)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", guest, err)
		}
		out[guest] = data
	}
	return out, nil
}
