package mimic

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Default scan and buffer bounds.
const (
	DefaultMaxStringChars   = 1024
	DefaultMaxSymbolicChars = 128
	DefaultMaxConvertChars  = 1024
	DefaultMaxPathBytes     = 4096
	DefaultMaxLineBytes     = 128
)

// Limits bounds the work performed per summary call.
type Limits struct {
	// Maximum string length, in characters, considered by length and
	// search summaries.
	MaxStringChars uint64 `toml:"max_string_chars"`

	// Maximum number of symbolic candidate positions per memory scan.
	MaxSymbolicChars int `toml:"max_symbolic_chars"`

	// Maximum number of characters processed by string conversion summaries.
	MaxConvertChars uint64 `toml:"max_convert_chars"`

	// Size of buffers allocated for file system paths.
	MaxPathBytes uint64 `toml:"max_path_bytes"`

	// Size of buffers allocated by line readers.
	MaxLineBytes uint64 `toml:"max_line_bytes"`

	// Per-query solver timeout. Zero means no timeout.
	SolverTimeoutMillis uint `toml:"solver_timeout_ms"`
}

// DefaultLimits returns the default per-call bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxStringChars:   DefaultMaxStringChars,
		MaxSymbolicChars: DefaultMaxSymbolicChars,
		MaxConvertChars:  DefaultMaxConvertChars,
		MaxPathBytes:     DefaultMaxPathBytes,
		MaxLineBytes:     DefaultMaxLineBytes,
	}
}

// Config represents configuration for a machine and its initial state.
type Config struct {
	// Architecture name. See ArchByName for accepted values.
	Arch string `toml:"arch"`

	// Initial environment as "KEY=VALUE" strings.
	Env []string `toml:"env"`

	// Per-call bounds.
	Limits Limits `toml:"limits"`
}

// DefaultConfig returns a config with default settings.
func DefaultConfig() Config {
	return Config{
		Arch:   "amd64",
		Limits: DefaultLimits(),
	}
}

// LoadConfig reads a TOML config file at path, applied over defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	buf, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := toml.Unmarshal(buf, &config); err != nil {
		return config, fmt.Errorf("parse config: %w", err)
	}

	if _, ok := ArchByName(config.Arch); !ok {
		return config, fmt.Errorf("unknown arch: %q", config.Arch)
	}
	return config, nil
}
