// Package config handles TOML configuration parsing for the chatrelay
// broker.  It loads configuration from chatrelay.toml, applies environment
// variable overrides (prefixed with CHATRELAY_), and provides defaults for
// all settings so the broker runs with no config file at all.
package config

import (
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration for a broker instance.
type Config struct {
	Listen  ListenConfig  `toml:"listen"`
	Limits  LimitsConfig  `toml:"limits"`
	Logging LoggingConfig `toml:"logging"`
}

// ListenConfig defines the TCP listener settings.
type ListenConfig struct {
	Addr string `toml:"addr"`
}

// LimitsConfig bounds resource use per transfer and per session.
type LimitsConfig struct {
	// MaxFileSize caps the declared total_size of a chunked transfer, bytes.
	MaxFileSize int64 `toml:"max_file_size"`
	// MaxInlineFileSize caps the decoded payload of a one-shot file, bytes.
	MaxInlineFileSize int64 `toml:"max_inline_file_size"`
	// SendBuffer is the per-session outbound queue depth, in frames.
	SendBuffer int `toml:"send_buffer"`
}

// LoggingConfig defines structured logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// defaults returns a Config with the stock values for all fields.
func defaults() Config {
	return Config{
		Listen: ListenConfig{
			Addr: "0.0.0.0:12345",
		},
		Limits: LimitsConfig{
			MaxFileSize:       100 * 1024 * 1024,
			MaxInlineFileSize: 200 * 1024,
			SendBuffer:        256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from the given TOML file path, applies
// defaults for missing values, and then applies environment variable
// overrides.  A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables when
// set.  Variables use the prefix CHATRELAY_ followed by the section and
// field name in uppercase (e.g. CHATRELAY_LISTEN_ADDR).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATRELAY_LISTEN_ADDR"); v != "" {
		cfg.Listen.Addr = v
	}
	if v := os.Getenv("CHATRELAY_LIMITS_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MaxFileSize = n
		}
	}
	if v := os.Getenv("CHATRELAY_LIMITS_MAX_INLINE_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MaxInlineFileSize = n
		}
	}
	if v := os.Getenv("CHATRELAY_LIMITS_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.SendBuffer = n
		}
	}
	if v := os.Getenv("CHATRELAY_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHATRELAY_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
