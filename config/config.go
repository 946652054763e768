package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full runtime configuration for a lockvault engine.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Logging     LoggingConfig     `yaml:"logging"`
	Compression CompressionConfig `yaml:"compression"`
}

// EngineConfig sizes the fixed resources the transaction engine allocates
// up front: the transaction slot pool and the key-bucket index space
// shared by the lock table and the KV map.
type EngineConfig struct {
	MaxTransactions  int           `yaml:"max_transactions" env:"LOCKVAULT_MAX_TRANSACTIONS"`
	MaxKeys          int           `yaml:"max_keys" env:"LOCKVAULT_MAX_KEYS"`
	MaxWritesPerTxn  int           `yaml:"max_writes_per_txn" env:"LOCKVAULT_MAX_WRITES_PER_TXN"`
	KeyLengthMax     int           `yaml:"key_length_max" env:"LOCKVAULT_KEY_LENGTH_MAX"`
	WaitPollInterval time.Duration `yaml:"wait_poll_interval" env:"LOCKVAULT_WAIT_POLL_INTERVAL"`
}

// LoggingConfig holds the handful of fields the diagnostic logger needs;
// no file rotation or multi-sink fan-out, since this engine has no WAL or
// query executor of its own to log alongside.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOCKVAULT_LOG_LEVEL"`
	Format string `yaml:"format" env:"LOCKVAULT_LOG_FORMAT"`
	Output string `yaml:"output" env:"LOCKVAULT_LOG_OUTPUT"`
}

// CompressionConfig controls the optional transparent value compression
// layer. Algorithm is one of "none", "snappy", "zstd", "lz4".
type CompressionConfig struct {
	Algorithm string `yaml:"algorithm" env:"LOCKVAULT_COMPRESSION_ALGORITHM"`
	MinSize   int    `yaml:"min_size" env:"LOCKVAULT_COMPRESSION_MIN_SIZE"`
}

// Default returns a configuration with the engine's default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxTransactions:  32,
			MaxKeys:          128,
			MaxWritesPerTxn:  64,
			KeyLengthMax:     64,
			WaitPollInterval: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Compression: CompressionConfig{
			Algorithm: "none",
			MinSize:   256,
		},
	}
}

// WithDefaults fills any zero-valued field of ec with the package default,
// so a caller supplying a partial EngineConfig literal still gets sane
// sizing for everything they did not set.
func (ec EngineConfig) WithDefaults() EngineConfig {
	d := Default().Engine
	if ec.MaxTransactions <= 0 {
		ec.MaxTransactions = d.MaxTransactions
	}
	if ec.MaxKeys <= 0 {
		ec.MaxKeys = d.MaxKeys
	}
	if ec.MaxWritesPerTxn <= 0 {
		ec.MaxWritesPerTxn = d.MaxWritesPerTxn
	}
	if ec.KeyLengthMax <= 0 {
		ec.KeyLengthMax = d.KeyLengthMax
	}
	if ec.WaitPollInterval <= 0 {
		ec.WaitPollInterval = d.WaitPollInterval
	}
	return ec
}

// Load reads a YAML config file from path and layers it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg's fields from the LOCKVAULT_* environment
// variables named in each field's env tag.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("LOCKVAULT_MAX_TRANSACTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LOCKVAULT_MAX_TRANSACTIONS: %w", err)
		}
		c.Engine.MaxTransactions = n
	}
	if v := os.Getenv("LOCKVAULT_MAX_KEYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LOCKVAULT_MAX_KEYS: %w", err)
		}
		c.Engine.MaxKeys = n
	}
	if v := os.Getenv("LOCKVAULT_MAX_WRITES_PER_TXN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LOCKVAULT_MAX_WRITES_PER_TXN: %w", err)
		}
		c.Engine.MaxWritesPerTxn = n
	}
	if v := os.Getenv("LOCKVAULT_KEY_LENGTH_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LOCKVAULT_KEY_LENGTH_MAX: %w", err)
		}
		c.Engine.KeyLengthMax = n
	}
	if v := os.Getenv("LOCKVAULT_WAIT_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: LOCKVAULT_WAIT_POLL_INTERVAL: %w", err)
		}
		c.Engine.WaitPollInterval = d
	}

	if v := os.Getenv("LOCKVAULT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOCKVAULT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("LOCKVAULT_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	if v := os.Getenv("LOCKVAULT_COMPRESSION_ALGORITHM"); v != "" {
		c.Compression.Algorithm = strings.ToLower(v)
	}
	if v := os.Getenv("LOCKVAULT_COMPRESSION_MIN_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LOCKVAULT_COMPRESSION_MIN_SIZE: %w", err)
		}
		c.Compression.MinSize = n
	}

	return nil
}

// Validate checks that the configuration describes a usable engine.
func (c *Config) Validate() error {
	if c.Engine.MaxTransactions <= 0 {
		return fmt.Errorf("config: max_transactions must be positive")
	}
	if c.Engine.MaxKeys <= 0 {
		return fmt.Errorf("config: max_keys must be positive")
	}
	if c.Engine.MaxWritesPerTxn <= 0 {
		return fmt.Errorf("config: max_writes_per_txn must be positive")
	}
	if c.Engine.KeyLengthMax <= 0 {
		return fmt.Errorf("config: key_length_max must be positive")
	}
	if c.Engine.WaitPollInterval <= 0 {
		return fmt.Errorf("config: wait_poll_interval must be positive")
	}

	switch c.Compression.Algorithm {
	case "none", "snappy", "zstd", "lz4":
	default:
		return fmt.Errorf("config: unknown compression algorithm %q", c.Compression.Algorithm)
	}

	return nil
}
