package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradeterm client tools.
type Config struct {
	Terminal Terminal `yaml:"terminal"`
	Defaults Defaults `yaml:"defaults"`
	Retry    Retry    `yaml:"retry"`
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
}

// Terminal holds the endpoint and credentials for the trading terminal
// bridge.
type Terminal struct {
	Endpoint string `yaml:"endpoint"` // e.g. ws://127.0.0.1:18812/terminal
	Login    uint64 `yaml:"login"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"` // broker server name, e.g. "Demo-MT5"
}

// Defaults holds per-call defaults applied when the caller does not specify
// its own values.
type Defaults struct {
	Symbol         string   `yaml:"symbol"`
	CallTimeout    Duration `yaml:"call_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// Retry controls the request executor's retry-and-reconnect policy.
// RateLimitPerMinute, when positive, throttles outgoing calls.
type Retry struct {
	MaxAttempts        int      `yaml:"max_attempts"`
	BaseDelay          Duration `yaml:"base_delay"`
	MaxDelay           Duration `yaml:"max_delay"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
}

// Storage holds paths for the order journal and recorded tick data.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, fills defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMINAL_ENDPOINT"); v != "" {
		cfg.Terminal.Endpoint = v
	}
	if v := os.Getenv("TERMINAL_LOGIN"); v != "" {
		if login, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Terminal.Login = login
		}
	}
	if v := os.Getenv("TERMINAL_PASSWORD"); v != "" {
		cfg.Terminal.Password = v
	}
	if v := os.Getenv("TERMINAL_SERVER"); v != "" {
		cfg.Terminal.Server = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDefaults fills zero-valued fields with the defaults used throughout
// the client.
func applyDefaults(cfg *Config) {
	if cfg.Defaults.CallTimeout.Duration <= 0 {
		cfg.Defaults.CallTimeout.Duration = 30 * time.Second
	}
	if cfg.Defaults.ConnectTimeout.Duration <= 0 {
		cfg.Defaults.ConnectTimeout.Duration = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.BaseDelay.Duration <= 0 {
		cfg.Retry.BaseDelay.Duration = 500 * time.Millisecond
	}
	if cfg.Retry.MaxDelay.Duration <= 0 {
		cfg.Retry.MaxDelay.Duration = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate reports configuration that cannot possibly connect to a terminal.
func (c *Config) Validate() error {
	if c.Terminal.Endpoint == "" {
		return fmt.Errorf("config: terminal.endpoint is required")
	}
	if c.Terminal.Login == 0 {
		return fmt.Errorf("config: terminal.login is required")
	}
	if c.Retry.BaseDelay.Duration > c.Retry.MaxDelay.Duration {
		return fmt.Errorf("config: retry.base_delay %v exceeds retry.max_delay %v",
			c.Retry.BaseDelay.Duration, c.Retry.MaxDelay.Duration)
	}
	return nil
}
