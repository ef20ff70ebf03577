// Package config holds the tunables for the daemon and adapter, loaded from
// an optional .telegram-mcp.yaml file at the project root.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = ".telegram-mcp.yaml"

// Config is the top-level configuration. Zero values are filled with
// defaults by Load; construct test configs via Default().
type Config struct {
	// PollInterval is how often the long-poll check reloads the session log.
	PollInterval Duration `yaml:"poll_interval,omitempty"`
	// MaxWaitSeconds caps check_question_answers wait_seconds regardless of
	// caller input.
	MaxWaitSeconds int `yaml:"max_wait_seconds,omitempty"`
	// DefaultTimeout is the IPC request timeout for methods without a
	// method-specific policy.
	DefaultTimeout Duration `yaml:"default_timeout,omitempty"`
	// DaemonStartTimeout bounds how long the launcher waits for a freshly
	// spawned daemon's socket to appear.
	DaemonStartTimeout Duration `yaml:"daemon_start_timeout,omitempty"`
	// SocketPollInterval is how often the launcher re-checks for the socket
	// file while the daemon is starting.
	SocketPollInterval Duration `yaml:"socket_poll_interval,omitempty"`
	// LockRetries is the maximum number of lock acquisition attempts.
	LockRetries int `yaml:"lock_retries,omitempty"`
	// LockBackoff is the initial lock retry delay; it doubles per attempt.
	LockBackoff Duration `yaml:"lock_backoff,omitempty"`
	// Debug enables debug-level logging.
	Debug bool `yaml:"debug,omitempty"`
}

// Duration wraps time.Duration to unmarshal from human-readable YAML strings
// like "5s" or "2m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns a Config with all defaults filled in.
func Default() *Config {
	return &Config{
		PollInterval:       Duration{5 * time.Second},
		MaxWaitSeconds:     300,
		DefaultTimeout:     Duration{30 * time.Second},
		DaemonStartTimeout: Duration{10 * time.Second},
		SocketPollInterval: Duration{200 * time.Millisecond},
		LockRetries:        8,
		LockBackoff:        Duration{10 * time.Millisecond},
	}
}

// Load reads .telegram-mcp.yaml from the project root, falling back to
// defaults when the file does not exist. Unset fields keep their defaults.
// TELEGRAM_MCP_DEBUG=1 in the environment forces Debug on.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	fp := filepath.Join(projectRoot, configFileName)
	data, err := os.ReadFile(fp)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", fp, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", fp, err)
		}
		cfg.fillDefaults()
	}

	if os.Getenv("TELEGRAM_MCP_DEBUG") == "1" {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults replaces zero values left by partial YAML with defaults.
func (c *Config) fillDefaults() {
	def := Default()
	if c.PollInterval.Duration == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxWaitSeconds == 0 {
		c.MaxWaitSeconds = def.MaxWaitSeconds
	}
	if c.DefaultTimeout.Duration == 0 {
		c.DefaultTimeout = def.DefaultTimeout
	}
	if c.DaemonStartTimeout.Duration == 0 {
		c.DaemonStartTimeout = def.DaemonStartTimeout
	}
	if c.SocketPollInterval.Duration == 0 {
		c.SocketPollInterval = def.SocketPollInterval
	}
	if c.LockRetries == 0 {
		c.LockRetries = def.LockRetries
	}
	if c.LockBackoff.Duration == 0 {
		c.LockBackoff = def.LockBackoff
	}
}

// Validate checks that configured values are usable.
func (c *Config) Validate() error {
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxWaitSeconds <= 0 {
		return fmt.Errorf("max_wait_seconds must be positive, got %d", c.MaxWaitSeconds)
	}
	if c.DefaultTimeout.Duration <= 0 {
		return fmt.Errorf("default_timeout must be positive, got %s", c.DefaultTimeout)
	}
	if c.LockRetries <= 0 {
		return fmt.Errorf("lock_retries must be positive, got %d", c.LockRetries)
	}
	return nil
}
