package litepool

import (
	"fmt"
	"os"
	"time"

	"github.com/jirevwe/litepool/pool"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDBPath       = "litepool.db"
	DefaultPollInterval = 10 * time.Millisecond
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 100 * time.Millisecond
)

// Config configures a Server. Durations are written as Go duration strings
// ("250ms", "1s") in YAML.
type Config struct {
	Pool pool.Config `yaml:"pool"`

	// DBPath is the sqlite file backing the store, unused when a queue is
	// injected with WithQueue
	DBPath string `yaml:"db_path"`

	// PollInterval is how long the server sleeps when the store has nothing
	// visible to claim
	PollInterval time.Duration `yaml:"poll_interval"`

	// VisibilityDelay is how long an enqueued message stays invisible
	VisibilityDelay time.Duration `yaml:"visibility_delay"`

	// MaxRetries and RetryDelay bound status writes after a task runs
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MetricsNamespace enables pool metrics when non-empty
	MetricsNamespace string `yaml:"metrics_namespace"`
}

func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills zero fields. A zero VisibilityDelay stays zero: messages
// are visible as soon as they are written.
func (c Config) WithDefaults() Config {
	c.Pool = c.Pool.WithDefaults()
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

func (c Config) Validate() error {
	switch {
	case c.PollInterval < 0:
		return fmt.Errorf("%w: poll interval must not be negative, got %s", pool.ErrInvalidConfig, c.PollInterval)
	case c.VisibilityDelay < 0:
		return fmt.Errorf("%w: visibility delay must not be negative, got %s", pool.ErrInvalidConfig, c.VisibilityDelay)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative, got %d", pool.ErrInvalidConfig, c.MaxRetries)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay must not be negative, got %s", pool.ErrInvalidConfig, c.RetryDelay)
	}

	return c.Pool.WithDefaults().Validate()
}

// LoadConfig reads a YAML file into a Config, fills defaults and validates
// the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg = cfg.WithDefaults()
	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
