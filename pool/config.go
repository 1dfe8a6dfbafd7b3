package pool

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var ErrInvalidConfig = errors.New("invalid pool config")

const (
	DefaultMinimumThreads = 1
	DefaultMaximumThreads = 16
)

// Config sizes a pool. StartingThreads workers are started at construction;
// MinimumThreads and MaximumThreads only bound the allowed starting size,
// the worker count never changes afterwards.
type Config struct {
	MinimumThreads  int `yaml:"minimum_threads"`
	MaximumThreads  int `yaml:"maximum_threads"`
	StartingThreads int `yaml:"starting_threads"`
}

func DefaultConfig() Config {
	return Config{
		MinimumThreads:  DefaultMinimumThreads,
		MaximumThreads:  DefaultMaximumThreads,
		StartingThreads: DefaultMinimumThreads,
	}
}

// WithDefaults fills zero fields: minimum 1, maximum at least 16 and large
// enough for the starting count, starting equal to minimum.
func (c Config) WithDefaults() Config {
	if c.MinimumThreads == 0 {
		c.MinimumThreads = DefaultMinimumThreads
	}
	if c.StartingThreads == 0 {
		c.StartingThreads = c.MinimumThreads
	}
	if c.MaximumThreads == 0 {
		c.MaximumThreads = max(DefaultMaximumThreads, c.StartingThreads, c.MinimumThreads)
	}
	return c
}

func (c Config) Validate() error {
	switch {
	case c.MinimumThreads < 1:
		return fmt.Errorf("%w: minimum threads must be at least 1, got %d", ErrInvalidConfig, c.MinimumThreads)
	case c.MaximumThreads < c.MinimumThreads:
		return fmt.Errorf("%w: maximum threads %d is below minimum %d", ErrInvalidConfig, c.MaximumThreads, c.MinimumThreads)
	case c.StartingThreads < c.MinimumThreads || c.StartingThreads > c.MaximumThreads:
		return fmt.Errorf("%w: starting threads %d outside [%d, %d]", ErrInvalidConfig, c.StartingThreads, c.MinimumThreads, c.MaximumThreads)
	}
	return nil
}

type options struct {
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	starter ThreadStarter
}

func defaultOptions() options {
	return options{
		logger:  slog.New(disabledHandler{}),
		tracer:  noop.NewTracerProvider().Tracer(""),
		starter: GoroutineStarter(),
	}
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records pool activity into m. See NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer opens one span per executed task.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithThreadStarter replaces the goroutine-backed thread provider.
func WithThreadStarter(s ThreadStarter) Option {
	return func(o *options) {
		if s != nil {
			o.starter = s
		}
	}
}
