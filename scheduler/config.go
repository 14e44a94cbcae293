package scheduler

import (
	"fmt"
	"time"

	"github.com/vinayprograms/renderkit/admission"
	"github.com/vinayprograms/renderkit/ratelimit"
	"github.com/vinayprograms/renderkit/retry"
)

// Defaults for Config.
const (
	DefaultMaxPerMinute  = 50
	DefaultIncreaseEvery = 10
	DefaultCallTimeout   = 5 * time.Minute
)

// Config holds the plain numeric knobs of a batch.
type Config struct {
	InitialConcurrency int `toml:"initial_concurrency"`
	MinConcurrency     int `toml:"min_concurrency"`
	MaxConcurrency     int `toml:"max_concurrency"`

	// DecreaseStep is how far one throttle lowers the limit. Default: 2
	DecreaseStep int `toml:"decrease_step"`

	// IncreaseEvery raises the limit by one after this many successes.
	// Default: 10
	IncreaseEvery int `toml:"increase_every"`

	// MaxPerMinute bounds render calls per minute. Negative means
	// unlimited. Default: 50
	MaxPerMinute int `toml:"max_per_minute"`

	// CallTimeout bounds a single render call. Default: 5m
	CallTimeout time.Duration `toml:"call_timeout"`

	Retry retry.Config `toml:"-"`
}

// DefaultConfig returns the default knobs.
func DefaultConfig() Config {
	return Config{
		InitialConcurrency: admission.DefaultInitial,
		MinConcurrency:     admission.DefaultMin,
		MaxConcurrency:     admission.DefaultMax,
		DecreaseStep:       admission.DefaultDecreaseStep,
		IncreaseEvery:      DefaultIncreaseEvery,
		MaxPerMinute:       DefaultMaxPerMinute,
		CallTimeout:        DefaultCallTimeout,
		Retry:              retry.DefaultConfig(),
	}
}

// ApplyDefaults fills zero fields from DefaultConfig. When only
// MaxConcurrency is set below the default initial value, the initial
// value follows it down.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.MinConcurrency <= 0 {
		c.MinConcurrency = def.MinConcurrency
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.MinConcurrency > c.MaxConcurrency {
		c.MinConcurrency = c.MaxConcurrency
	}
	if c.InitialConcurrency <= 0 {
		c.InitialConcurrency = def.InitialConcurrency
		if c.InitialConcurrency > c.MaxConcurrency {
			c.InitialConcurrency = c.MaxConcurrency
		}
		if c.InitialConcurrency < c.MinConcurrency {
			c.InitialConcurrency = c.MinConcurrency
		}
	}
	if c.DecreaseStep <= 0 {
		c.DecreaseStep = def.DecreaseStep
	}
	if c.IncreaseEvery <= 0 {
		c.IncreaseEvery = def.IncreaseEvery
	}
	if c.MaxPerMinute == 0 {
		c.MaxPerMinute = def.MaxPerMinute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
}

// Validate checks the concurrency bounds.
func (c *Config) Validate() error {
	ac := c.Admission()
	if err := ac.Validate(); err != nil {
		return fmt.Errorf("%w: initial=%d min=%d max=%d step=%d",
			err, ac.Initial, ac.Min, ac.Max, ac.Step)
	}
	return nil
}

// Admission returns the concurrency part of the config.
func (c *Config) Admission() admission.Config {
	return admission.Config{
		Initial: c.InitialConcurrency,
		Min:     c.MinConcurrency,
		Max:     c.MaxConcurrency,
		Step:    c.DecreaseStep,
	}
}

// Budgets builds a fresh concurrency budget, rate bucket and retry policy
// from the config.
func (c Config) Budgets(opts ...admission.Option) (*admission.Budget, *ratelimit.Bucket, *retry.Policy, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, nil, nil, err
	}
	budget, err := admission.New(c.Admission(), opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	return budget, ratelimit.New(c.MaxPerMinute), retry.New(c.Retry), nil
}
