// Package retry decides whether a failed render attempt is retried and how
// long to wait first.
//
// Failures are classified from the structured error taxonomy in the errors
// package: resource errors (rate limit, quota) are RateLimited, transient
// errors (overload, timeout) are Transient, and everything else is Fatal.
// Unstructured errors are Fatal so that programming mistakes are not
// retried as if they were provider hiccups.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vinayprograms/renderkit/errors"
)

// Defaults.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 60 * time.Second
	DefaultMinDelay    = 500 * time.Millisecond
)

// Kind classifies a failed attempt.
type Kind int

const (
	// KindFatal failures are never retried.
	KindFatal Kind = iota

	// KindRateLimited failures are retried and shrink concurrency.
	KindRateLimited

	// KindTransient failures are retried without shrinking concurrency.
	KindTransient
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Retryable reports whether the kind is retried at all.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// Classify maps an error to a Kind. A nil error is Fatal.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	e := errors.As(err)
	if e == nil || !e.Retryable() {
		return KindFatal
	}
	switch e.Category() {
	case errors.CategoryResource:
		return KindRateLimited
	case errors.CategoryTransient:
		return KindTransient
	default:
		// Explicitly retryable but uncategorized: retry, don't shrink.
		return KindTransient
	}
}

// Config holds the retry knobs.
type Config struct {
	// MaxAttempts is the total number of calls a job may make. Default: 5
	MaxAttempts int `toml:"max_attempts"`

	// BaseDelay is the delay after the first failure. Default: 2s
	BaseDelay time.Duration `toml:"base_delay"`

	// MaxDelay caps the exponential delay. Default: 60s
	MaxDelay time.Duration `toml:"max_delay"`

	// MinDelay floors every delay. Default: 500ms
	MinDelay time.Duration `toml:"min_delay"`

	// Jitter spreads each delay by up to this fraction in either direction.
	// 0 disables jitter. Default: 0
	Jitter float64 `toml:"jitter"`
}

// DefaultConfig returns the default retry settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MinDelay:    DefaultMinDelay,
	}
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Retry bool
	Delay time.Duration
	Kind  Kind

	// Exhausted is set when a retryable failure hit MaxAttempts.
	Exhausted bool
}

// Policy applies a Config. Create one with New.
type Policy struct {
	config Config
	rand   func() float64
}

// New creates a policy, filling unset fields from DefaultConfig.
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = def.MinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	return &Policy{config: cfg, rand: rand.Float64}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.config
}

// MaxAttempts returns the total number of calls allowed per job.
func (p *Policy) MaxAttempts() int {
	return p.config.MaxAttempts
}

// Decide classifies err from the zero-based attempt that produced it and
// returns whether to try again and after how long.
func (p *Policy) Decide(attempt int, err error) Decision {
	kind := Classify(err)
	if !kind.Retryable() {
		return Decision{Kind: kind}
	}
	if attempt+1 >= p.config.MaxAttempts {
		return Decision{Kind: kind, Exhausted: true}
	}
	return Decision{Retry: true, Delay: p.Delay(attempt), Kind: kind}
}

// Delay returns min(MaxDelay, BaseDelay*2^attempt), floored at MinDelay and
// then jittered.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.config.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.config.MaxDelay) {
		d = float64(p.config.MaxDelay)
	}
	if d < float64(p.config.MinDelay) {
		d = float64(p.config.MinDelay)
	}
	if j := p.config.Jitter; j > 0 {
		d *= 1 + j*(2*p.rand()-1)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
