package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Common errors.
var (
	ErrClosed = errors.New("rate limiter closed")
)

// DefaultPollInterval is how long Acquire sleeps between refill attempts.
const DefaultPollInterval = 50 * time.Millisecond

// Bucket is a requests-per-minute token bucket. It is safe for concurrent use.
type Bucket struct {
	mu           sync.Mutex
	maxPerMinute int
	capacity     float64   // available tokens, 0 <= capacity <= maxPerMinute
	lastRefill   time.Time // last time capacity was brought up to date
	closed       bool

	pollInterval time.Duration
	nowFunc      func() time.Time
	sleepFunc    func(ctx context.Context, d time.Duration) error
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithPollInterval sets the sleep between refill attempts while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bucket) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithInitialTokens sets the starting capacity instead of starting full.
// The value is clamped to [0, maxPerMinute].
func WithInitialTokens(tokens float64) Option {
	return func(b *Bucket) {
		b.capacity = tokens
	}
}

// WithClock replaces the time source and the sleep used while waiting.
// Tests use it to drive the bucket with a simulated clock.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bucket) {
		if now != nil {
			b.nowFunc = now
		}
		if sleep != nil {
			b.sleepFunc = sleep
		}
	}
}

// New creates a bucket allowing maxPerMinute acquisitions per minute.
// The bucket starts full. A non-positive maxPerMinute disables limiting.
func New(maxPerMinute int, opts ...Option) *Bucket {
	b := &Bucket{
		maxPerMinute: maxPerMinute,
		capacity:     float64(maxPerMinute),
		pollInterval: DefaultPollInterval,
		nowFunc:      time.Now,
		sleepFunc:    sleepCtx,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.capacity < 0 {
		b.capacity = 0
	}
	if max := float64(b.maxPerMinute); b.maxPerMinute > 0 && b.capacity > max {
		b.capacity = max
	}
	b.lastRefill = b.nowFunc()
	return b
}

// refill adds tokens for the time elapsed since lastRefill. Caller holds mu.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	max := float64(b.maxPerMinute)
	b.capacity += elapsed.Seconds() * max / 60.0
	if b.capacity > max {
		b.capacity = max
	}
	b.lastRefill = now
}

// TryAcquire consumes one token if one is available, without waiting.
func (b *Bucket) TryAcquire() bool {
	ok, _ := b.tryAcquire()
	return ok
}

func (b *Bucket) tryAcquire() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, ErrClosed
	}
	if b.maxPerMinute <= 0 {
		return true, nil
	}

	b.refill(b.nowFunc())
	if b.capacity >= 1.0 {
		b.capacity -= 1.0
		return true, nil
	}
	return false, nil
}

// Acquire blocks until a token is available and consumes it.
// It returns ctx.Err() if the context ends first, in which case no token is
// consumed, and ErrClosed once the bucket is closed.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := b.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := b.sleepFunc(ctx, b.pollInterval); err != nil {
			return err
		}
	}
}

// Available returns the current token count after refill.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxPerMinute <= 0 {
		return 0
	}
	b.refill(b.nowFunc())
	return b.capacity
}

// Rate returns the configured requests per minute.
func (b *Bucket) Rate() int {
	return b.maxPerMinute
}

// Close makes pending and future Acquire calls return ErrClosed.
func (b *Bucket) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.closed = true
	return nil
}

// sleepCtx sleeps for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
