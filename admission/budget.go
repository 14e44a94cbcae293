package admission

import (
	"context"
	"errors"
	"sync"
)

// Common errors.
var (
	ErrInvalidLimits = errors.New("invalid concurrency limits")
)

// Default limits.
const (
	DefaultMin          = 2
	DefaultMax          = 15
	DefaultInitial      = 8
	DefaultDecreaseStep = 2
)

// Config holds the concurrency knobs.
type Config struct {
	// Initial is the starting limit. Default: 8
	Initial int

	// Min is the floor Decrease never goes below. Default: 2
	Min int

	// Max is the ceiling Increase never goes above. Default: 15
	Max int

	// Step is how far one Decrease lowers the limit. Default: 2
	Step int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		Initial: DefaultInitial,
		Min:     DefaultMin,
		Max:     DefaultMax,
		Step:    DefaultDecreaseStep,
	}
}

// Validate checks 1 <= Min <= Initial <= Max and Step >= 1.
func (c *Config) Validate() error {
	if c.Min < 1 || c.Max < c.Min || c.Initial < c.Min || c.Initial > c.Max || c.Step < 1 {
		return ErrInvalidLimits
	}
	return nil
}

// Change describes one adjustment of the limit.
type Change struct {
	Old    int
	New    int
	Reason string // "increase" or "decrease"
}

// Snapshot is a consistent view of the budget.
type Snapshot struct {
	Limit    int
	Min      int
	Max      int
	Free     int // permits available right now
	InFlight int // permits held by callers
	Debt     int // retractions still owed by future releases
	Peak     int // highest InFlight observed
}

// Budget is an adaptive counting semaphore. It is safe for concurrent use.
//
// The permit pool is kept consistent with the limit by the invariant
//
//	Free + InFlight == Limit + Debt
//
// Decrease removes free permits immediately and records any shortfall as
// Debt; each later Release pays one unit of Debt instead of returning its
// permit. Permits held by running callers are never recalled, so Debt never
// exceeds InFlight and drains to zero as holders finish.
type Budget struct {
	mu       sync.Mutex
	limit    int
	min      int
	max      int
	step     int
	free     int
	inFlight int
	debt     int
	peak     int
	wake     chan struct{} // closed and replaced whenever free grows

	onChange func(Change)
}

// Option configures a Budget.
type Option func(*Budget)

// WithOnChange registers a callback invoked after every limit change.
// The callback runs without the budget lock held.
func WithOnChange(fn func(Change)) Option {
	return func(b *Budget) {
		b.onChange = fn
	}
}

// New creates a budget with all Initial permits free.
func New(cfg Config, opts ...Option) (*Budget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Budget{
		limit: cfg.Initial,
		min:   cfg.Min,
		max:   cfg.Max,
		step:  cfg.Step,
		free:  cfg.Initial,
		wake:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Acquire blocks until a permit is available and takes it.
// If ctx ends first it returns ctx.Err() and holds nothing.
func (b *Budget) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		if b.free > 0 {
			b.free--
			b.inFlight++
			if b.inFlight > b.peak {
				b.peak = b.inFlight
			}
			b.mu.Unlock()
			return nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// TryAcquire takes a permit if one is free, without blocking.
func (b *Budget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.free == 0 {
		return false
	}
	b.free--
	b.inFlight++
	if b.inFlight > b.peak {
		b.peak = b.inFlight
	}
	return true
}

// Release returns a permit taken by Acquire. If retractions are owed the
// permit is retired instead. Releasing more than was acquired is a no-op.
func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inFlight == 0 {
		return
	}
	b.inFlight--
	b.addPermit()
}

// Increase raises the limit by one, up to Max, and issues one permit.
// It reports whether the limit changed.
func (b *Budget) Increase() bool {
	b.mu.Lock()
	if b.limit >= b.max {
		b.mu.Unlock()
		return false
	}
	old := b.limit
	b.limit++
	b.addPermit()
	ch := Change{Old: old, New: b.limit, Reason: "increase"}
	b.mu.Unlock()

	b.notify(ch)
	return true
}

// Decrease lowers the limit by Step, down to Min, retracting free permits
// without blocking. Any shortfall is paid by subsequent releases.
// It reports whether the limit changed.
func (b *Budget) Decrease() bool {
	b.mu.Lock()
	if b.limit <= b.min {
		b.mu.Unlock()
		return false
	}
	old := b.limit
	next := old - b.step
	if next < b.min {
		next = b.min
	}
	delta := old - next
	b.limit = next

	take := delta
	if take > b.free {
		take = b.free
	}
	b.free -= take
	b.debt += delta - take
	ch := Change{Old: old, New: next, Reason: "decrease"}
	b.mu.Unlock()

	b.notify(ch)
	return true
}

// addPermit pays one unit of debt or frees one permit. Caller holds mu.
func (b *Budget) addPermit() {
	if b.debt > 0 {
		b.debt--
		return
	}
	b.free++
	close(b.wake)
	b.wake = make(chan struct{})
}

func (b *Budget) notify(ch Change) {
	if b.onChange != nil {
		b.onChange(ch)
	}
}

// Limit returns the current limit.
func (b *Budget) Limit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// InFlight returns the number of permits currently held.
func (b *Budget) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// Peak returns the highest number of permits held at once.
func (b *Budget) Peak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

// Snapshot returns all counters under one lock.
func (b *Budget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Limit:    b.limit,
		Min:      b.min,
		Max:      b.max,
		Free:     b.free,
		InFlight: b.inFlight,
		Debt:     b.debt,
		Peak:     b.peak,
	}
}
