package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock whose sleep advances time instead
// of blocking.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func TestBucket_StartsFull(t *testing.T) {
	clock := newFakeClock()
	b := New(5, WithClock(clock.Now, clock.Sleep))

	for i := 0; i < 5; i++ {
		if !b.TryAcquire() {
			t.Fatalf("expected TryAcquire to succeed on attempt %d", i+1)
		}
	}
	if b.TryAcquire() {
		t.Error("expected TryAcquire to fail after exhausting capacity")
	}
	if got := b.Available(); got != 0 {
		t.Errorf("expected available 0, got %v", got)
	}
}

func TestBucket_RefillIsTimeProportional(t *testing.T) {
	clock := newFakeClock()
	b := New(60, WithClock(clock.Now, clock.Sleep), WithInitialTokens(0))

	if b.TryAcquire() {
		t.Fatal("empty bucket should not grant")
	}

	// 60/min is one token per second.
	clock.Advance(500 * time.Millisecond)
	if b.TryAcquire() {
		t.Fatal("half a token should not be granted")
	}
	clock.Advance(500 * time.Millisecond)
	if !b.TryAcquire() {
		t.Fatal("one full token should be granted after 1s")
	}

	clock.Advance(10 * time.Minute)
	if got := b.Available(); got != 60 {
		t.Errorf("capacity should clamp at 60, got %v", got)
	}
}

func TestBucket_AcquireWaitsForRefill(t *testing.T) {
	clock := newFakeClock()
	b := New(30, WithClock(clock.Now, clock.Sleep), WithInitialTokens(0))

	start := clock.Now()
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	waited := clock.Now().Sub(start)
	// 30/min means one token every 2s; polling granularity is 50ms.
	if waited < 2*time.Second || waited > 2*time.Second+DefaultPollInterval {
		t.Errorf("waited %v, want about 2s", waited)
	}
}

func TestBucket_GrantBoundUnderSimulatedTime(t *testing.T) {
	tests := []struct {
		name    string
		rpm     int
		initial float64
		step    time.Duration
	}{
		{"empty_fast_polls", 120, 0, 10 * time.Millisecond},
		{"empty_slow_polls", 50, 0, 700 * time.Millisecond},
		{"full_start", 20, 20, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			b := New(tt.rpm, WithClock(clock.Now, clock.Sleep), WithInitialTokens(tt.initial))
			start := clock.Now()

			granted := 0
			for i := 0; i < 5000; i++ {
				if b.TryAcquire() {
					granted++
				}
				avail := b.Available()
				if avail < 0 || avail > float64(tt.rpm) {
					t.Fatalf("capacity %v out of [0,%d]", avail, tt.rpm)
				}
				minutes := clock.Now().Sub(start).Minutes()
				bound := float64(tt.rpm)*minutes + tt.initial + 1
				if float64(granted) > bound {
					t.Fatalf("granted %d tokens after %.3f min, bound %.2f", granted, minutes, bound)
				}
				clock.Advance(tt.step)
			}
		})
	}
}

func TestBucket_AcquireHonorsContext(t *testing.T) {
	b := New(1, WithInitialTokens(0), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := b.Acquire(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestBucket_Unlimited(t *testing.T) {
	b := New(0)
	for i := 0; i < 1000; i++ {
		if err := b.Acquire(context.Background()); err != nil {
			t.Fatalf("unlimited bucket should never block: %v", err)
		}
	}
}

func TestBucket_Close(t *testing.T) {
	b := New(10)
	if err := b.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := b.Close(); err != ErrClosed {
		t.Errorf("second Close: got %v, want ErrClosed", err)
	}
	if err := b.Acquire(context.Background()); err != ErrClosed {
		t.Errorf("Acquire after Close: got %v, want ErrClosed", err)
	}
	if b.TryAcquire() {
		t.Error("TryAcquire after Close should fail")
	}
}

func TestBucket_ConcurrentAcquire(t *testing.T) {
	clock := newFakeClock()
	b := New(600, WithClock(clock.Now, clock.Sleep), WithInitialTokens(0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	if avail := b.Available(); avail < 0 || avail > 600 {
		t.Errorf("capacity %v out of range", avail)
	}
}
