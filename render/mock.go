package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockFunc decides the result of one mock call. call is 1 for the first
// call with a given prompt.
type MockFunc func(ctx context.Context, req Request, call int) ([]byte, error)

// Mock is a Renderer that returns placeholder images without network access.
// It is used by dry runs and tests.
type Mock struct {
	delay time.Duration
	fn    MockFunc

	total    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64

	mu    sync.Mutex
	calls map[string]int
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithMockDelay makes every call take d, or until ctx is done.
func WithMockDelay(d time.Duration) MockOption {
	return func(m *Mock) {
		m.delay = d
	}
}

// WithMockFunc overrides the result of each call.
func WithMockFunc(fn MockFunc) MockOption {
	return func(m *Mock) {
		m.fn = fn
	}
}

// NewMock creates a mock renderer.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{calls: make(map[string]int)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Render implements Renderer.
func (m *Mock) Render(ctx context.Context, req Request) ([]byte, error) {
	m.total.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls[req.Prompt]++
	call := m.calls[req.Prompt]
	m.mu.Unlock()

	if m.delay > 0 {
		t := time.NewTimer(m.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, Classify(ctx.Err(), ProviderMock)
		case <-t.C:
		}
	}

	if m.fn != nil {
		return m.fn(ctx, req, call)
	}
	return Placeholder(req.Prompt, ""), nil
}

// Calls returns the total number of Render calls.
func (m *Mock) Calls() int {
	return int(m.total.Load())
}

// CallsFor returns the number of Render calls made with prompt.
func (m *Mock) CallsFor(prompt string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[prompt]
}

// PeakInFlight returns the highest number of concurrent Render calls seen.
func (m *Mock) PeakInFlight() int {
	return int(m.peak.Load())
}
