package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Coordinator cancels work on a signal and then runs cleanup handlers
// phase by phase.
type Coordinator struct {
	config Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers []registration
	once     sync.Once
	err      error
	result   *Result
	done     chan struct{}

	signals chan os.Signal
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.DefaultPhase == 0 {
		config.DefaultPhase = def.DefaultPhase
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Context is canceled as soon as shutdown starts. Work that should stop on
// SIGINT runs under it.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Register adds a handler in the default phase.
func (c *Coordinator) Register(name string, handler Handler) {
	c.RegisterWithPhase(name, handler, c.config.DefaultPhase)
}

// RegisterWithPhase adds a handler to a phase. Lower phases run first;
// handlers in the same phase run concurrently.
func (c *Coordinator) RegisterWithPhase(name string, handler Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: handler, phase: phase})
}

// RegisterFunc registers fn in phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.RegisterWithPhase(name, HandlerFunc(fn), phase)
}

// Shutdown cancels Context and runs all handlers. Only the first call does
// anything; later calls wait for it and return ErrAlreadyShutdown.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	first := false
	c.once.Do(func() {
		first = true
		c.cancel()
		c.result = c.run(ctx)
		c.err = c.result.Err
		close(c.done)
	})
	if !first {
		<-c.done
		return ErrAlreadyShutdown
	}
	return c.err
}

// ShutdownWithTimeout runs Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals starts shutdown on the first SIGINT or SIGTERM.
// Call StopSignals when the program exits normally.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-c.signals:
			if c.config.OnSignal != nil {
				c.config.OnSignal(sig)
			}
			_ = c.ShutdownWithTimeout()
		case <-c.done:
		}
	}()
}

// StopSignals stops delivering signals to the coordinator.
func (c *Coordinator) StopSignals() {
	signal.Stop(c.signals)
}

// Trigger simulates a signal.
func (c *Coordinator) Trigger(sig os.Signal) {
	select {
	case c.signals <- sig:
	default:
	}
}

// Done is closed when shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Result returns per-handler results once Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			result.Err = ErrTimeout
			break
		}

		failed := false
		for _, hr := range c.runPhase(ctx, group) {
			result.Results = append(result.Results, hr)
			if hr.Err != nil {
				failed = true
			}
		}
		if failed && result.Err == nil {
			result.Err = ErrHandlerFailed
		}
		if failed && c.config.StopOnError {
			break
		}
	}
	result.TotalDuration = time.Since(start)
	return result
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup
	var progress sync.Mutex

	for i, reg := range group {
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()

			start := time.Now()
			err := reg.handler.OnShutdown(ctx)
			hr := HandlerResult{Name: reg.name, Phase: reg.phase, Duration: time.Since(start), Err: err}
			results[i] = hr

			if c.config.OnProgress != nil {
				progress.Lock()
				c.config.OnProgress(hr)
				progress.Unlock()
			}
		}(i, reg)
	}
	wg.Wait()
	return results
}

// groupByPhase splits handlers, already sorted by phase, into runs of equal
// phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i, h := range handlers {
		if i == 0 || h.phase != handlers[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}
