package shutdown

import (
	"context"
	"errors"
	"os"
	"time"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Standard phases, run in ascending order.
const (
	// PhaseBatch waits for running jobs to return their permits.
	PhaseBatch = 10

	// PhaseTelemetry flushes spans and the event log.
	PhaseTelemetry = 20

	// PhaseConnections closes the bus and remote stores.
	PhaseConnections = 30
)

// Handler is implemented by components that need cleanup on shutdown.
type Handler interface {
	// OnShutdown is called once. ctx ends when the shutdown timeout is
	// reached.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is the overall error (nil if all handlers succeeded).
	Err error
}

// Failed returns true if any handler failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// Timeout bounds the whole shutdown sequence. Default: 30s
	Timeout time.Duration

	// DefaultPhase is assigned by Register. Default: PhaseConnections
	DefaultPhase int

	// StopOnError skips later phases once a handler fails.
	StopOnError bool

	// OnSignal is called when SIGINT or SIGTERM arrives, before shutdown.
	OnSignal func(os.Signal)

	// OnProgress is called when each handler completes.
	OnProgress func(HandlerResult)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		DefaultPhase: PhaseConnections,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
