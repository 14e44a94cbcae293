package shutdown

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

// TestShutdownCancelsContext tests that work running under Context stops
// before handlers run.
func TestShutdownCancelsContext(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var sawCanceled atomic.Bool
	coord.RegisterFunc("batch", PhaseBatch, func(ctx context.Context) error {
		sawCanceled.Store(coord.Context().Err() != nil)
		return nil
	})

	if coord.Context().Err() != nil {
		t.Fatal("context canceled before shutdown")
	}
	if err := coord.ShutdownWithTimeout(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !sawCanceled.Load() {
		t.Error("handler ran before Context was canceled")
	}

	select {
	case <-coord.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
	if coord.Err() != nil || coord.Result().Failed() {
		t.Fatalf("unexpected failure: %v", coord.Err())
	}
}

// TestPhaseOrder tests that lower phases execute first.
func TestPhaseOrder(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	coord.RegisterFunc("bus", PhaseConnections, record("bus"))
	coord.RegisterFunc("events", PhaseTelemetry, record("events"))
	coord.RegisterFunc("batch", PhaseBatch, record("batch"))

	if err := coord.ShutdownWithTimeout(); err != nil {
		t.Fatal(err)
	}

	want := []string{"batch", "events", "bus"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

// TestSamePhaseRunsConcurrently tests that handlers in one phase overlap.
func TestSamePhaseRunsConcurrently(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var running, peak atomic.Int32
	handler := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	for _, name := range []string{"a", "b", "c"} {
		coord.RegisterFunc(name, PhaseTelemetry, handler)
	}

	if err := coord.ShutdownWithTimeout(); err != nil {
		t.Fatal(err)
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrency = %d, want >= 2", peak.Load())
	}
}

// TestTimeout tests that a slow phase stops later phases.
func TestTimeout(t *testing.T) {
	coord := NewCoordinator(Config{Timeout: 20 * time.Millisecond})

	coord.RegisterFunc("slow", PhaseBatch, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	var laterCalled atomic.Bool
	coord.RegisterFunc("later", PhaseConnections, func(context.Context) error {
		laterCalled.Store(true)
		return nil
	})

	err := coord.ShutdownWithTimeout()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if laterCalled.Load() {
		t.Error("later phase ran after timeout")
	}
}

// TestHandlerErrors tests error reporting with and without StopOnError.
func TestHandlerErrors(t *testing.T) {
	for _, stop := range []bool{false, true} {
		coord := NewCoordinator(Config{StopOnError: stop})

		coord.RegisterFunc("broken", PhaseTelemetry, func(context.Context) error {
			return errors.New("flush failed")
		})
		var laterCalled atomic.Bool
		coord.RegisterFunc("bus", PhaseConnections, func(context.Context) error {
			laterCalled.Store(true)
			return nil
		})

		err := coord.ShutdownWithTimeout()
		if !errors.Is(err, ErrHandlerFailed) {
			t.Errorf("stop=%v: expected ErrHandlerFailed, got %v", stop, err)
		}
		if laterCalled.Load() == stop {
			t.Errorf("stop=%v: later phase called = %v", stop, laterCalled.Load())
		}
		failed := coord.Result().FailedHandlers()
		if len(failed) != 1 || failed[0] != "broken" {
			t.Errorf("stop=%v: failed handlers = %v", stop, failed)
		}
	}
}

// TestDoubleShutdown tests that handlers run once.
func TestDoubleShutdown(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())

	var calls atomic.Int32
	coord.Register("once", HandlerFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	if err := coord.ShutdownWithTimeout(); err != nil {
		t.Fatal(err)
	}
	if err := coord.ShutdownWithTimeout(); err != ErrAlreadyShutdown {
		t.Errorf("second shutdown = %v, want ErrAlreadyShutdown", err)
	}
	if calls.Load() != 1 {
		t.Errorf("handler called %d times", calls.Load())
	}
}

// TestSignalHandling tests that a signal cancels Context and runs shutdown.
func TestSignalHandling(t *testing.T) {
	var got atomic.Value
	coord := NewCoordinator(Config{OnSignal: func(sig os.Signal) { got.Store(sig) }})
	coord.HandleSignals()
	defer coord.StopSignals()

	coord.Trigger(syscall.SIGINT)

	select {
	case <-coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not triggered by signal")
	}
	if coord.Context().Err() == nil {
		t.Error("context not canceled")
	}
	if got.Load() != syscall.SIGINT {
		t.Errorf("OnSignal got %v", got.Load())
	}
}

// TestOnProgress tests that every handler is reported.
func TestOnProgress(t *testing.T) {
	var mu sync.Mutex
	var names []string
	coord := NewCoordinator(Config{OnProgress: func(hr HandlerResult) {
		mu.Lock()
		names = append(names, hr.Name)
		mu.Unlock()
	}})
	coord.RegisterFunc("a", PhaseBatch, func(context.Context) error { return nil })
	coord.RegisterFunc("b", PhaseTelemetry, func(context.Context) error { return nil })

	if err := coord.ShutdownWithTimeout(); err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("progress = %v", names)
	}
}

func TestResultBeforeDone(t *testing.T) {
	coord := NewCoordinator(DefaultConfig())
	if coord.Result() != nil || coord.Err() != nil {
		t.Error("expected nil result before shutdown")
	}
}

func TestNewCoordinatorDefaults(t *testing.T) {
	coord := NewCoordinator(Config{})
	if coord.config.Timeout != 30*time.Second || coord.config.DefaultPhase != PhaseConnections {
		t.Errorf("config = %+v", coord.config)
	}
}

func TestGroupByPhase(t *testing.T) {
	if groups := groupByPhase(nil); len(groups) != 0 {
		t.Errorf("empty input gave %d groups", len(groups))
	}

	handlers := []registration{
		{name: "a", phase: 10},
		{name: "b", phase: 10},
		{name: "c", phase: 20},
		{name: "d", phase: 30},
		{name: "e", phase: 30},
	}
	groups := groupByPhase(handlers)
	if len(groups) != 3 || len(groups[0]) != 2 || len(groups[1]) != 1 || len(groups[2]) != 2 {
		t.Errorf("groups = %+v", groups)
	}
}
