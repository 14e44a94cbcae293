// Package shutdown coordinates an orderly stop of a render run.
//
// A Coordinator owns a context that is canceled the moment shutdown begins,
// on SIGINT/SIGTERM or an explicit Shutdown call. Batches run under that
// context, so every runner stops at its next suspension point and returns
// its permits. Cleanup handlers then run in phases:
//
//	PhaseBatch       (10) wait for running jobs to drain
//	PhaseTelemetry   (20) flush spans and the event log
//	PhaseConnections (30) close the bus and remote stores
//
// Handlers in the same phase run concurrently. The whole sequence is bounded
// by Config.Timeout.
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.HandleSignals()
//	defer coord.StopSignals()
//
//	coord.RegisterFunc("events", shutdown.PhaseTelemetry, func(ctx context.Context) error {
//		return events.Close()
//	})
//
//	stats := sched.Run(coord.Context(), jobs)
//	_ = coord.ShutdownWithTimeout()
//
// A normal exit goes through the same Shutdown call, so cleanup runs once on
// either path.
package shutdown
