// Package admission bounds how many render calls may be in flight at once
// and adapts that bound to what the provider tolerates.
//
// Budget is a counting semaphore whose limit moves between Min and Max:
//
//	budget, err := admission.New(admission.Config{Initial: 8, Min: 2, Max: 15, Step: 2})
//
//	if err := budget.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer budget.Release()
//
// Increase adds one permit (additive increase, used after sustained
// success). Decrease removes Step permits at once (used on throttling), which
// backs off fast against an unknown, possibly shared, server-side limit.
//
// # Lazy retraction
//
// Decrease never waits for running callers. It removes permits that are free
// right now; if too few are free, the remainder becomes debt, and the next
// Release calls retire their permits instead of returning them. The pool can
// exceed the new limit only by permits already held, and converges as those
// are released.
//
// # Sharing throttle signals
//
// Broadcaster publishes local throttles on a bus and decreases the local
// budget when another process reports one, so several schedulers drawing on
// one quota back off together.
package admission
