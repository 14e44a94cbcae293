// Package scheduler runs batches of render jobs against a slow, rate-limited
// provider.
//
// A Scheduler owns nothing global. It is built from an admission.Budget
// (how many calls may be in flight), a ratelimit.Bucket (how many calls may
// start per minute) and a retry.Policy, all passed in so that several
// batches can share them:
//
//	budget, _ := admission.New(admission.DefaultConfig())
//	bucket := ratelimit.New(50)
//	s, _ := scheduler.New(budget, bucket, retry.New(retry.DefaultConfig()), scheduler.Deps{
//		Renderer: r,
//		Oracle:   store,
//		Sink:     store,
//	})
//	stats := s.Run(ctx, jobs)
//
// # Job lifecycle
//
// Each job runs on its own goroutine through these states:
//
//	Pending -> IdempotencyCheck -> Skipped
//	                            -> Admitted -> InFlight -> Succeeded
//	                                                    -> Throttled -> Backoff -> Pending
//	                                                    -> Transient -> Backoff -> Pending
//	                                                    -> FatalFailure
//
// The idempotency check asks the Oracle whether the job's artifact already
// exists; if so the job is skipped without touching either budget. Admission
// takes a concurrency permit first and a rate token second. A rate-limited
// attempt releases its permit and shrinks the budget; a transient failure
// only backs off. Every IncreaseEvery successes the budget grows by one.
//
// Retryable failures never leave the runner. Run always returns Stats; it
// has no error result. Canceling the context stops every runner at its next
// suspension point with all permits returned.
package scheduler
