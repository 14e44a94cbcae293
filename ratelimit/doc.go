// Package ratelimit bounds the rate of outbound calls to a render service.
//
// Bucket is a token bucket measured in requests per minute. Capacity accrues
// linearly with wall-clock time and each Acquire spends one whole token:
//
//	rpm := ratelimit.New(50) // 50 requests per minute, starts full
//
//	if err := rpm.Acquire(ctx); err != nil {
//	    return err // context ended while waiting
//	}
//	// call the service
//
// # Algorithm
//
// Refill is computed lazily on every attempt from the time elapsed since the
// previous refill; there is no background timer. When less than one token is
// available, Acquire sleeps a short fixed poll interval and tries again.
// Polling keeps the bucket free of missed-wakeup bugs at the cost of latency
// granularity equal to the poll interval, which is negligible next to
// multi-second image generation calls.
//
// Because refill depends only on elapsed time, every waiter eventually sees
// capacity accrue regardless of contention.
//
// Bucket bounds rate only. Concurrency is bounded separately by the admission
// package.
package ratelimit
