// Package errors provides the structured failure taxonomy shared by render
// providers and the scheduler.
//
// Providers classify their failures once, at the boundary, by returning an
// *Error with a specific code. Everything downstream (retry policy, job
// runner, logging) inspects the code or category instead of parsing error
// text.
//
// # Categories
//
//   - Resource: the service is throttling us (rate limit, quota). Retryable,
//     and the caller should shrink its concurrency.
//   - Transient: the service is overloaded or slow. Retryable without
//     shrinking concurrency.
//   - Permanent: the request itself is wrong (bad payload, auth). Not
//     retryable.
//   - Internal: unexpected failures on our side (I/O, bugs). Not retryable.
//
// # Usage
//
//	err := errors.RateLimited("gemini returned 429", errors.WithMetadata("provider", "gemini"))
//
//	if errors.IsResource(err) {
//	    budget.Decrease()
//	}
//
// Errors marshal to JSON so they can travel in throttle broadcasts and
// structured log lines.
package errors
