package scheduler

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/renderkit/errors"
	"github.com/vinayprograms/renderkit/logging"
	"github.com/vinayprograms/renderkit/retry"
	"github.com/vinayprograms/renderkit/telemetry"
)

// Runner drives one job from the idempotency check to a terminal outcome.
// It is created by the Scheduler for each job.
type Runner struct {
	s   *Scheduler
	b   *batch
	log *logging.Logger
}

// Run executes the job and returns its result. It never panics on provider
// failures and always returns every permit it took.
func (r *Runner) Run(ctx context.Context, job Job) JobResult {
	tracer := r.s.tracer()
	start := r.s.nowFunc()

	ctx, span := tracer.StartJobSpan(ctx, job.Key.String())
	res := r.run(ctx, &job, tracer)
	res.Duration = r.s.nowFunc().Sub(start)
	tracer.EndJobSpan(span, telemetry.JobSpanOptions{
		Outcome:  res.Outcome.String(),
		Attempts: res.Attempts,
		Artifact: res.Artifact,
	}, res.Err)

	key := job.Key.String()
	switch {
	case res.Outcome == OutcomeSucceeded:
		r.log.JobSucceeded(key, res.Attempts, res.Duration)
	case res.Outcome == OutcomeSkipped:
		r.log.JobSkipped(key, res.Artifact)
	case res.Outcome.Failed():
		r.log.JobFailed(key, res.Outcome.String(), res.Attempts, res.Err)
	}
	return res
}

func (r *Runner) run(ctx context.Context, job *Job, tracer *telemetry.Tracer) JobResult {
	res := JobResult{Key: job.Key, Artifact: job.Artifact}
	key := job.Key.String()

	if r.exists(ctx, job) {
		res.Outcome = OutcomeSkipped
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return r.canceled(res, job, err)
		}

		job.Attempts++
		res.Attempts = job.Attempts
		err := r.attempt(ctx, job)
		if err == nil {
			r.s.noteSuccess()
			res.Outcome = OutcomeSucceeded
			res.Err = nil
			return res
		}
		if ctx.Err() != nil {
			return r.canceled(res, job, ctx.Err())
		}
		res.Err = err

		d := r.s.policy.Decide(job.Attempts-1, err)
		switch d.Kind {
		case retry.KindRateLimited:
			res.Throttled++
			res.Outcome = OutcomeRateLimited
			r.s.budget.Decrease()
			r.log.JobThrottled(key, job.Attempts, r.s.budget.Limit())
			if r.s.deps.Announcer != nil {
				if aerr := r.s.deps.Announcer.Announce(errors.Code(err).String()); aerr != nil {
					r.log.Warn("throttle_announce_failed", map[string]interface{}{"error": aerr.Error()})
				}
			}
		case retry.KindTransient:
			res.Outcome = OutcomeTransientFailure
		}

		if !d.Retry {
			if d.Exhausted {
				res.Outcome = OutcomeRetriesExhausted
			} else {
				res.Outcome = OutcomeFatalFailure
			}
			r.placeholder(ctx, job, err)
			return res
		}

		r.log.JobRetry(key, job.Attempts, d.Kind.String(), d.Delay, err)
		tracer.RecordRetry(trace.SpanFromContext(ctx), job.Attempts, d.Kind.String(), d.Delay)
		if serr := r.s.sleepFunc(ctx, d.Delay); serr != nil {
			return r.canceled(res, job, serr)
		}
	}
}

// exists runs the idempotency check over every artifact that completes
// the job. Oracle errors count as absent: rendering again is safe,
// skipping a missing artifact is not.
func (r *Runner) exists(ctx context.Context, job *Job) bool {
	if r.s.deps.Oracle == nil {
		return false
	}
	for _, id := range job.Artifacts() {
		ok, err := r.s.deps.Oracle.Exists(ctx, id)
		if err != nil {
			r.log.Warn("idempotency_check_failed", map[string]interface{}{
				"job":      job.Key.String(),
				"artifact": id,
				"error":    err.Error(),
			})
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// attempt makes one admitted render call and stores the result.
// The permit is held from admission until the artifact is written.
func (r *Runner) attempt(ctx context.Context, job *Job) error {
	if err := r.s.budget.Acquire(ctx); err != nil {
		return err
	}
	defer r.s.budget.Release()

	if err := r.s.bucket.Acquire(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	r.b.enter()
	callCtx, cancel := context.WithTimeout(ctx, r.s.callTimeout)
	data, err := r.s.deps.Renderer.Render(callCtx, job.Request)
	cancel()
	r.b.exit()
	if err != nil {
		return errors.Wrap(err, "render failed", errors.WithJobID(job.Key.String()))
	}
	if len(data) == 0 {
		return errors.BadResponse("renderer returned no data", errors.WithJobID(job.Key.String()))
	}

	if err := r.s.deps.Sink.Write(ctx, job.Artifact, data); err != nil {
		return errors.Wrap(err, "write artifact", errors.WithJobID(job.Key.String()))
	}
	return nil
}

func (r *Runner) canceled(res JobResult, job *Job, err error) JobResult {
	res.Outcome = OutcomeCanceled
	res.Attempts = job.Attempts
	res.Err = errors.Wrap(err, "job canceled", errors.WithJobID(job.Key.String()))
	return res
}

func (r *Runner) placeholder(ctx context.Context, job *Job, cause error) {
	if r.s.deps.Placeholder == nil {
		return
	}
	if err := r.s.deps.Placeholder(ctx, *job, cause); err != nil {
		r.log.Warn("placeholder_failed", map[string]interface{}{
			"job":   job.Key.String(),
			"error": err.Error(),
		})
	}
}
