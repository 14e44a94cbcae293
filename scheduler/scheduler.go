package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/renderkit/admission"
	"github.com/vinayprograms/renderkit/artifact"
	"github.com/vinayprograms/renderkit/logging"
	"github.com/vinayprograms/renderkit/ratelimit"
	"github.com/vinayprograms/renderkit/render"
	"github.com/vinayprograms/renderkit/retry"
	"github.com/vinayprograms/renderkit/telemetry"
)

// Common errors.
var (
	ErrNoRenderer = errors.New("scheduler: renderer is required")
	ErrNoSink     = errors.New("scheduler: artifact sink is required")
	ErrNoBudget   = errors.New("scheduler: concurrency budget and rate bucket are required")
)

// Announcer publishes a local throttle to other processes.
// *admission.Broadcaster implements it.
type Announcer interface {
	Announce(reason string) error
}

// PlaceholderFunc is called once for a job that failed terminally (not for
// canceled jobs). It typically writes an error image under the job's
// artifact name.
type PlaceholderFunc func(ctx context.Context, job Job, cause error) error

// Deps are the collaborators a Scheduler calls.
type Deps struct {
	Renderer render.Renderer
	Sink     artifact.Sink

	// Oracle answers the idempotency check. If nil and Sink also implements
	// artifact.Oracle, the sink is used.
	Oracle artifact.Oracle

	// Logger receives job and batch events. Nil discards them.
	Logger *logging.Logger

	// Tracer defaults to telemetry.GetTracer().
	Tracer *telemetry.Tracer

	// Announcer, when set, is told about every rate-limited attempt.
	Announcer Announcer

	// Placeholder, when set, runs for jobs that failed terminally.
	Placeholder PlaceholderFunc

	// OnJobDone is called after each job with its result and a copy of the
	// batch counters so far. Calls are serialized.
	OnJobDone func(JobResult, Stats)
}

// Scheduler runs batches of jobs against shared budgets.
// It is safe to call Run concurrently; concurrent batches share the budgets.
type Scheduler struct {
	budget *admission.Budget
	bucket *ratelimit.Bucket
	policy *retry.Policy
	deps   Deps

	callTimeout   time.Duration
	increaseEvery int64
	successes     atomic.Int64

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCallTimeout bounds each render call. Default: 5m
func WithCallTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithIncreaseEvery sets how many successes raise the limit by one.
// Default: 10
func WithIncreaseEvery(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.increaseEvery = int64(n)
		}
	}
}

// WithSleep replaces the backoff sleep. Tests use it to skip real waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleepFunc = sleep
		}
	}
}

// New creates a scheduler over the given budgets. A nil policy uses
// retry.DefaultConfig.
func New(budget *admission.Budget, bucket *ratelimit.Bucket, policy *retry.Policy, deps Deps, opts ...Option) (*Scheduler, error) {
	if budget == nil || bucket == nil {
		return nil, ErrNoBudget
	}
	if deps.Renderer == nil {
		return nil, ErrNoRenderer
	}
	if deps.Sink == nil {
		return nil, ErrNoSink
	}
	if deps.Oracle == nil {
		if o, ok := deps.Sink.(artifact.Oracle); ok {
			deps.Oracle = o
		}
	}
	if policy == nil {
		policy = retry.New(retry.DefaultConfig())
	}

	s := &Scheduler{
		budget:        budget,
		bucket:        bucket,
		policy:        policy,
		deps:          deps,
		callTimeout:   DefaultCallTimeout,
		increaseEvery: DefaultIncreaseEvery,
		nowFunc:       time.Now,
		sleepFunc:     retry.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Budget returns the concurrency budget.
func (s *Scheduler) Budget() *admission.Budget {
	return s.budget
}

func (s *Scheduler) tracer() *telemetry.Tracer {
	if s.deps.Tracer != nil {
		return s.deps.Tracer
	}
	return telemetry.GetTracer()
}

// Run schedules jobs under a generated batch name. See RunNamed.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) Stats {
	return s.RunNamed(ctx, uuid.NewString()[:8], jobs)
}

// RunNamed starts one goroutine per job, waits for all of them and returns
// the batch counters. Jobs may finish in any order. It never fails; failed
// jobs are counted in Stats.Failed and listed in Stats.Results.
func (s *Scheduler) RunNamed(ctx context.Context, name string, jobs []Job) Stats {
	log := s.deps.Logger.WithComponent("scheduler")
	tracer := s.tracer()

	b := &batch{
		name:    name,
		results: make([]JobResult, len(jobs)),
	}
	b.stats.Total = len(jobs)

	start := s.nowFunc()
	ctx, span := tracer.StartBatchSpan(ctx, name, len(jobs))
	log.BatchStart(name, len(jobs), s.budget.Limit(), s.bucket.Rate())

	var wg sync.WaitGroup
	for i, job := range jobs {
		if job.Artifact == "" {
			job.Artifact = job.Key.Artifact()
		}
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			r := &Runner{s: s, b: b, log: log}
			res := r.Run(ctx, job)
			b.finish(i, res, s.deps.OnJobDone)
		}(i, job)
	}
	wg.Wait()

	stats := b.stats
	stats.Results = b.results
	stats.Duration = s.nowFunc().Sub(start)
	stats.PeakInFlight = int(b.peak.Load())
	stats.FinalLimit = s.budget.Limit()

	tracer.EndBatchSpan(span, telemetry.BatchSpanOptions{
		Succeeded:    stats.Succeeded,
		Skipped:      stats.Skipped,
		Failed:       stats.Failed,
		Throttled:    stats.Throttled,
		PeakInFlight: stats.PeakInFlight,
		FinalLimit:   stats.FinalLimit,
	})
	log.BatchComplete(name, stats.Duration, stats.Succeeded, stats.Skipped, stats.Failed, stats.Throttled)
	return stats
}

// RunJob runs a single job outside of any batch.
func (s *Scheduler) RunJob(ctx context.Context, job Job) JobResult {
	if job.Artifact == "" {
		job.Artifact = job.Key.Artifact()
	}
	r := &Runner{s: s, b: &batch{}, log: s.deps.Logger.WithComponent("scheduler")}
	return r.Run(ctx, job)
}

// noteSuccess counts a success and probes for more concurrency every
// increaseEvery successes.
func (s *Scheduler) noteSuccess() {
	if s.successes.Add(1)%s.increaseEvery == 0 {
		s.budget.Increase()
	}
}

// batch is the per-Run bookkeeping shared by its runners.
type batch struct {
	name string

	mu      sync.Mutex
	stats   Stats
	results []JobResult

	inFlight atomic.Int64
	peak     atomic.Int64
}

func (b *batch) enter() {
	n := b.inFlight.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (b *batch) exit() {
	b.inFlight.Add(-1)
}

func (b *batch) finish(i int, res JobResult, onDone func(JobResult, Stats)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.results[i] = res
	b.stats.record(res)
	if onDone != nil {
		snap := b.stats
		snap.PeakInFlight = int(b.peak.Load())
		onDone(res, snap)
	}
}

// RunBatch builds fresh budgets from cfg and runs jobs through them.
// Limit changes are logged through deps.Logger.
func RunBatch(ctx context.Context, jobs []Job, cfg Config, deps Deps) (Stats, error) {
	log := deps.Logger.WithComponent("admission")
	budget, bucket, policy, err := cfg.Budgets(admission.WithOnChange(func(ch admission.Change) {
		log.LimitChanged(ch.Old, ch.New, ch.Reason)
	}))
	if err != nil {
		return Stats{}, err
	}
	defer bucket.Close()

	cfg.ApplyDefaults()
	s, err := New(budget, bucket, policy, deps,
		WithCallTimeout(cfg.CallTimeout),
		WithIncreaseEvery(cfg.IncreaseEvery),
	)
	if err != nil {
		return Stats{}, err
	}
	return s.Run(ctx, jobs), nil
}
