// OpenTelemetry tracing for batches, jobs and render calls.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with scheduler-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include prompts in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global OpenTelemetry provider.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Batch Spans ---

// BatchSpanOptions contains the final counters of a batch.
type BatchSpanOptions struct {
	Succeeded    int
	Skipped      int
	Failed       int
	Throttled    int
	PeakInFlight int
	FinalLimit   int
}

// StartBatchSpan starts a span covering one batch.
func (t *Tracer) StartBatchSpan(ctx context.Context, batchID string, total int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "batch", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.total", total),
	)
	return ctx, span
}

// EndBatchSpan ends a batch span. A batch with failed jobs is marked as an
// error so it stands out in trace search.
func (t *Tracer) EndBatchSpan(span trace.Span, opts BatchSpanOptions) {
	span.SetAttributes(
		attribute.Int("batch.succeeded", opts.Succeeded),
		attribute.Int("batch.skipped", opts.Skipped),
		attribute.Int("batch.failed", opts.Failed),
		attribute.Int("batch.throttled", opts.Throttled),
		attribute.Int("batch.peak_in_flight", opts.PeakInFlight),
		attribute.Int("batch.final_limit", opts.FinalLimit),
	)
	if opts.Failed > 0 {
		span.SetStatus(codes.Error, "batch had failed jobs")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Job Spans ---

// JobSpanOptions contains the result of one job.
type JobSpanOptions struct {
	Outcome  string
	Attempts int
	Artifact string
}

// StartJobSpan starts a span for one job's whole lifecycle.
func (t *Tracer) StartJobSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "job", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("job.key", key))
	return ctx, span
}

// RecordRetry adds a retry event to a job span.
func (t *Tracer) RecordRetry(span trace.Span, attempt int, kind string, delay time.Duration) {
	span.AddEvent("retry", trace.WithAttributes(
		attribute.Int("retry.attempt", attempt),
		attribute.String("retry.kind", kind),
		attribute.Int64("retry.delay_ms", delay.Milliseconds()),
	))
}

// EndJobSpan ends a job span with attributes.
func (t *Tracer) EndJobSpan(span trace.Span, opts JobSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("job.outcome", opts.Outcome),
		attribute.Int("job.attempts", opts.Attempts),
		attribute.String("job.artifact", opts.Artifact),
	)
	endWithError(span, err)
}

// --- Render Spans ---

// RenderSpanOptions contains options for render call spans.
type RenderSpanOptions struct {
	Provider string
	Model    string
	Bytes    int
	Prompt   string // Only included if debug=true
}

// StartRenderSpan starts a span for one call to the render provider.
func (t *Tracer) StartRenderSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "render."+provider, trace.WithSpanKind(trace.SpanKindClient))
}

// EndRenderSpan ends a render span with attributes.
func (t *Tracer) EndRenderSpan(span trace.Span, opts RenderSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("render.provider", opts.Provider),
		attribute.Int("render.bytes", opts.Bytes),
	}
	if opts.Model != "" {
		attrs = append(attrs, attribute.String("render.model", opts.Model))
	}
	if t.debug && opts.Prompt != "" {
		attrs = append(attrs, attribute.String("render.prompt", truncate(opts.Prompt, 4000)))
	}
	span.SetAttributes(attrs...)
	endWithError(span, err)
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
