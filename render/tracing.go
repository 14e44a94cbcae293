// Tracing wrapper for renderers.
package render

import (
	"context"
	"io"

	"github.com/vinayprograms/renderkit/telemetry"
)

// TracingRenderer wraps a Renderer with a span per call.
type TracingRenderer struct {
	renderer Renderer
	provider string
	model    string
}

// WithTracing wraps r with tracing instrumentation.
func WithTracing(r Renderer, provider, model string) Renderer {
	return &TracingRenderer{renderer: r, provider: provider, model: model}
}

// Render implements Renderer with tracing.
func (tr *TracingRenderer) Render(ctx context.Context, req Request) ([]byte, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartRenderSpan(ctx, tr.provider)

	data, err := tr.renderer.Render(ctx, req)

	opts := telemetry.RenderSpanOptions{
		Provider: tr.provider,
		Model:    tr.model,
		Bytes:    len(data),
	}
	if tracer.Debug() {
		opts.Prompt = req.Prompt
	}
	tracer.EndRenderSpan(span, opts, err)

	return data, err
}

// Close closes the wrapped renderer when it holds a client.
func (tr *TracingRenderer) Close() error {
	if c, ok := tr.renderer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
