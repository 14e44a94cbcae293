package scheduler

import (
	"context"

	"github.com/vinayprograms/renderkit/artifact"
	"github.com/vinayprograms/renderkit/render"
)

// WritePlaceholder returns a PlaceholderFunc that stores render.Placeholder
// under the failed job's artifact name, so a page can still be assembled.
// The next run will skip the job unless the placeholder is removed.
func WritePlaceholder(sink artifact.Sink) PlaceholderFunc {
	return func(ctx context.Context, job Job, cause error) error {
		reason := "failed"
		if cause != nil {
			reason = cause.Error()
		}
		return sink.Write(ctx, job.Artifact, render.Placeholder(job.Key.String(), reason))
	}
}
