package scheduler

import (
	"fmt"
	"time"

	"github.com/vinayprograms/renderkit/render"
)

// Key identifies a job. It is stable across runs.
type Key struct {
	Page    int `json:"page"`
	Panel   int `json:"panel"`
	Variant int `json:"variant,omitempty"` // 0 when the panel has a single variant
}

// String returns page-003-panel-2, or page-003-panel-2-v1 for variants.
// Page 0 is the cover: cover-panel-1, cover-panel-1-v2.
func (k Key) String() string {
	prefix := fmt.Sprintf("page-%03d", k.Page)
	if k.Page == 0 {
		prefix = "cover"
	}
	if k.Variant > 0 {
		return fmt.Sprintf("%s-panel-%d-v%d", prefix, k.Panel, k.Variant)
	}
	return fmt.Sprintf("%s-panel-%d", prefix, k.Panel)
}

// Final returns the key of the panel's selected image, without variant.
func (k Key) Final() Key {
	return Key{Page: k.Page, Panel: k.Panel}
}

// Artifact returns the default artifact name for the key.
func (k Key) Artifact() string {
	return k.String() + ".png"
}

// Job is one unit of render work.
type Job struct {
	Key Key

	// Request is passed to the renderer unchanged.
	Request render.Request

	// Artifact is the identity checked before rendering and written after.
	// Defaults to Key.Artifact().
	Artifact string

	// Satisfies names other artifacts whose presence also completes the job,
	// such as the selected image that replaces a panel's variants.
	Satisfies []string

	// Attempts counts render calls made so far.
	Attempts int
}

// Artifacts returns Artifact followed by Satisfies.
func (j Job) Artifacts() []string {
	out := make([]string, 0, 1+len(j.Satisfies))
	if j.Artifact != "" {
		out = append(out, j.Artifact)
	}
	return append(out, j.Satisfies...)
}

// Outcome is the terminal (or last observed) state of a job.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSkipped
	OutcomeSucceeded
	OutcomeRateLimited
	OutcomeTransientFailure
	OutcomeFatalFailure
	OutcomeRetriesExhausted
	OutcomeCanceled
)

var outcomeNames = map[Outcome]string{
	OutcomePending:          "pending",
	OutcomeSkipped:          "skipped",
	OutcomeSucceeded:        "succeeded",
	OutcomeRateLimited:      "rate_limited",
	OutcomeTransientFailure: "transient_failure",
	OutcomeFatalFailure:     "fatal_failure",
	OutcomeRetriesExhausted: "retries_exhausted",
	OutcomeCanceled:         "canceled",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Terminal reports whether a job stops in this state.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSkipped, OutcomeSucceeded, OutcomeFatalFailure,
		OutcomeRetriesExhausted, OutcomeCanceled:
		return true
	}
	return false
}

// Failed reports whether the outcome counts as failed in Stats.
func (o Outcome) Failed() bool {
	return o == OutcomeFatalFailure || o == OutcomeRetriesExhausted || o == OutcomeCanceled
}

// JobResult reports how one job ended.
type JobResult struct {
	Key       Key
	Artifact  string
	Outcome   Outcome
	Attempts  int
	Throttled int // rate-limited attempts
	Duration  time.Duration
	Err       error // last error for failed outcomes
}

// Stats aggregates a batch.
type Stats struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Throttled int // rate-limited attempts across all jobs

	Duration     time.Duration
	PeakInFlight int // most render calls this batch had running at once
	FinalLimit   int // concurrency limit when the batch drained

	// Results holds one entry per job in submission order.
	Results []JobResult
}

// Completed returns Succeeded + Skipped.
func (s Stats) Completed() int {
	return s.Succeeded + s.Skipped
}

// Add folds other into s. Results are appended.
func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Succeeded += other.Succeeded
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Throttled += other.Throttled
	s.Duration += other.Duration
	if other.PeakInFlight > s.PeakInFlight {
		s.PeakInFlight = other.PeakInFlight
	}
	s.FinalLimit = other.FinalLimit
	s.Results = append(s.Results, other.Results...)
}

func (s *Stats) record(r JobResult) {
	switch {
	case r.Outcome == OutcomeSkipped:
		s.Skipped++
	case r.Outcome == OutcomeSucceeded:
		s.Succeeded++
	case r.Outcome.Failed():
		s.Failed++
	}
	s.Throttled += r.Throttled
}
